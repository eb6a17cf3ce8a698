package queue

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"
	"github.com/postloom/publisher-api/internal/service"
)

func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	_, err := q.hub.Publish(ctx, payload.AccountID, payload.PostID, payload.Provider)
	if err != nil {
		log.Printf("Error publishing post %d to %s: %v", payload.PostID, payload.Provider, err)
		// Precondition failures (already published, deleted, wrong
		// provider) will never succeed on retry.
		if service.IsPrecondition(err) {
			return nil
		}
		return err
	}

	return nil
}
