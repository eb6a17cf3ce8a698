package queue

import (
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/service"
)

type Queue struct {
	hub service.HubService
}

func NewQueue(hub service.HubService) *Queue {
	return &Queue{
		hub: hub,
	}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID    int64           `json:"post_id"`
	AccountID int64           `json:"account_id"`
	Provider  models.Provider `json:"provider"`
}
