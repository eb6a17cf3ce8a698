package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/repository"
	"github.com/postloom/publisher-api/internal/transfer"
)

// PublicationService owns what happens around a connector's publish
// call: precondition checks before it, post-row and side-channel
// updates after it.
type PublicationService interface {
	// Validate loads the post and rejects it before any network call
	// when it is missing, foreign-owned, already published or bound
	// to a different provider.
	Validate(ctx context.Context, accountID, postID int64, provider models.Provider) (*models.Post, error)

	// Complete persists the published state and best-effort notifies
	// the tracked recommendation. Tracking failures are logged and
	// never propagate.
	Complete(ctx context.Context, post *models.Post, outcome *transfer.PublishOutcome) error

	// Fail marks the post FAILED after an unrecoverable provider error.
	Fail(ctx context.Context, post *models.Post, cause error)
}

type publicationService struct {
	posts   repository.PostRepository
	tracked repository.RecommendationRepository
	history repository.PostingHistoryRepository
}

func NewPublicationService(
	posts repository.PostRepository,
	tracked repository.RecommendationRepository,
	history repository.PostingHistoryRepository) PublicationService {
	return &publicationService{
		posts:   posts,
		tracked: tracked,
		history: history,
	}
}

func (s *publicationService) Validate(ctx context.Context, accountID, postID int64, provider models.Provider) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading post %d: %w", postID, err)
	}
	if post == nil {
		return nil, fmt.Errorf("post %d: %w", postID, ErrPostNotFound)
	}
	if post.AccountID != accountID {
		return nil, fmt.Errorf("post %d: %w", postID, ErrPostNotOwned)
	}
	if post.State == models.PostStatePosted {
		return nil, fmt.Errorf("post %d: %w", postID, ErrAlreadyPublished)
	}
	if post.Provider != provider {
		return nil, fmt.Errorf("post %d is for %s: %w", postID, post.Provider, ErrProviderMismatch)
	}
	return post, nil
}

func (s *publicationService) Complete(ctx context.Context, post *models.Post, outcome *transfer.PublishOutcome) error {
	publishedAt := time.Now()

	if err := s.posts.MarkPublished(ctx, post.ID, outcome.ExternalID, outcome.URL, publishedAt); err != nil {
		return fmt.Errorf("persisting publish result for post %d: %w", post.ID, err)
	}

	post.State = models.PostStatePosted
	post.PostIDInProvider = outcome.ExternalID
	post.PublishedURL = outcome.URL
	post.PublishedAt = publishedAt

	// The side channels below must never fail the publish.
	if post.RecommendationID != 0 {
		if err := s.tracked.AddPublishedURL(ctx, post.RecommendationID, outcome.URL); err != nil {
			slog.Info("tracked recommendation update failed",
				"recommendation_id", post.RecommendationID, "post_id", post.ID, "error", err.Error())
		}
	}

	s.record(ctx, post, "")
	return nil
}

func (s *publicationService) Fail(ctx context.Context, post *models.Post, cause error) {
	if err := s.posts.UpdateState(ctx, models.PostStateFailed, post.ID); err != nil {
		slog.Info("marking post failed", "post_id", post.ID, "error", err.Error())
	}
	post.State = models.PostStateFailed

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	s.record(ctx, post, msg)
}

func (s *publicationService) record(ctx context.Context, post *models.Post, errMsg string) {
	h := &models.PostingHistory{
		AccountID:    post.AccountID,
		PostID:       post.ID,
		Provider:     post.Provider,
		ErrorMessage: errMsg,
	}
	if _, err := s.history.Create(ctx, h); err != nil {
		slog.Info("saving posting history", "post_id", post.ID, "error", err.Error())
	}
}
