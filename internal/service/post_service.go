package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/repository"
	"github.com/postloom/publisher-api/internal/transfer"
)

type PostService interface {
	CreatePost(ctx context.Context, accountID int64, pc *transfer.PostCreation) (int64, time.Duration, error)
	List(ctx context.Context, accountID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, accountID int64) (*models.Post, error)
	Remove(ctx context.Context, accountID, postID int64) error
}

type postService struct {
	db *sql.DB
	pr repository.PostRepository
}

func NewPostService(db *sql.DB, pr repository.PostRepository) PostService {
	return &postService{
		db: db,
		pr: pr,
	}
}

// CreatePost stores the post and reports the delay until its scheduled
// time, zero when it should be published right away.
func (s *postService) CreatePost(ctx context.Context, accountID int64, pc *transfer.PostCreation) (int64, time.Duration, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, 0, err
	}
	if pc.Body == "" && pc.ImageURL == "" {
		err := errors.New("post needs a body or an image")
		slog.Info(err.Error())
		return 0, 0, err
	}

	provider, err := models.ParseProvider(pc.Provider)
	if err != nil {
		slog.Info(err.Error())
		return 0, 0, err
	}

	state := models.PostStateToBePublished
	var scheduledTime time.Time
	if pc.ScheduledTime != "" {
		scheduledTime, err = time.Parse("2006-01-02T15:04", pc.ScheduledTime)
		if err != nil {
			err = fmt.Errorf("invalid scheduled time format: %w", err)
			slog.Error(err.Error())
			return 0, 0, err
		}
		state = models.PostStateScheduled
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := models.Post{
		AccountID:        accountID,
		Provider:         provider,
		Title:            pc.Title,
		Body:             pc.Body,
		ImageURL:         pc.ImageURL,
		Hashtags:         pc.Hashtags,
		Link:             pc.Link,
		State:            state,
		RecommendationID: pc.RecommendationID,
		ScheduledTime:    scheduledTime,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return 0, 0, fmt.Errorf("error creating post: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	delay := time.Until(scheduledTime)
	if delay < 0 {
		delay = 0
	}

	return postID, delay, nil
}

func (s *postService) List(ctx context.Context, accountID int64) ([]*models.Post, error) {
	posts, err := s.pr.ListByAccountID(ctx, accountID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, accountID int64) (*models.Post, error) {
	if postID == 0 {
		err := errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("post %d: %w", postID, ErrPostNotFound)
	}
	if post.AccountID != accountID {
		return nil, fmt.Errorf("post %d: %w", postID, ErrPostNotOwned)
	}
	return post, nil
}

func (s *postService) Remove(ctx context.Context, accountID, postID int64) error {
	post, err := s.PostInfo(ctx, postID, accountID)
	if err != nil {
		return err
	}
	if post.State == models.PostStatePosted {
		return fmt.Errorf("post %d: %w", postID, ErrAlreadyPublished)
	}
	return s.pr.UpdateState(ctx, models.PostStateDeleted, postID)
}
