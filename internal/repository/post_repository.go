package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/postloom/publisher-api/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	ListByAccountID(ctx context.Context, accountID int64) ([]*models.Post, error)
	UpdateState(ctx context.Context, state string, postID int64) error
	MarkPublished(ctx context.Context, postID int64, externalID, publishedURL string, publishedAt time.Time) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `
	id, account_id, provider, title, body, image_url, hashtags, link, state,
	COALESCE(post_id_in_provider, ''), COALESCE(published_at, 'epoch'::timestamptz),
	COALESCE(published_url, ''), COALESCE(recommendation_id, 0),
	scheduled_time, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.AccountID, &p.Provider, &p.Title, &p.Body, &p.ImageURL,
		pq.Array(&p.Hashtags), &p.Link, &p.State, &p.PostIDInProvider, &p.PublishedAt,
		&p.PublishedURL, &p.RecommendationID, &p.ScheduledTime, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (account_id, provider, title, body, image_url, hashtags, link, state, recommendation_id, scheduled_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, 0), $10)
		RETURNING id
	`

	var id int64
	var err error

	args := []any{post.AccountID, post.Provider, post.Title, post.Body, post.ImageURL,
		pq.Array(post.Hashtags), post.Link, post.State, post.RecommendationID, post.ScheduledTime}

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListByAccountID(ctx context.Context, accountID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE account_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) UpdateState(ctx context.Context, state string, postID int64) error {
	query := `UPDATE posts SET state = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, state, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkPublished(ctx context.Context, postID int64, externalID, publishedURL string, publishedAt time.Time) error {
	query := `
		UPDATE posts
		SET state = $1,
			post_id_in_provider = $2,
			published_url = $3,
			published_at = $4,
			updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatePosted, externalID, publishedURL, publishedAt, postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
