package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
)

type RecommendationRepository interface {
	AddPublishedURL(ctx context.Context, recommendationID int64, url string) error
}

type recommendationRepository struct {
	db *sql.DB
}

func NewRecommendationRepository(db *sql.DB) RecommendationRepository {
	return &recommendationRepository{db: db}
}

func (r *recommendationRepository) AddPublishedURL(ctx context.Context, recommendationID int64, url string) error {
	query := `
		UPDATE tracked_recommendations
		SET published_urls = array_append(published_urls, $1),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, url, recommendationID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return errors.New("tracked recommendation not found")
	}
	return nil
}
