package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postloom/publisher-api/internal/models"
)

type PostingHistoryRepository interface {
	Create(ctx context.Context, h *models.PostingHistory) (int64, error)
}

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

func (r *postingHistoryRepository) Create(ctx context.Context, h *models.PostingHistory) (int64, error) {
	query := `
		INSERT INTO posting_history (account_id, post_id, provider, error_message)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, h.AccountID, h.PostID, h.Provider, h.ErrorMessage).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}
