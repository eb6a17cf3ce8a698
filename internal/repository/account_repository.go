package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/postloom/publisher-api/internal/models"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetProviderTokens(ctx context.Context, accountID int64) (map[string]json.RawMessage, error)
	SetProviderTokens(ctx context.Context, accountID int64, tokens map[string]json.RawMessage) error
	ListAccountsWithTokens(ctx context.Context) ([]int64, error)
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT id, email, name, created_at, updated_at FROM accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &a, nil
}

func (r *accountRepository) GetProviderTokens(ctx context.Context, accountID int64) (map[string]json.RawMessage, error) {
	query := `SELECT social_media_provider_tokens FROM account_settings WHERE account_id = $1`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return map[string]json.RawMessage{}, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	tokens := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &tokens); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
	}
	return tokens, nil
}

func (r *accountRepository) SetProviderTokens(ctx context.Context, accountID int64, tokens map[string]json.RawMessage) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		INSERT INTO account_settings (account_id, social_media_provider_tokens, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id)
		DO UPDATE SET social_media_provider_tokens = $2, updated_at = $3
	`
	_, err = r.db.ExecContext(ctx, query, accountID, raw, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) ListAccountsWithTokens(ctx context.Context) ([]int64, error) {
	query := `SELECT account_id FROM account_settings WHERE social_media_provider_tokens <> '{}'::jsonb`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
