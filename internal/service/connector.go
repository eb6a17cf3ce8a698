package service

import (
	"context"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/transfer"
)

// Connector is the capability set every platform implements. All
// blocking operations take a context; provider calls run with an
// explicit client timeout.
type Connector interface {
	// SetAccessToken exchanges an authorization code for tokens,
	// enumerates the selectable targets with the fresh token and
	// persists the provider's token record. codeVerifier is only
	// used by providers running PKCE (X); others ignore it.
	SetAccessToken(ctx context.Context, accountID int64, code, codeVerifier string) (*transfer.ConnectResult, error)

	// CheckConnectionStatus reports whether the stored credentials
	// are usable, refreshing them when the provider supports it and
	// the expiry falls inside the provider's buffer. It never returns
	// an error: any failure degrades to false.
	CheckConnectionStatus(ctx context.Context, accountID int64) bool

	// Logout drops the provider's token record. Idempotent.
	Logout(ctx context.Context, accountID int64) (bool, error)

	SelectTarget(ctx context.Context, accountID int64, targetID string) error
	SelectedTarget(ctx context.Context, accountID int64) (*transfer.Target, error)

	// Publish sends an already-validated post to the platform and
	// resolves its permanent external URL.
	Publish(ctx context.Context, accountID int64, post *models.Post) (*transfer.PublishOutcome, error)
}
