package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/transfer"
)

// HubService routes every connection and publish operation to the
// connector registered for the post's provider.
type HubService interface {
	Connect(ctx context.Context, accountID int64, provider models.Provider, code, codeVerifier string) (*transfer.ConnectResult, error)
	Status(ctx context.Context, accountID int64, provider models.Provider) (bool, error)
	Logout(ctx context.Context, accountID int64, provider models.Provider) (bool, error)
	SelectTarget(ctx context.Context, accountID int64, provider models.Provider, targetID string) (*transfer.SelectionResult, error)
	SelectedTarget(ctx context.Context, accountID int64, provider models.Provider) (*transfer.Target, error)
	Publish(ctx context.Context, accountID, postID int64, provider models.Provider) (*models.Post, error)
}

type hubService struct {
	connectors map[models.Provider]Connector
	pub        PublicationService
}

func NewHubService(connectors map[models.Provider]Connector, pub PublicationService) HubService {
	return &hubService{
		connectors: connectors,
		pub:        pub,
	}
}

func (s *hubService) connector(provider models.Provider) (Connector, error) {
	conn, ok := s.connectors[provider]
	if !ok {
		return nil, fmt.Errorf("%s: %w", provider, ErrUnsupportedProvider)
	}
	return conn, nil
}

func (s *hubService) Connect(ctx context.Context, accountID int64, provider models.Provider, code, codeVerifier string) (*transfer.ConnectResult, error) {
	conn, err := s.connector(provider)
	if err != nil {
		return nil, err
	}

	result, err := conn.SetAccessToken(ctx, accountID, code, codeVerifier)
	if err != nil {
		return nil, err
	}

	slog.Info("provider connected", "provider", provider, "account_id", accountID, "targets", len(result.Targets))
	return result, nil
}

func (s *hubService) Status(ctx context.Context, accountID int64, provider models.Provider) (bool, error) {
	conn, err := s.connector(provider)
	if err != nil {
		return false, err
	}
	return conn.CheckConnectionStatus(ctx, accountID), nil
}

func (s *hubService) Logout(ctx context.Context, accountID int64, provider models.Provider) (bool, error) {
	conn, err := s.connector(provider)
	if err != nil {
		return false, err
	}

	ok, err := conn.Logout(ctx, accountID)
	if err != nil {
		return false, err
	}

	slog.Info("provider disconnected", "provider", provider, "account_id", accountID)
	return ok, nil
}

func (s *hubService) SelectTarget(ctx context.Context, accountID int64, provider models.Provider, targetID string) (*transfer.SelectionResult, error) {
	conn, err := s.connector(provider)
	if err != nil {
		return nil, err
	}
	if err := conn.SelectTarget(ctx, accountID, targetID); err != nil {
		return nil, err
	}
	return &transfer.SelectionResult{
		Message:  fmt.Sprintf("target %s selected", targetID),
		Provider: provider,
	}, nil
}

func (s *hubService) SelectedTarget(ctx context.Context, accountID int64, provider models.Provider) (*transfer.Target, error) {
	conn, err := s.connector(provider)
	if err != nil {
		return nil, err
	}
	return conn.SelectedTarget(ctx, accountID)
}

// Publish runs the full pipeline: precondition checks, the provider
// call, then persistence of the outcome. Precondition failures leave
// the post untouched; provider failures mark it FAILED.
func (s *hubService) Publish(ctx context.Context, accountID, postID int64, provider models.Provider) (*models.Post, error) {
	conn, err := s.connector(provider)
	if err != nil {
		return nil, err
	}

	post, err := s.pub.Validate(ctx, accountID, postID, provider)
	if err != nil {
		return nil, err
	}

	outcome, err := conn.Publish(ctx, accountID, post)
	if err != nil {
		if !IsPrecondition(err) {
			s.pub.Fail(ctx, post, err)
		}
		slog.Info("publish failed", "provider", provider, "post_id", postID, "error", err.Error())
		return nil, err
	}

	if err := s.pub.Complete(ctx, post, outcome); err != nil {
		return nil, err
	}

	slog.Info("post published", "provider", provider, "post_id", postID, "external_id", outcome.ExternalID)
	return post, nil
}
