package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubConnector records calls and plays back canned results.
type stubConnector struct {
	connected      bool
	logoutCalls    int
	publishCalls   int
	publishErr     error
	publishOutcome *transfer.PublishOutcome
}

func (c *stubConnector) SetAccessToken(ctx context.Context, accountID int64, code, codeVerifier string) (*transfer.ConnectResult, error) {
	return &transfer.ConnectResult{Message: "connected"}, nil
}

func (c *stubConnector) CheckConnectionStatus(ctx context.Context, accountID int64) bool {
	return c.connected
}

func (c *stubConnector) Logout(ctx context.Context, accountID int64) (bool, error) {
	c.logoutCalls++
	return true, nil
}

func (c *stubConnector) SelectTarget(ctx context.Context, accountID int64, targetID string) error {
	return nil
}

func (c *stubConnector) SelectedTarget(ctx context.Context, accountID int64) (*transfer.Target, error) {
	return nil, nil
}

func (c *stubConnector) Publish(ctx context.Context, accountID int64, post *models.Post) (*transfer.PublishOutcome, error) {
	c.publishCalls++
	if c.publishErr != nil {
		return nil, c.publishErr
	}
	return c.publishOutcome, nil
}

func newTestHub(conn Connector, posts *memPostRepo) HubService {
	pub := NewPublicationService(posts, newMemRecommendationRepo(), newMemHistoryRepo())
	return NewHubService(map[models.Provider]Connector{models.ProviderX: conn}, pub)
}

func TestHubRejectsUnknownProvider(t *testing.T) {
	hub := newTestHub(&stubConnector{}, newMemPostRepo())

	_, err := hub.Connect(context.Background(), 1, models.Provider("myspace"), "code", "")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = hub.Status(context.Background(), 1, models.Provider("myspace"))
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = hub.Publish(context.Background(), 1, 7, models.Provider("myspace"))
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestHubLogoutIsIdempotent(t *testing.T) {
	conn := &stubConnector{}
	hub := newTestHub(conn, newMemPostRepo())

	for i := 0; i < 2; i++ {
		ok, err := hub.Logout(context.Background(), 1, models.ProviderX)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 2, conn.logoutCalls)
}

func TestHubPublishHappyPath(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderX, State: models.PostStateToBePublished})
	conn := &stubConnector{publishOutcome: &transfer.PublishOutcome{ExternalID: "55", URL: "https://x.com/u/status/55"}}
	hub := newTestHub(conn, posts)

	post, err := hub.Publish(context.Background(), 1, 7, models.ProviderX)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatePosted, post.State)
	assert.Equal(t, "55", post.PostIDInProvider)

	stored, _ := posts.GetByID(context.Background(), 7)
	assert.Equal(t, models.PostStatePosted, stored.State)
}

func TestHubPublishPreconditionLeavesPostUntouched(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderX, State: models.PostStateToBePublished})
	conn := &stubConnector{publishErr: fmt.Errorf("x: %w", ErrEmptyBody)}
	hub := newTestHub(conn, posts)

	_, err := hub.Publish(context.Background(), 1, 7, models.ProviderX)
	require.Error(t, err)
	assert.True(t, IsPrecondition(err))

	stored, _ := posts.GetByID(context.Background(), 7)
	assert.Equal(t, models.PostStateToBePublished, stored.State)
}

func TestHubSelectTargetReturnsConfirmation(t *testing.T) {
	hub := newTestHub(&stubConnector{}, newMemPostRepo())

	result, err := hub.SelectTarget(context.Background(), 1, models.ProviderX, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderX, result.Provider)
	assert.Contains(t, result.Message, "t1")

	_, err = hub.SelectTarget(context.Background(), 1, models.Provider("myspace"), "t1")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

// A publish rejected on an expired session is a precondition failure:
// the post stays publishable for after the reconnect.
func TestHubPublishExpiredSessionLeavesPostUntouched(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderX, State: models.PostStateToBePublished})
	conn := &stubConnector{publishErr: fmt.Errorf("x: %w", ErrSessionExpired)}
	hub := newTestHub(conn, posts)

	_, err := hub.Publish(context.Background(), 1, 7, models.ProviderX)
	require.Error(t, err)
	assert.True(t, IsPrecondition(err))

	stored, _ := posts.GetByID(context.Background(), 7)
	assert.Equal(t, models.PostStateToBePublished, stored.State)
}

func TestHubPublishProviderErrorMarksFailed(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderX, State: models.PostStateToBePublished})
	conn := &stubConnector{publishErr: errors.New("x returned 503")}
	hub := newTestHub(conn, posts)

	_, err := hub.Publish(context.Background(), 1, 7, models.ProviderX)
	require.Error(t, err)

	stored, _ := posts.GetByID(context.Background(), 7)
	assert.Equal(t, models.PostStateFailed, stored.State)
}

func TestHubPublishSkipsConnectorOnValidationFailure(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderX, State: models.PostStatePosted})
	conn := &stubConnector{}
	hub := newTestHub(conn, posts)

	_, err := hub.Publish(context.Background(), 1, 7, models.ProviderX)
	assert.ErrorIs(t, err, ErrAlreadyPublished)
	assert.Equal(t, 0, conn.publishCalls)
}
