package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinterestSandboxSkipsTokenExchange(t *testing.T) {
	store, _ := newTestStore()
	tokenEndpointHits := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/oauth/token":
			tokenEndpointHits++
			w.WriteHeader(http.StatusBadRequest)
		case "/v5/boards":
			require.Equal(t, "Bearer sandbox-token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"items":[{"id":"b1","name":"Recipes"},{"id":"b2","name":"Travel"}]}`))
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.PinterestSandboxToken = "sandbox-token"

	svc := NewPinterestService(cfg, store, server.Client()).(*pinterestService)
	svc.apiBase = server.URL

	result, err := svc.SetAccessToken(context.Background(), 1, "ignored-code", "")
	require.NoError(t, err)
	assert.Equal(t, 0, tokenEndpointHits, "sandbox connect must not hit the token endpoint")
	require.Len(t, result.Targets, 2)
	assert.Equal(t, "board", result.Targets[0].Kind)

	var rec models.PinterestTokenRecord
	found, err := store.Get(context.Background(), 1, models.ProviderPinterest, &rec)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, rec.Boards, 2)

	token, err := utils.Decrypt(rec.AccessToken, []byte(cfg.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, "sandbox-token", token)
}

func TestPinterestSandboxInactiveInProduction(t *testing.T) {
	store, _ := newTestStore()
	cfg := testConfig()
	cfg.AppEnv = "production"
	cfg.PinterestSandboxToken = "sandbox-token"

	svc := NewPinterestService(cfg, store, nil).(*pinterestService)
	assert.False(t, svc.sandboxMode())
}

func seedPinterestRecord(t *testing.T, svc *pinterestService, accountID int64) {
	t.Helper()

	enc, err := utils.Encrypt([]byte("pinterest-access-token"), []byte(svc.cfg.SecretKey))
	require.NoError(t, err)
	rec := &models.PinterestTokenRecord{
		Credentials: models.Credentials{AccessToken: enc, ExpiresAt: time.Now().Add(time.Hour)},
		Boards: []models.PinterestBoard{
			{ID: "b1", Name: "Recipes"},
			{ID: "b2", Name: "Travel"},
		},
	}
	require.NoError(t, svc.store.Put(context.Background(), accountID, models.ProviderPinterest, rec))
}

func TestPinterestSelectBoardRoundTrip(t *testing.T) {
	store, _ := newTestStore()
	svc := NewPinterestService(testConfig(), store, nil).(*pinterestService)
	seedPinterestRecord(t, svc, 1)

	require.NoError(t, svc.SelectTarget(context.Background(), 1, "b2"))

	target, err := svc.SelectedTarget(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "b2", target.ID)
	assert.Equal(t, "Travel", target.Name)

	err = svc.SelectTarget(context.Background(), 1, "missing")
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func seedPinterestRecordExpiring(t *testing.T, svc *pinterestService, accountID int64, refreshToken string, expiresAt time.Time) {
	t.Helper()

	enc, err := utils.Encrypt([]byte("stale-pinterest-token"), []byte(svc.cfg.SecretKey))
	require.NoError(t, err)
	encRefresh := ""
	if refreshToken != "" {
		encRefresh, err = utils.Encrypt([]byte(refreshToken), []byte(svc.cfg.SecretKey))
		require.NoError(t, err)
	}
	rec := &models.PinterestTokenRecord{
		Credentials:     models.Credentials{AccessToken: enc, RefreshToken: encRefresh, ExpiresAt: expiresAt},
		Boards:          []models.PinterestBoard{{ID: "b1", Name: "Recipes"}},
		SelectedBoardID: "b1",
	}
	require.NoError(t, svc.store.Put(context.Background(), accountID, models.ProviderPinterest, rec))
}

func TestPinterestStatusRefreshesExpiredToken(t *testing.T) {
	store, _ := newTestStore()
	refreshGrants := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v5/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "pinterest-refresh-token", r.Form.Get("refresh_token"))
		refreshGrants++
		w.Write([]byte(`{"access_token":"fresh-pinterest-token","token_type":"bearer","expires_in":2592000}`))
	}))
	defer server.Close()

	svc := NewPinterestService(testConfig(), store, server.Client()).(*pinterestService)
	svc.apiBase = server.URL
	seedPinterestRecordExpiring(t, svc, 1, "pinterest-refresh-token", time.Now().Add(-time.Second))

	assert.True(t, svc.CheckConnectionStatus(context.Background(), 1))
	assert.Equal(t, 1, refreshGrants)

	var rec models.PinterestTokenRecord
	found, err := store.Get(context.Background(), 1, models.ProviderPinterest, &rec)
	require.NoError(t, err)
	require.True(t, found)
	token, err := utils.Decrypt(rec.AccessToken, []byte(svc.cfg.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, "fresh-pinterest-token", token)
}

func TestPinterestStatusValidTokenSkipsRefresh(t *testing.T) {
	store, _ := newTestStore()
	refreshGrants := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshGrants++
	}))
	defer server.Close()

	svc := NewPinterestService(testConfig(), store, server.Client()).(*pinterestService)
	svc.apiBase = server.URL
	seedPinterestRecordExpiring(t, svc, 1, "pinterest-refresh-token", time.Now().Add(time.Second))

	assert.True(t, svc.CheckConnectionStatus(context.Background(), 1))
	assert.Equal(t, 0, refreshGrants)
}

// An expired token gets one refresh attempt before the pin create, and
// the create carries the renewed token.
func TestPinterestPublishRefreshesExpiredToken(t *testing.T) {
	store, _ := newTestStore()
	refreshGrants := 0
	var pinAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/oauth/token":
			refreshGrants++
			w.Write([]byte(`{"access_token":"fresh-pinterest-token","token_type":"bearer","expires_in":2592000}`))
		case "/v5/pins":
			pinAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"pin123"}`))
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	defer server.Close()

	svc := NewPinterestService(testConfig(), store, server.Client()).(*pinterestService)
	svc.apiBase = server.URL
	seedPinterestRecordExpiring(t, svc, 1, "pinterest-refresh-token", time.Now().Add(-time.Minute))

	outcome, err := svc.Publish(context.Background(), 1, &models.Post{
		ID:       7,
		Title:    "A pin",
		Body:     "pin text",
		ImageURL: "https://cdn.example.com/img.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "pin123", outcome.ExternalID)
	assert.Equal(t, 1, refreshGrants)
	assert.Equal(t, "Bearer fresh-pinterest-token", pinAuth)
}

func TestPinterestPublishExpiredWithoutRefreshToken(t *testing.T) {
	store, _ := newTestStore()
	svc := NewPinterestService(testConfig(), store, nil).(*pinterestService)
	seedPinterestRecordExpiring(t, svc, 1, "", time.Now().Add(-time.Minute))

	_, err := svc.Publish(context.Background(), 1, &models.Post{
		ID:       7,
		Title:    "A pin",
		Body:     "pin text",
		ImageURL: "https://cdn.example.com/img.png",
	})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, IsPrecondition(err))
}

func TestPinterestPublishRequiresImage(t *testing.T) {
	store, _ := newTestStore()
	svc := NewPinterestService(testConfig(), store, nil).(*pinterestService)
	seedPinterestRecord(t, svc, 1)
	require.NoError(t, svc.SelectTarget(context.Background(), 1, "b1"))

	_, err := svc.Publish(context.Background(), 1, &models.Post{ID: 7, Title: "A pin", Body: "text only"})
	assert.ErrorIs(t, err, ErrMissingImage)
}

func TestPinterestPublishCreatesPin(t *testing.T) {
	store, _ := newTestStore()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v5/pins", r.URL.Path)
		require.Equal(t, "Bearer pinterest-access-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"pin123"}`))
	}))
	defer server.Close()

	svc := NewPinterestService(testConfig(), store, server.Client()).(*pinterestService)
	svc.apiBase = server.URL
	seedPinterestRecord(t, svc, 1)
	require.NoError(t, svc.SelectTarget(context.Background(), 1, "b1"))

	outcome, err := svc.Publish(context.Background(), 1, &models.Post{
		ID:       7,
		Title:    "A pin",
		Body:     "pin text",
		ImageURL: "https://cdn.example.com/img.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "pin123", outcome.ExternalID)
	assert.Equal(t, "https://www.pinterest.com/pin/pin123/", outcome.URL)
}
