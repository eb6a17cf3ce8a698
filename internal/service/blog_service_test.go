package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlogPublishCreatesPost(t *testing.T) {
	store, _ := newTestStore()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wp-json/wp/v2/posts", r.URL.Path)
		require.Equal(t, "Bearer blog-access-token", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "A post", payload["title"])
		assert.Equal(t, "publish", payload["status"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":321,"link":"https://blog.example.com/a-post/"}`))
	}))
	defer server.Close()

	svc := NewBlogService(testConfig(), store, server.Client()).(*blogService)
	svc.apiBase = server.URL

	enc, err := utils.Encrypt([]byte("blog-access-token"), []byte(svc.cfg.SecretKey))
	require.NoError(t, err)
	rec := &models.BlogTokenRecord{
		Credentials: models.Credentials{AccessToken: enc, ExpiresAt: time.Now().Add(time.Hour)},
	}
	require.NoError(t, store.Put(context.Background(), 1, models.ProviderBlog, rec))

	outcome, err := svc.Publish(context.Background(), 1, &models.Post{ID: 7, Title: "A post", Body: "content"})
	require.NoError(t, err)
	assert.Equal(t, "321", outcome.ExternalID)
	assert.Equal(t, "https://blog.example.com/a-post/", outcome.URL)
}

func seedBlogRecordExpiring(t *testing.T, svc *blogService, accountID int64, refreshToken string, expiresAt time.Time) {
	t.Helper()

	enc, err := utils.Encrypt([]byte("stale-blog-token"), []byte(svc.cfg.SecretKey))
	require.NoError(t, err)
	encRefresh := ""
	if refreshToken != "" {
		encRefresh, err = utils.Encrypt([]byte(refreshToken), []byte(svc.cfg.SecretKey))
		require.NoError(t, err)
	}
	rec := &models.BlogTokenRecord{
		Credentials: models.Credentials{AccessToken: enc, RefreshToken: encRefresh, ExpiresAt: expiresAt},
	}
	require.NoError(t, svc.store.Put(context.Background(), accountID, models.ProviderBlog, rec))
}

// A status check inside the refresh window runs the refresh grant and
// keeps the old refresh token when the CMS does not rotate it.
func TestBlogStatusRefreshesInsideBuffer(t *testing.T) {
	store, _ := newTestStore()
	refreshGrants := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "blog-refresh-token", r.Form.Get("refresh_token"))
		refreshGrants++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh-blog-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	svc := NewBlogService(testConfig(), store, server.Client()).(*blogService)
	svc.apiBase = server.URL
	seedBlogRecordExpiring(t, svc, 1, "blog-refresh-token", time.Now().Add(blogExpiryBuffer-time.Second))

	assert.True(t, svc.CheckConnectionStatus(context.Background(), 1))
	assert.Equal(t, 1, refreshGrants)

	var rec models.BlogTokenRecord
	found, err := store.Get(context.Background(), 1, models.ProviderBlog, &rec)
	require.NoError(t, err)
	require.True(t, found)
	token, err := utils.Decrypt(rec.AccessToken, []byte(svc.cfg.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, "fresh-blog-token", token)
	refresh, err := utils.Decrypt(rec.RefreshToken, []byte(svc.cfg.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, "blog-refresh-token", refresh, "unrotated refresh token must survive")
}

func TestBlogStatusSkipsRefreshOutsideBuffer(t *testing.T) {
	store, _ := newTestStore()
	refreshGrants := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshGrants++
	}))
	defer server.Close()

	svc := NewBlogService(testConfig(), store, server.Client()).(*blogService)
	svc.apiBase = server.URL
	seedBlogRecordExpiring(t, svc, 1, "blog-refresh-token", time.Now().Add(blogExpiryBuffer+time.Minute))

	assert.True(t, svc.CheckConnectionStatus(context.Background(), 1))
	assert.Equal(t, 0, refreshGrants)
}

// An expired token gets the refresh grant before the create call, and
// the create carries the renewed token.
func TestBlogPublishRefreshesExpiredToken(t *testing.T) {
	store, _ := newTestStore()
	refreshGrants := 0
	var createAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			refreshGrants++
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"fresh-blog-token","token_type":"Bearer","expires_in":3600}`))
		case "/wp-json/wp/v2/posts":
			createAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":321,"link":"https://blog.example.com/a-post/"}`))
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	defer server.Close()

	svc := NewBlogService(testConfig(), store, server.Client()).(*blogService)
	svc.apiBase = server.URL
	seedBlogRecordExpiring(t, svc, 1, "blog-refresh-token", time.Now().Add(-time.Minute))

	outcome, err := svc.Publish(context.Background(), 1, &models.Post{ID: 7, Title: "A post", Body: "content"})
	require.NoError(t, err)
	assert.Equal(t, "321", outcome.ExternalID)
	assert.Equal(t, 1, refreshGrants)
	assert.Equal(t, "Bearer fresh-blog-token", createAuth)
}

func TestBlogPublishExpiredWithoutRefreshToken(t *testing.T) {
	store, _ := newTestStore()
	svc := NewBlogService(testConfig(), store, nil).(*blogService)
	seedBlogRecordExpiring(t, svc, 1, "", time.Now().Add(-time.Minute))

	_, err := svc.Publish(context.Background(), 1, &models.Post{ID: 7, Title: "A post", Body: "content"})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, IsPrecondition(err))
}

func TestBlogPublishWithoutConnection(t *testing.T) {
	store, _ := newTestStore()
	svc := NewBlogService(testConfig(), store, nil).(*blogService)

	_, err := svc.Publish(context.Background(), 1, &models.Post{ID: 7, Title: "A post", Body: "content"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestBlogHasNoTargetSelection(t *testing.T) {
	store, _ := newTestStore()
	svc := NewBlogService(testConfig(), store, nil).(*blogService)

	err := svc.SelectTarget(context.Background(), 1, "whatever")
	assert.ErrorIs(t, err, ErrSelectionUnsupported)

	target, err := svc.SelectedTarget(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, target)
}
