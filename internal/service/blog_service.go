package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	config "github.com/postloom/publisher-api/configs"
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/tokenstore"
	"github.com/postloom/publisher-api/internal/transfer"
	"github.com/postloom/publisher-api/pkg/utils"
	"golang.org/x/oauth2"
)

// WordPress-flavored CMS endpoints relative to the configured base URL.
const (
	blogTokenPath    = "/oauth/token"
	blogPostsPath    = "/wp-json/wp/v2/posts"
	blogExpiryBuffer = time.Minute
)

type blogService struct {
	cfg     config.Config
	store   *tokenstore.Store
	http    *http.Client
	apiBase string
}

func NewBlogService(cfg config.Config, store *tokenstore.Store, client *http.Client) Connector {
	if client == nil {
		client = newHTTPClient()
	}
	return &blogService{
		cfg:     cfg,
		store:   store,
		http:    client,
		apiBase: cfg.BlogAPIBaseURL,
	}
}

func (s *blogService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.Blog.ClientID,
		ClientSecret: s.cfg.Blog.ClientSecret,
		RedirectURL:  s.cfg.Blog.RedirectURI,
		Endpoint:     oauth2.Endpoint{TokenURL: s.apiBase + blogTokenPath, AuthStyle: oauth2.AuthStyleInParams},
	}
}

func (s *blogService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.http)
}

func (s *blogService) SetAccessToken(ctx context.Context, accountID int64, code, codeVerifier string) (*transfer.ConnectResult, error) {
	if s.cfg.Blog.ClientID == "" || s.apiBase == "" {
		return nil, fmt.Errorf("blog: %w", ErrOAuthConfig)
	}

	token, err := s.oauthConfig().Exchange(s.oauthContext(ctx), code)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("blog code exchange: %w", err)
	}

	record, err := s.buildRecord(token)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, accountID, models.ProviderBlog, record); err != nil {
		return nil, err
	}

	return &transfer.ConnectResult{
		Provider: models.ProviderBlog,
		Message:  "blog connected",
	}, nil
}

func (s *blogService) buildRecord(token *oauth2.Token) (*models.BlogTokenRecord, error) {
	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}
	encryptedRefreshToken := ""
	if token.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return nil, err
		}
	}

	return &models.BlogTokenRecord{
		Credentials: models.Credentials{
			AccessToken:  encryptedAccessToken,
			RefreshToken: encryptedRefreshToken,
			ExpiresAt:    token.Expiry,
		},
	}, nil
}

func (s *blogService) CheckConnectionStatus(ctx context.Context, accountID int64) bool {
	var record models.BlogTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderBlog, &record)
	if err != nil || !found {
		return false
	}
	if record.AccessToken == "" {
		return false
	}
	if !record.ExpiresWithin(blogExpiryBuffer) {
		return true
	}
	return s.refresh(ctx, accountID, &record) == nil
}

func (s *blogService) refresh(ctx context.Context, accountID int64, record *models.BlogTokenRecord) error {
	if record.RefreshToken == "" {
		return fmt.Errorf("blog: no refresh token stored")
	}

	refreshToken, err := utils.Decrypt(record.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	source := s.oauthConfig().TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		slog.Info("blog token refresh failed", "account_id", accountID, "error", err.Error())
		return err
	}

	fresh, err := s.buildRecord(token)
	if err != nil {
		return err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = record.RefreshToken
	}
	*record = *fresh

	return s.store.Put(ctx, accountID, models.ProviderBlog, record)
}

func (s *blogService) Logout(ctx context.Context, accountID int64) (bool, error) {
	if err := s.store.Delete(ctx, accountID, models.ProviderBlog); err != nil {
		return false, err
	}
	return true, nil
}

func (s *blogService) SelectTarget(ctx context.Context, accountID int64, targetID string) error {
	return fmt.Errorf("blog: %w", ErrSelectionUnsupported)
}

func (s *blogService) SelectedTarget(ctx context.Context, accountID int64) (*transfer.Target, error) {
	return nil, nil
}

func (s *blogService) Publish(ctx context.Context, accountID int64, post *models.Post) (*transfer.PublishOutcome, error) {
	var record models.BlogTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderBlog, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.AccessToken == "" {
		return nil, fmt.Errorf("blog: %w", ErrNotConnected)
	}

	// A token inside its refresh window gets renewed before the create
	// call so the post never goes out on stale credentials.
	if record.ExpiresWithin(blogExpiryBuffer) {
		if err := s.refresh(ctx, accountID, &record); err != nil {
			return nil, fmt.Errorf("blog: %w", ErrSessionExpired)
		}
	}

	accessToken, err := utils.Decrypt(record.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"title":   post.Title,
		"content": post.Body,
		"status":  "publish",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiBase+blogPostsPath, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blog post create: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("blog post create returned %d: %s", resp.StatusCode, respBody)
	}

	var created transfer.BlogPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decoding blog post response: %w", err)
	}
	if created.ID == 0 {
		return nil, fmt.Errorf("blog returned no post id")
	}

	return &transfer.PublishOutcome{
		ExternalID: fmt.Sprintf("%d", created.ID),
		URL:        created.Link,
	}, nil
}
