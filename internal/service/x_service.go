package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	config "github.com/postloom/publisher-api/configs"
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/tokenstore"
	"github.com/postloom/publisher-api/internal/transfer"
	"github.com/postloom/publisher-api/pkg/utils"
	"golang.org/x/oauth2"
)

const (
	xTokenURL = "https://api.x.com/2/oauth2/token"
	xAPIBase  = "https://api.x.com"

	// X access tokens last two hours. A token inside its last twenty
	// minutes gets verified online before we rely on it, and refreshed
	// when the verification fails.
	xExpiryBuffer = 20 * time.Minute
)

type xService struct {
	cfg      config.Config
	store    *tokenstore.Store
	http     *http.Client
	tokenURL string
	apiBase  string
}

func NewXService(cfg config.Config, store *tokenstore.Store, client *http.Client) Connector {
	if client == nil {
		client = newHTTPClient()
	}
	return &xService{
		cfg:      cfg,
		store:    store,
		http:     client,
		tokenURL: xTokenURL,
		apiBase:  xAPIBase,
	}
}

func (s *xService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.X.ClientID,
		ClientSecret: s.cfg.X.ClientSecret,
		RedirectURL:  s.cfg.X.RedirectURI,
		Endpoint:     oauth2.Endpoint{TokenURL: s.tokenURL, AuthStyle: oauth2.AuthStyleInHeader},
	}
}

func (s *xService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.http)
}

// SetAccessToken exchanges the PKCE authorization code; unlike the
// other providers the code verifier is required here.
func (s *xService) SetAccessToken(ctx context.Context, accountID int64, code, codeVerifier string) (*transfer.ConnectResult, error) {
	if s.cfg.X.ClientID == "" || s.cfg.X.RedirectURI == "" {
		return nil, fmt.Errorf("x: %w", ErrOAuthConfig)
	}

	token, err := s.oauthConfig().Exchange(s.oauthContext(ctx), code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("x code exchange: %w", err)
	}

	user, err := s.me(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	record, err := s.buildRecord(token, user)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, accountID, models.ProviderX, record); err != nil {
		return nil, err
	}

	return &transfer.ConnectResult{
		Provider: models.ProviderX,
		Message:  fmt.Sprintf("X connected as @%s", user.Data.Username),
	}, nil
}

func (s *xService) buildRecord(token *oauth2.Token, user *transfer.XUserResponse) (*models.XTokenRecord, error) {
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

	return &models.XTokenRecord{
		Credentials: models.Credentials{
			AccessToken:  encryptedAccessToken,
			RefreshToken: encryptedRefreshToken,
			ExpiresAt:    token.Expiry,
		},
		UserID:   user.Data.ID,
		Username: user.Data.Username,
	}, nil
}

func (s *xService) me(ctx context.Context, accessToken string) (*transfer.XUserResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.apiBase+"/2/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching x user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("x users/me returned %d: %s", resp.StatusCode, body)
	}

	var user transfer.XUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decoding x user response: %w", err)
	}
	return &user, nil
}

func (s *xService) CheckConnectionStatus(ctx context.Context, accountID int64) bool {
	var record models.XTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderX, &record)
	if err != nil || !found {
		return false
	}
	if record.AccessToken == "" {
		return false
	}
	return s.freshen(ctx, accountID, &record) == nil
}

// freshen verifies a near-expiry token online before writing it off,
// and falls back to the refresh grant when the verification fails. The
// record is updated in place so callers read the renewed token.
func (s *xService) freshen(ctx context.Context, accountID int64, record *models.XTokenRecord) error {
	if !record.ExpiresWithin(xExpiryBuffer) {
		return nil
	}

	accessToken, err := utils.Decrypt(record.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}
	if _, err := s.me(ctx, accessToken); err == nil {
		return nil
	}

	return s.refresh(ctx, accountID, record)
}

func (s *xService) refresh(ctx context.Context, accountID int64, record *models.XTokenRecord) error {
	if record.RefreshToken == "" {
		return fmt.Errorf("x: no refresh token stored")
	}

	refreshToken, err := utils.Decrypt(record.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	source := s.oauthConfig().TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		slog.Info("x token refresh failed", "account_id", accountID, "error", err.Error())
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}
	record.AccessToken = encryptedAccessToken
	if token.RefreshToken != "" {
		encryptedRefreshToken, err := utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
		record.RefreshToken = encryptedRefreshToken
	}
	record.ExpiresAt = token.Expiry

	return s.store.Put(ctx, accountID, models.ProviderX, record)
}

func (s *xService) Logout(ctx context.Context, accountID int64) (bool, error) {
	if err := s.store.Delete(ctx, accountID, models.ProviderX); err != nil {
		return false, err
	}
	return true, nil
}

func (s *xService) SelectTarget(ctx context.Context, accountID int64, targetID string) error {
	return fmt.Errorf("x: %w", ErrSelectionUnsupported)
}

func (s *xService) SelectedTarget(ctx context.Context, accountID int64) (*transfer.Target, error) {
	return nil, nil
}

func (s *xService) Publish(ctx context.Context, accountID int64, post *models.Post) (*transfer.PublishOutcome, error) {
	if strings.TrimSpace(post.Body) == "" {
		return nil, fmt.Errorf("x: %w", ErrEmptyBody)
	}

	var record models.XTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderX, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.AccessToken == "" {
		return nil, fmt.Errorf("x: %w", ErrNotConnected)
	}

	// Same near-expiry dance as the status check: a tweet must never go
	// out on a token we would not vouch for.
	if err := s.freshen(ctx, accountID, &record); err != nil {
		return nil, fmt.Errorf("x: %w", ErrSessionExpired)
	}

	accessToken, err := utils.Decrypt(record.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	payload := map[string]string{"text": composeMessage(post)}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiBase+"/2/tweets", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("x tweet create: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("x tweet create returned %d: %s", resp.StatusCode, respBody)
	}

	var tweet transfer.XTweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&tweet); err != nil {
		return nil, fmt.Errorf("decoding x tweet response: %w", err)
	}
	if tweet.Data.ID == "" {
		return nil, fmt.Errorf("x returned no tweet id")
	}

	return &transfer.PublishOutcome{
		ExternalID: tweet.Data.ID,
		URL:        fmt.Sprintf("https://x.com/%s/status/%s", record.Username, tweet.Data.ID),
	}, nil
}
