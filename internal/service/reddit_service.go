package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/postloom/publisher-api/configs"
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/tokenstore"
	"github.com/postloom/publisher-api/internal/transfer"
	"github.com/postloom/publisher-api/pkg/utils"
)

const (
	redditTokenBase = "https://www.reddit.com"
	redditOAuthBase = "https://oauth.reddit.com"

	// Reddit tokens live an hour; refresh once inside the last five
	// minutes, anchored to the record's update time.
	redditExpiryBuffer = 5 * time.Minute
)

type redditService struct {
	cfg       config.Config
	store     *tokenstore.Store
	http      *http.Client
	tokenBase string
	oauthBase string
}

func NewRedditService(cfg config.Config, store *tokenstore.Store, client *http.Client) Connector {
	if client == nil {
		client = newHTTPClient()
	}
	return &redditService{
		cfg:       cfg,
		store:     store,
		http:      client,
		tokenBase: redditTokenBase,
		oauthBase: redditOAuthBase,
	}
}

func (s *redditService) SetAccessToken(ctx context.Context, accountID int64, code, _ string) (*transfer.ConnectResult, error) {
	if s.cfg.Reddit.ClientID == "" || s.cfg.Reddit.ClientSecret == "" || s.cfg.Reddit.RedirectURI == "" {
		return nil, fmt.Errorf("reddit: %w", ErrOAuthConfig)
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", s.cfg.Reddit.RedirectURI)

	token, err := s.tokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}

	identity, err := s.identity(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	subreddits, err := s.listSubreddits(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

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

	record := models.RedditTokenRecord{
		Credentials: models.Credentials{
			AccessToken:  encryptedAccessToken,
			RefreshToken: encryptedRefreshToken,
			ExpiresAt:    GetExpiresAt(token.ExpiresIn),
		},
		Username:   identity.Name,
		Subreddits: subreddits,
	}

	if err := s.store.Put(ctx, accountID, models.ProviderReddit, &record); err != nil {
		return nil, err
	}

	targets := make([]transfer.Target, 0, len(subreddits))
	for _, sr := range subreddits {
		targets = append(targets, transfer.Target{ID: sr, Name: sr, Kind: "subreddit"})
	}

	return &transfer.ConnectResult{
		Provider: models.ProviderReddit,
		Message:  fmt.Sprintf("Reddit connected as u/%s with %d subreddit(s)", identity.Name, len(subreddits)),
		Targets:  targets,
	}, nil
}

func (s *redditService) tokenRequest(ctx context.Context, data url.Values) (*transfer.RedditTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", s.tokenBase+"/api/v1/access_token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.cfg.Reddit.ClientID, s.cfg.Reddit.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.cfg.RedditUserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("reddit token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reddit token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var token transfer.RedditTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding reddit token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("reddit token endpoint returned no access token")
	}
	return &token, nil
}

func (s *redditService) identity(ctx context.Context, accessToken string) (*transfer.RedditIdentity, error) {
	var identity transfer.RedditIdentity
	if err := s.getJSON(ctx, s.oauthBase+"/api/v1/me", accessToken, &identity); err != nil {
		return nil, fmt.Errorf("fetching reddit identity: %w", err)
	}
	return &identity, nil
}

func (s *redditService) listSubreddits(ctx context.Context, accessToken string) ([]string, error) {
	var listing transfer.RedditSubredditListing
	if err := s.getJSON(ctx, s.oauthBase+"/subreddits/mine/subscriber?limit=100", accessToken, &listing); err != nil {
		return nil, fmt.Errorf("listing subreddits: %w", err)
	}

	subreddits := make([]string, 0, len(listing.Data.Children))
	for _, c := range listing.Data.Children {
		subreddits = append(subreddits, c.Data.DisplayName)
	}
	return subreddits, nil
}

func (s *redditService) CheckConnectionStatus(ctx context.Context, accountID int64) bool {
	var record models.RedditTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderReddit, &record)
	if err != nil || !found {
		return false
	}
	if record.AccessToken == "" || record.SelectedSubreddit == "" {
		return false
	}
	if !record.ExpiresWithin(redditExpiryBuffer) {
		return true
	}
	return s.refresh(ctx, accountID, &record) == nil
}

func (s *redditService) refresh(ctx context.Context, accountID int64, record *models.RedditTokenRecord) error {
	if record.RefreshToken == "" {
		return fmt.Errorf("reddit: no refresh token stored")
	}

	refreshToken, err := utils.Decrypt(record.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	token, err := s.tokenRequest(ctx, data)
	if err != nil {
		slog.Info("reddit token refresh failed", "account_id", accountID, "error", err.Error())
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
	record.ExpiresAt = GetExpiresAt(token.ExpiresIn)

	return s.store.Put(ctx, accountID, models.ProviderReddit, record)
}

func (s *redditService) Logout(ctx context.Context, accountID int64) (bool, error) {
	if err := s.store.Delete(ctx, accountID, models.ProviderReddit); err != nil {
		return false, err
	}
	return true, nil
}

func (s *redditService) SelectTarget(ctx context.Context, accountID int64, targetID string) error {
	var record models.RedditTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderReddit, &record)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("reddit: %w", ErrNotConnected)
	}

	for _, sr := range record.Subreddits {
		if sr == targetID {
			record.SelectedSubreddit = targetID
			return s.store.Put(ctx, accountID, models.ProviderReddit, &record)
		}
	}
	return fmt.Errorf("subreddit %s: %w", targetID, ErrTargetNotFound)
}

func (s *redditService) SelectedTarget(ctx context.Context, accountID int64) (*transfer.Target, error) {
	var record models.RedditTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderReddit, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.SelectedSubreddit == "" {
		return nil, nil
	}
	return &transfer.Target{ID: record.SelectedSubreddit, Name: record.SelectedSubreddit, Kind: "subreddit"}, nil
}

// Publish submits to the selected subreddit with a default flair
// attached. Subreddits that insist on flairs we cannot satisfy get one
// retry without a flair, and as a last resort the post lands on the
// user's own profile feed instead of failing the publish.
func (s *redditService) Publish(ctx context.Context, accountID int64, post *models.Post) (*transfer.PublishOutcome, error) {
	var record models.RedditTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderReddit, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.AccessToken == "" {
		return nil, fmt.Errorf("reddit: %w", ErrNotConnected)
	}
	if record.SelectedSubreddit == "" {
		return nil, fmt.Errorf("reddit: %w", ErrNoTargetSelected)
	}

	// A token inside its refresh window gets renewed before the submit
	// so the post never goes out on stale credentials.
	if record.ExpiresWithin(redditExpiryBuffer) {
		if err := s.refresh(ctx, accountID, &record); err != nil {
			return nil, fmt.Errorf("reddit: %w", ErrSessionExpired)
		}
	}

	accessToken, err := utils.Decrypt(record.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	subreddit := record.SelectedSubreddit

	flairID := ""
	if flairs, err := s.linkFlairs(ctx, accessToken, subreddit); err == nil && len(flairs) > 0 {
		flairID = flairs[0].ID
	}

	submitted, err := s.submit(ctx, accessToken, subreddit, post, flairID)
	if err != nil {
		return nil, err
	}

	if submitted.HasError(transfer.RedditFlairRequiredError) && flairID == "" {
		// Flair fetch produced nothing usable; retry is pointless,
		// go straight to the profile feed.
		return s.submitToProfile(ctx, accessToken, record.Username, post)
	}

	if submitted.HasError(transfer.RedditFlairRequiredError) {
		slog.Info("subreddit rejected flair, retrying without one", "subreddit", subreddit, "post_id", post.ID)
		submitted, err = s.submit(ctx, accessToken, subreddit, post, "")
		if err != nil {
			return nil, err
		}
		if submitted.HasError(transfer.RedditFlairRequiredError) {
			return s.submitToProfile(ctx, accessToken, record.Username, post)
		}
	}

	if len(submitted.JSON.Errors) > 0 {
		return nil, fmt.Errorf("reddit rejected submission: %v", submitted.JSON.Errors)
	}

	return &transfer.PublishOutcome{
		ExternalID: submitted.JSON.Data.ID,
		URL:        submitted.JSON.Data.URL,
	}, nil
}

func (s *redditService) submitToProfile(ctx context.Context, accessToken, username string, post *models.Post) (*transfer.PublishOutcome, error) {
	profile := "u_" + username
	slog.Info("falling back to profile submission", "profile", profile, "post_id", post.ID)

	submitted, err := s.submit(ctx, accessToken, profile, post, "")
	if err != nil {
		return nil, err
	}
	if len(submitted.JSON.Errors) > 0 {
		return nil, fmt.Errorf("reddit rejected profile submission: %v", submitted.JSON.Errors)
	}

	return &transfer.PublishOutcome{
		ExternalID: submitted.JSON.Data.ID,
		URL:        submitted.JSON.Data.URL,
	}, nil
}

func (s *redditService) linkFlairs(ctx context.Context, accessToken, subreddit string) ([]transfer.RedditFlair, error) {
	var flairs []transfer.RedditFlair
	if err := s.getJSON(ctx, s.oauthBase+"/r/"+subreddit+"/api/link_flair_v2", accessToken, &flairs); err != nil {
		return nil, err
	}
	return flairs, nil
}

func (s *redditService) submit(ctx context.Context, accessToken, subreddit string, post *models.Post, flairID string) (*transfer.RedditSubmitResponse, error) {
	data := url.Values{}
	data.Set("sr", subreddit)
	data.Set("title", post.Title)
	data.Set("api_type", "json")
	if post.Link != "" {
		data.Set("kind", "link")
		data.Set("url", post.Link)
	} else {
		data.Set("kind", "self")
		data.Set("text", composeMessage(post))
	}
	if flairID != "" {
		data.Set("flair_id", flairID)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.oauthBase+"/api/submit", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.cfg.RedditUserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reddit submit returned %d: %s", resp.StatusCode, body)
	}

	var submitted transfer.RedditSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return nil, fmt.Errorf("decoding reddit submit response: %w", err)
	}
	return &submitted, nil
}

func (s *redditService) getJSON(ctx context.Context, reqURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", s.cfg.RedditUserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
