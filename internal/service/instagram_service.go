package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	config "github.com/postloom/publisher-api/configs"
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/tokenstore"
	"github.com/postloom/publisher-api/internal/transfer"
	"github.com/postloom/publisher-api/pkg/utils"
)

const (
	instagramTokenURL  = "https://api.instagram.com/oauth/access_token"
	instagramGraphBase = "https://graph.instagram.com"
)

type instagramService struct {
	cfg       config.Config
	store     *tokenstore.Store
	http      *http.Client
	tokenURL  string
	graphBase string
}

// NewInstagramService builds the Instagram connector. Instagram
// long-lived sessions cannot be refreshed here: once the token expires
// the account has to reconnect.
func NewInstagramService(cfg config.Config, store *tokenstore.Store, client *http.Client) Connector {
	if client == nil {
		client = newHTTPClient()
	}
	return &instagramService{
		cfg:       cfg,
		store:     store,
		http:      client,
		tokenURL:  instagramTokenURL,
		graphBase: instagramGraphBase,
	}
}

func (s *instagramService) SetAccessToken(ctx context.Context, accountID int64, code, _ string) (*transfer.ConnectResult, error) {
	if s.cfg.Instagram.ClientID == "" || s.cfg.Instagram.ClientSecret == "" || s.cfg.Instagram.RedirectURI == "" {
		return nil, fmt.Errorf("instagram: %w", ErrOAuthConfig)
	}

	shortLived, err := s.shortLivedToken(ctx, code)
	if err != nil {
		return nil, err
	}

	longLived, err := s.longLivedToken(ctx, shortLived.AccessToken)
	if err != nil {
		return nil, err
	}

	profile, err := s.userInfo(ctx, longLived.AccessToken)
	if err != nil {
		return nil, err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(longLived.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	record := models.InstagramTokenRecord{
		Credentials: models.Credentials{
			AccessToken: encryptedAccessToken,
			ExpiresAt:   GetExpiresAt(longLived.ExpiresIn),
		},
		Profiles: []models.InstagramProfile{
			{ID: profile.UserID, Username: profile.Username},
		},
	}

	if err := s.store.Put(ctx, accountID, models.ProviderInstagram, &record); err != nil {
		return nil, err
	}

	targets := make([]transfer.Target, 0, len(record.Profiles))
	for _, p := range record.Profiles {
		targets = append(targets, transfer.Target{ID: p.ID, Name: p.Username, Kind: "profile"})
	}

	return &transfer.ConnectResult{
		Provider: models.ProviderInstagram,
		Message:  fmt.Sprintf("Instagram connected as @%s", profile.Username),
		Targets:  targets,
	}, nil
}

func (s *instagramService) shortLivedToken(ctx context.Context, code string) (*transfer.InstagramTokenResponse, error) {
	data := url.Values{}
	data.Set("client_id", s.cfg.Instagram.ClientID)
	data.Set("client_secret", s.cfg.Instagram.ClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", s.cfg.Instagram.RedirectURI)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, "POST", s.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("instagram code exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("instagram token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var token transfer.InstagramTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("decoding instagram token response: %w", err)
	}
	return &token, nil
}

func (s *instagramService) longLivedToken(ctx context.Context, shortLivedToken string) (*transfer.InstagramLongLivedTokenResponse, error) {
	reqURL := fmt.Sprintf(
		"%s/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		s.graphBase, s.cfg.Instagram.ClientSecret, shortLivedToken,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("instagram long-lived exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("instagram long-lived exchange returned %d: %s", resp.StatusCode, body)
	}

	var token transfer.InstagramLongLivedTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("decoding instagram long-lived token: %w", err)
	}
	return &token, nil
}

func (s *instagramService) userInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	reqURL := fmt.Sprintf("%s/me?fields=id,username,name&access_token=%s", s.graphBase, accessToken)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var info transfer.InstagramUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &info, nil
}

// CheckConnectionStatus compares the stored expiry directly: Instagram
// sessions are not refreshed, they simply expire.
func (s *instagramService) CheckConnectionStatus(ctx context.Context, accountID int64) bool {
	var record models.InstagramTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderInstagram, &record)
	if err != nil || !found {
		return false
	}
	if record.AccessToken == "" || record.SelectedProfileID == "" {
		return false
	}
	return !record.ExpiresWithin(0)
}

func (s *instagramService) Logout(ctx context.Context, accountID int64) (bool, error) {
	if err := s.store.Delete(ctx, accountID, models.ProviderInstagram); err != nil {
		return false, err
	}
	return true, nil
}

func (s *instagramService) SelectTarget(ctx context.Context, accountID int64, targetID string) error {
	var record models.InstagramTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderInstagram, &record)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("instagram: %w", ErrNotConnected)
	}

	for _, p := range record.Profiles {
		if p.ID == targetID {
			record.SelectedProfileID = targetID
			return s.store.Put(ctx, accountID, models.ProviderInstagram, &record)
		}
	}
	return fmt.Errorf("instagram profile %s: %w", targetID, ErrTargetNotFound)
}

func (s *instagramService) SelectedTarget(ctx context.Context, accountID int64) (*transfer.Target, error) {
	var record models.InstagramTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderInstagram, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.SelectedProfileID == "" {
		return nil, nil
	}

	for _, p := range record.Profiles {
		if p.ID == record.SelectedProfileID {
			return &transfer.Target{ID: p.ID, Name: p.Username, Kind: "profile"}, nil
		}
	}
	return nil, nil
}

// Publish runs Instagram's two-phase flow: create a media container,
// then publish the container id. Text-only posts are impossible.
func (s *instagramService) Publish(ctx context.Context, accountID int64, post *models.Post) (*transfer.PublishOutcome, error) {
	if post.ImageURL == "" {
		return nil, fmt.Errorf("instagram: %w", ErrMissingImage)
	}

	var record models.InstagramTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderInstagram, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.AccessToken == "" {
		return nil, fmt.Errorf("instagram: %w", ErrNotConnected)
	}
	if record.SelectedProfileID == "" {
		return nil, fmt.Errorf("instagram: %w", ErrNoTargetSelected)
	}

	// No refresh grant exists: an expired session means reconnecting,
	// not a doomed publish attempt.
	if record.ExpiresWithin(0) {
		return nil, fmt.Errorf("instagram: %w", ErrSessionExpired)
	}

	accessToken, err := utils.Decrypt(record.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	containerID, err := s.createContainer(ctx, record.SelectedProfileID, post, accessToken)
	if err != nil {
		return nil, err
	}

	mediaID, err := s.publishContainer(ctx, record.SelectedProfileID, containerID, accessToken)
	if err != nil {
		return nil, err
	}

	permalink, err := s.permalink(ctx, mediaID, accessToken)
	if err != nil {
		return nil, err
	}

	return &transfer.PublishOutcome{ExternalID: mediaID, URL: permalink}, nil
}

func (s *instagramService) createContainer(ctx context.Context, profileID string, post *models.Post, accessToken string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s/%s/media", s.graphBase, facebookGraphVersion, profileID)
	payload := map[string]interface{}{
		"image_url":    post.ImageURL,
		"caption":      composeMessage(post),
		"access_token": accessToken,
	}

	var result transfer.InstagramMediaResponse
	if err := s.postJSON(ctx, reqURL, payload, &result); err != nil {
		return "", fmt.Errorf("instagram media container: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("instagram returned no container id")
	}
	return result.ID, nil
}

func (s *instagramService) publishContainer(ctx context.Context, profileID, containerID, accessToken string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s/%s/media_publish", s.graphBase, facebookGraphVersion, profileID)
	payload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": accessToken,
	}

	var result transfer.InstagramMediaResponse
	if err := s.postJSON(ctx, reqURL, payload, &result); err != nil {
		return "", fmt.Errorf("instagram media publish: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("instagram returned no media id")
	}
	return result.ID, nil
}

func (s *instagramService) permalink(ctx context.Context, mediaID, accessToken string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s", s.graphBase, mediaID, accessToken)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("instagram permalink fetch: %w", err)
	}
	defer resp.Body.Close()

	var result transfer.InstagramPermalinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding instagram permalink: %w", err)
	}
	return result.Permalink, nil
}

func (s *instagramService) postJSON(ctx context.Context, reqURL string, payload map[string]interface{}, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
