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

const pinterestAPIBase = "https://api.pinterest.com"

type pinterestService struct {
	cfg     config.Config
	store   *tokenstore.Store
	http    *http.Client
	apiBase string
}

func NewPinterestService(cfg config.Config, store *tokenstore.Store, client *http.Client) Connector {
	if client == nil {
		client = newHTTPClient()
	}
	return &pinterestService{
		cfg:     cfg,
		store:   store,
		http:    client,
		apiBase: pinterestAPIBase,
	}
}

// sandboxMode reports whether connects should bypass the OAuth
// exchange and use the fixed sandbox token. It is an explicit
// environment-conditioned strategy, only ever active outside
// production.
func (s *pinterestService) sandboxMode() bool {
	return s.cfg.AppEnv != "production" && s.cfg.PinterestSandboxToken != ""
}

func (s *pinterestService) SetAccessToken(ctx context.Context, accountID int64, code, _ string) (*transfer.ConnectResult, error) {
	var token *transfer.PinterestTokenResponse

	if s.sandboxMode() {
		slog.Info("pinterest sandbox mode: skipping oauth exchange", "account_id", accountID)
		token = &transfer.PinterestTokenResponse{
			AccessToken: s.cfg.PinterestSandboxToken,
			ExpiresIn:   30 * 24 * 60 * 60,
		}
	} else {
		if s.cfg.Pinterest.ClientID == "" || s.cfg.Pinterest.ClientSecret == "" || s.cfg.Pinterest.RedirectURI == "" {
			return nil, fmt.Errorf("pinterest: %w", ErrOAuthConfig)
		}

		data := url.Values{}
		data.Set("grant_type", "authorization_code")
		data.Set("code", code)
		data.Set("redirect_uri", s.cfg.Pinterest.RedirectURI)

		var err error
		token, err = s.tokenRequest(ctx, data)
		if err != nil {
			return nil, err
		}
	}

	boards, err := s.listBoards(ctx, token.AccessToken)
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

	record := models.PinterestTokenRecord{
		Credentials: models.Credentials{
			AccessToken:  encryptedAccessToken,
			RefreshToken: encryptedRefreshToken,
			ExpiresAt:    GetExpiresAt(token.ExpiresIn),
		},
		Boards: boards,
	}

	if err := s.store.Put(ctx, accountID, models.ProviderPinterest, &record); err != nil {
		return nil, err
	}

	targets := make([]transfer.Target, 0, len(boards))
	for _, b := range boards {
		targets = append(targets, transfer.Target{ID: b.ID, Name: b.Name, Kind: "board"})
	}

	return &transfer.ConnectResult{
		Provider: models.ProviderPinterest,
		Message:  fmt.Sprintf("Pinterest connected with %d board(s)", len(boards)),
		Targets:  targets,
	}, nil
}

func (s *pinterestService) tokenRequest(ctx context.Context, data url.Values) (*transfer.PinterestTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", s.apiBase+"/v5/oauth/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.cfg.Pinterest.ClientID, s.cfg.Pinterest.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("pinterest token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("pinterest token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var token transfer.PinterestTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding pinterest token response: %w", err)
	}
	return &token, nil
}

func (s *pinterestService) listBoards(ctx context.Context, accessToken string) ([]models.PinterestBoard, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.apiBase+"/v5/boards", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing pinterest boards: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("pinterest boards endpoint returned %d: %s", resp.StatusCode, body)
	}

	var list transfer.PinterestBoardList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding pinterest board list: %w", err)
	}

	boards := make([]models.PinterestBoard, len(list.Items))
	for i, b := range list.Items {
		boards[i] = models.PinterestBoard{ID: b.ID, Name: b.Name}
	}
	return boards, nil
}

func (s *pinterestService) CheckConnectionStatus(ctx context.Context, accountID int64) bool {
	var record models.PinterestTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderPinterest, &record)
	if err != nil || !found {
		return false
	}
	if record.AccessToken == "" || record.SelectedBoardID == "" {
		return false
	}
	if !record.ExpiresWithin(0) {
		return true
	}
	return s.refresh(ctx, accountID, &record) == nil
}

func (s *pinterestService) refresh(ctx context.Context, accountID int64, record *models.PinterestTokenRecord) error {
	if record.RefreshToken == "" {
		return fmt.Errorf("pinterest: no refresh token stored")
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
		slog.Info("pinterest token refresh failed", "account_id", accountID, "error", err.Error())
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

	return s.store.Put(ctx, accountID, models.ProviderPinterest, record)
}

func (s *pinterestService) Logout(ctx context.Context, accountID int64) (bool, error) {
	if err := s.store.Delete(ctx, accountID, models.ProviderPinterest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *pinterestService) SelectTarget(ctx context.Context, accountID int64, targetID string) error {
	var record models.PinterestTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderPinterest, &record)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("pinterest: %w", ErrNotConnected)
	}

	for _, b := range record.Boards {
		if b.ID == targetID {
			record.SelectedBoardID = targetID
			return s.store.Put(ctx, accountID, models.ProviderPinterest, &record)
		}
	}
	return fmt.Errorf("pinterest board %s: %w", targetID, ErrTargetNotFound)
}

func (s *pinterestService) SelectedTarget(ctx context.Context, accountID int64) (*transfer.Target, error) {
	var record models.PinterestTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderPinterest, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.SelectedBoardID == "" {
		return nil, nil
	}

	for _, b := range record.Boards {
		if b.ID == record.SelectedBoardID {
			return &transfer.Target{ID: b.ID, Name: b.Name, Kind: "board"}, nil
		}
	}
	return nil, nil
}

func (s *pinterestService) Publish(ctx context.Context, accountID int64, post *models.Post) (*transfer.PublishOutcome, error) {
	if post.ImageURL == "" {
		return nil, fmt.Errorf("pinterest: %w", ErrMissingImage)
	}

	var record models.PinterestTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderPinterest, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.AccessToken == "" {
		return nil, fmt.Errorf("pinterest: %w", ErrNotConnected)
	}
	if record.SelectedBoardID == "" {
		return nil, fmt.Errorf("pinterest: %w", ErrNoTargetSelected)
	}

	// An expired token gets one refresh attempt before the pin create.
	if record.ExpiresWithin(0) {
		if err := s.refresh(ctx, accountID, &record); err != nil {
			return nil, fmt.Errorf("pinterest: %w", ErrSessionExpired)
		}
	}

	accessToken, err := utils.Decrypt(record.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"board_id":    record.SelectedBoardID,
		"title":       post.Title,
		"description": composeMessage(post),
		"media_source": map[string]string{
			"source_type": "image_url",
			"url":         post.ImageURL,
		},
	}
	if post.Link != "" {
		payload["link"] = post.Link
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiBase+"/v5/pins", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinterest pin create: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("pinterest pin create returned %d: %s", resp.StatusCode, respBody)
	}

	var pin transfer.PinterestPinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pin); err != nil {
		return nil, fmt.Errorf("decoding pinterest pin response: %w", err)
	}
	if pin.ID == "" {
		return nil, fmt.Errorf("pinterest returned no pin id")
	}

	return &transfer.PublishOutcome{
		ExternalID: pin.ID,
		URL:        fmt.Sprintf("https://www.pinterest.com/pin/%s/", pin.ID),
	}, nil
}
