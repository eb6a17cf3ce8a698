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
	"sync"

	config "github.com/postloom/publisher-api/configs"
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/tokenstore"
	"github.com/postloom/publisher-api/internal/transfer"
	"github.com/postloom/publisher-api/pkg/utils"
)

const (
	linkedinTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
	linkedinAPIBase  = "https://api.linkedin.com"
)

type linkedinService struct {
	cfg      config.Config
	store    *tokenstore.Store
	http     *http.Client
	tokenURL string
	apiBase  string
}

// NewLinkedInService builds the LinkedIn connector. LinkedIn sessions
// are not refreshable; an expired token means reconnecting.
func NewLinkedInService(cfg config.Config, store *tokenstore.Store, client *http.Client) Connector {
	if client == nil {
		client = newHTTPClient()
	}
	return &linkedinService{
		cfg:      cfg,
		store:    store,
		http:     client,
		tokenURL: linkedinTokenURL,
		apiBase:  linkedinAPIBase,
	}
}

func (s *linkedinService) SetAccessToken(ctx context.Context, accountID int64, code, _ string) (*transfer.ConnectResult, error) {
	if s.cfg.LinkedIn.ClientID == "" || s.cfg.LinkedIn.ClientSecret == "" || s.cfg.LinkedIn.RedirectURI == "" {
		return nil, fmt.Errorf("linkedin: %w", ErrOAuthConfig)
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", s.cfg.LinkedIn.RedirectURI)
	data.Set("client_id", s.cfg.LinkedIn.ClientID)
	data.Set("client_secret", s.cfg.LinkedIn.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, "POST", s.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("linkedin code exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("linkedin token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var token transfer.LinkedInTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding linkedin token response: %w", err)
	}

	organizations, err := s.listOrganizations(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	record := models.LinkedInTokenRecord{
		Credentials: models.Credentials{
			AccessToken: encryptedAccessToken,
			ExpiresAt:   GetExpiresAt(token.ExpiresIn),
		},
		Organizations: organizations,
	}

	if err := s.store.Put(ctx, accountID, models.ProviderLinkedIn, &record); err != nil {
		return nil, err
	}

	targets := make([]transfer.Target, 0, len(organizations))
	for _, o := range organizations {
		targets = append(targets, transfer.Target{ID: o.URN, Name: o.Name, Kind: "organization"})
	}

	return &transfer.ConnectResult{
		Provider: models.ProviderLinkedIn,
		Message:  fmt.Sprintf("LinkedIn connected with %d organization(s)", len(organizations)),
		Targets:  targets,
	}, nil
}

func (s *linkedinService) listOrganizations(ctx context.Context, accessToken string) ([]models.LinkedInOrganization, error) {
	reqURL := s.apiBase + "/v2/organizationalEntityAcls?q=roleAssignee&role=ADMINISTRATOR&state=APPROVED"

	var acls transfer.LinkedInOrganizationAcls
	if err := s.getJSON(ctx, reqURL, accessToken, &acls); err != nil {
		return nil, fmt.Errorf("listing linkedin organizations: %w", err)
	}

	orgs := make([]models.LinkedInOrganization, len(acls.Elements))
	for i, e := range acls.Elements {
		orgs[i] = models.LinkedInOrganization{URN: e.OrganizationalTarget, Name: e.OrganizationalTarget}
	}

	// Resolve display names in parallel; a failed lookup keeps the URN
	// as the name rather than failing the batch.
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5)

	for i := range orgs {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			id := orgs[i].URN
			if j := strings.LastIndex(id, ":"); j >= 0 {
				id = id[j+1:]
			}

			var info transfer.LinkedInOrganizationInfo
			if err := s.getJSON(ctx, s.apiBase+"/v2/organizations/"+id, accessToken, &info); err != nil {
				slog.Info("fetching linkedin organization name", "urn", orgs[i].URN, "error", err.Error())
				return
			}
			if info.LocalizedName != "" {
				orgs[i].Name = info.LocalizedName
			}
		}(i)
	}
	wg.Wait()

	return orgs, nil
}

// CheckConnectionStatus does a direct expiry comparison: LinkedIn has
// no refresh grant here, the session simply expires.
func (s *linkedinService) CheckConnectionStatus(ctx context.Context, accountID int64) bool {
	var record models.LinkedInTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderLinkedIn, &record)
	if err != nil || !found {
		return false
	}
	if record.AccessToken == "" || len(record.Organizations) == 0 {
		return false
	}
	return !record.ExpiresWithin(0)
}

func (s *linkedinService) Logout(ctx context.Context, accountID int64) (bool, error) {
	if err := s.store.Delete(ctx, accountID, models.ProviderLinkedIn); err != nil {
		return false, err
	}
	return true, nil
}

func (s *linkedinService) SelectTarget(ctx context.Context, accountID int64, targetID string) error {
	var record models.LinkedInTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderLinkedIn, &record)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("linkedin: %w", ErrNotConnected)
	}

	for _, o := range record.Organizations {
		if o.URN == targetID {
			record.SelectedOrganizationURN = targetID
			return s.store.Put(ctx, accountID, models.ProviderLinkedIn, &record)
		}
	}
	return fmt.Errorf("linkedin organization %s: %w", targetID, ErrTargetNotFound)
}

func (s *linkedinService) SelectedTarget(ctx context.Context, accountID int64) (*transfer.Target, error) {
	var record models.LinkedInTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderLinkedIn, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.SelectedOrganizationURN == "" {
		return nil, nil
	}

	for _, o := range record.Organizations {
		if o.URN == record.SelectedOrganizationURN {
			return &transfer.Target{ID: o.URN, Name: o.Name, Kind: "organization"}, nil
		}
	}
	return nil, nil
}

func (s *linkedinService) Publish(ctx context.Context, accountID int64, post *models.Post) (*transfer.PublishOutcome, error) {
	var record models.LinkedInTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderLinkedIn, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.AccessToken == "" {
		return nil, fmt.Errorf("linkedin: %w", ErrNotConnected)
	}

	// No refresh grant exists: an expired session means reconnecting,
	// not a doomed publish attempt.
	if record.ExpiresWithin(0) {
		return nil, fmt.Errorf("linkedin: %w", ErrSessionExpired)
	}

	// No explicit selection defaults to the first enumerated
	// organization.
	author := record.SelectedOrganizationURN
	if author == "" {
		if len(record.Organizations) == 0 {
			return nil, fmt.Errorf("linkedin: %w", ErrNoTargetSelected)
		}
		author = record.Organizations[0].URN
	}

	accessToken, err := utils.Decrypt(record.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	shareContent := map[string]interface{}{
		"shareCommentary":    map[string]string{"text": composeMessage(post)},
		"shareMediaCategory": "NONE",
	}

	if post.ImageURL != "" {
		assetURN, err := s.uploadImage(ctx, accessToken, author, post.ImageURL)
		if err != nil {
			return nil, err
		}
		shareContent["shareMediaCategory"] = "IMAGE"
		shareContent["media"] = []map[string]interface{}{
			{"status": "READY", "media": assetURN},
		}
	}

	payload := map[string]interface{}{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var share transfer.LinkedInShareResponse
	if err := s.postJSON(ctx, s.apiBase+"/v2/ugcPosts", accessToken, payload, &share); err != nil {
		return nil, fmt.Errorf("linkedin share: %w", err)
	}
	if share.ID == "" {
		return nil, fmt.Errorf("linkedin returned no share id")
	}

	return &transfer.PublishOutcome{
		ExternalID: share.ID,
		URL:        fmt.Sprintf("https://www.linkedin.com/feed/update/%s", share.ID),
	}, nil
}

// uploadImage runs LinkedIn's three-step asset flow: register an
// upload, PUT the binary, reference the asset URN in the share.
func (s *linkedinService) uploadImage(ctx context.Context, accessToken, owner, imageURL string) (string, error) {
	registerPayload := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   owner,
			"serviceRelationships": []map[string]string{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}

	var registered transfer.LinkedInRegisterUploadResponse
	if err := s.postJSON(ctx, s.apiBase+"/v2/assets?action=registerUpload", accessToken, registerPayload, &registered); err != nil {
		return "", fmt.Errorf("linkedin upload registration: %w", err)
	}

	uploadURL := registered.Value.UploadMechanism.MediaUploadHTTPRequest.UploadURL
	assetURN := registered.Value.Asset
	if uploadURL == "" || assetURN == "" {
		return "", fmt.Errorf("linkedin upload registration returned no upload url")
	}

	imageBytes, err := s.fetchImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", uploadURL, bytes.NewReader(imageBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("linkedin binary upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("linkedin binary upload returned %d: %s", resp.StatusCode, body)
	}

	return assetURN, nil
}

func (s *linkedinService) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching post image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching post image returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *linkedinService) getJSON(ctx context.Context, reqURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

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

func (s *linkedinService) postJSON(ctx context.Context, reqURL, accessToken string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
