package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	fb "github.com/huandu/facebook/v2"
	config "github.com/postloom/publisher-api/configs"
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/tokenstore"
	"github.com/postloom/publisher-api/internal/transfer"
	"github.com/postloom/publisher-api/pkg/utils"
)

// Facebook sessions outlive access tokens by months, so the refresh
// buffer is generous: any token inside its last week gets re-exchanged
// for a fresh long-lived one.
const facebookExpiryBuffer = 7 * 24 * time.Hour

const facebookGraphVersion = "v21.0"

type facebookService struct {
	cfg   config.Config
	store *tokenstore.Store
	app   *fb.App
	http  *http.Client
}

func NewFacebookService(cfg config.Config, store *tokenstore.Store, client *http.Client) Connector {
	if client == nil {
		client = newHTTPClient()
	}
	return &facebookService{
		cfg:   cfg,
		store: store,
		app:   fb.New(cfg.Facebook.ClientID, cfg.Facebook.ClientSecret),
		http:  client,
	}
}

func (s *facebookService) session(token string) *fb.Session {
	sess := s.app.Session(token)
	sess.Version = facebookGraphVersion
	sess.HttpClient = s.http
	return sess
}

func (s *facebookService) SetAccessToken(ctx context.Context, accountID int64, code, _ string) (*transfer.ConnectResult, error) {
	if s.cfg.Facebook.ClientID == "" || s.cfg.Facebook.ClientSecret == "" || s.cfg.Facebook.RedirectURI == "" {
		return nil, fmt.Errorf("facebook: %w", ErrOAuthConfig)
	}

	sess := s.session("").WithContext(ctx)
	res, err := sess.Get("/oauth/access_token", fb.Params{
		"client_id":     s.cfg.Facebook.ClientID,
		"client_secret": s.cfg.Facebook.ClientSecret,
		"redirect_uri":  s.cfg.Facebook.RedirectURI,
		"code":          code,
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("facebook code exchange: %w", err)
	}

	var token transfer.FacebookTokenResponse
	if err := res.Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding facebook token response: %w", err)
	}

	pages, err := s.listPages(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	record := models.FacebookTokenRecord{
		Credentials: models.Credentials{
			AccessToken: encryptedAccessToken,
			ExpiresAt:   GetExpiresAt(token.ExpiresIn),
		},
		Pages: pages,
	}

	if err := s.store.Put(ctx, accountID, models.ProviderFacebook, &record); err != nil {
		return nil, err
	}

	targets := make([]transfer.Target, 0, len(pages))
	for _, p := range pages {
		targets = append(targets, transfer.Target{ID: p.ID, Name: p.Name, Kind: "page"})
	}

	return &transfer.ConnectResult{
		Provider: models.ProviderFacebook,
		Message:  fmt.Sprintf("Facebook connected with %d page(s)", len(pages)),
		Targets:  targets,
	}, nil
}

func (s *facebookService) listPages(ctx context.Context, accessToken string) ([]models.FacebookPage, error) {
	sess := s.session(accessToken).WithContext(ctx)
	res, err := sess.Get("/me/accounts", fb.Params{"fields": "id,name"})
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("listing facebook pages: %w", err)
	}

	var list transfer.FacebookPageList
	if err := res.Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding facebook page list: %w", err)
	}

	pages := make([]models.FacebookPage, len(list.Data))
	for i, p := range list.Data {
		pages[i] = models.FacebookPage{ID: p.ID, Name: p.Name}
	}

	// Profile pictures are decoration: fetch them in parallel and
	// leave the field empty for any page whose fetch fails.
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5)

	for i := range pages {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			picture, err := s.pagePicture(ctx, accessToken, pages[i].ID)
			if err != nil {
				slog.Info("fetching page picture", "page_id", pages[i].ID, "error", err.Error())
				return
			}
			pages[i].Picture = picture
		}(i)
	}
	wg.Wait()

	return pages, nil
}

func (s *facebookService) pagePicture(ctx context.Context, accessToken, pageID string) (string, error) {
	sess := s.session(accessToken).WithContext(ctx)
	res, err := sess.Get("/"+pageID+"/picture", fb.Params{"redirect": false})
	if err != nil {
		return "", err
	}

	var picture transfer.FacebookPagePicture
	if err := res.Decode(&picture); err != nil {
		return "", err
	}
	return picture.Data.URL, nil
}

func (s *facebookService) CheckConnectionStatus(ctx context.Context, accountID int64) bool {
	var record models.FacebookTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderFacebook, &record)
	if err != nil || !found {
		return false
	}
	if record.AccessToken == "" || record.SelectedPageID == "" {
		return false
	}
	if !record.ExpiresWithin(facebookExpiryBuffer) {
		return true
	}
	return s.refresh(ctx, accountID, &record) == nil
}

// refresh exchanges the stored token for a fresh long-lived one and
// persists it, updating the record in place.
func (s *facebookService) refresh(ctx context.Context, accountID int64, record *models.FacebookTokenRecord) error {
	accessToken, err := utils.Decrypt(record.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	sess := s.session("").WithContext(ctx)
	res, err := sess.Get("/oauth/access_token", fb.Params{
		"grant_type":        "fb_exchange_token",
		"client_id":         s.cfg.Facebook.ClientID,
		"client_secret":     s.cfg.Facebook.ClientSecret,
		"fb_exchange_token": accessToken,
	})
	if err != nil {
		slog.Info("facebook token refresh failed", "account_id", accountID, "error", err.Error())
		return err
	}

	var token transfer.FacebookTokenResponse
	if err := res.Decode(&token); err != nil {
		return fmt.Errorf("decoding facebook token response: %w", err)
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	record.AccessToken = encryptedAccessToken
	record.ExpiresAt = GetExpiresAt(token.ExpiresIn)

	return s.store.Put(ctx, accountID, models.ProviderFacebook, record)
}

func (s *facebookService) Logout(ctx context.Context, accountID int64) (bool, error) {
	if err := s.store.Delete(ctx, accountID, models.ProviderFacebook); err != nil {
		return false, err
	}
	return true, nil
}

func (s *facebookService) SelectTarget(ctx context.Context, accountID int64, targetID string) error {
	var record models.FacebookTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderFacebook, &record)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("facebook: %w", ErrNotConnected)
	}

	for _, p := range record.Pages {
		if p.ID == targetID {
			record.SelectedPageID = targetID
			return s.store.Put(ctx, accountID, models.ProviderFacebook, &record)
		}
	}
	return fmt.Errorf("facebook page %s: %w", targetID, ErrTargetNotFound)
}

func (s *facebookService) SelectedTarget(ctx context.Context, accountID int64) (*transfer.Target, error) {
	var record models.FacebookTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderFacebook, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.SelectedPageID == "" {
		return nil, nil
	}

	for _, p := range record.Pages {
		if p.ID == record.SelectedPageID {
			return &transfer.Target{ID: p.ID, Name: p.Name, Kind: "page"}, nil
		}
	}
	return nil, nil
}

func (s *facebookService) Publish(ctx context.Context, accountID int64, post *models.Post) (*transfer.PublishOutcome, error) {
	var record models.FacebookTokenRecord
	found, err := s.store.Get(ctx, accountID, models.ProviderFacebook, &record)
	if err != nil {
		return nil, err
	}
	if !found || record.AccessToken == "" {
		return nil, fmt.Errorf("facebook: %w", ErrNotConnected)
	}
	if record.SelectedPageID == "" {
		return nil, fmt.Errorf("facebook: %w", ErrNoTargetSelected)
	}

	// A token inside its refresh window gets re-exchanged before the
	// publish so the post never goes out on stale credentials.
	if record.ExpiresWithin(facebookExpiryBuffer) {
		if err := s.refresh(ctx, accountID, &record); err != nil {
			return nil, fmt.Errorf("facebook: %w", ErrSessionExpired)
		}
	}

	userToken, err := utils.Decrypt(record.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	// Page tokens are short-lived; derive one per publish from the
	// stored user token.
	pageToken, err := s.pageAccessToken(ctx, userToken, record.SelectedPageID)
	if err != nil {
		return nil, err
	}

	sess := s.session(pageToken).WithContext(ctx)
	message := composeMessage(post)

	var created struct {
		ID     string `facebook:"id"`
		PostID string `facebook:"post_id"`
	}

	if post.ImageURL != "" {
		res, err := sess.Post("/"+record.SelectedPageID+"/photos", fb.Params{
			"url":     post.ImageURL,
			"caption": message,
		})
		if err != nil {
			return nil, fmt.Errorf("facebook photo publish: %w", err)
		}
		if err := res.Decode(&created); err != nil {
			return nil, fmt.Errorf("decoding facebook photo response: %w", err)
		}
		if created.PostID != "" {
			created.ID = created.PostID
		}
	} else {
		res, err := sess.Post("/"+record.SelectedPageID+"/feed", fb.Params{
			"message": message,
		})
		if err != nil {
			return nil, fmt.Errorf("facebook feed publish: %w", err)
		}
		if err := res.Decode(&created); err != nil {
			return nil, fmt.Errorf("decoding facebook feed response: %w", err)
		}
	}

	if created.ID == "" {
		return nil, fmt.Errorf("facebook returned no post id")
	}

	return &transfer.PublishOutcome{
		ExternalID: created.ID,
		URL:        facebookPostURL(record.SelectedPageID, created.ID),
	}, nil
}

func (s *facebookService) pageAccessToken(ctx context.Context, userToken, pageID string) (string, error) {
	sess := s.session(userToken).WithContext(ctx)
	res, err := sess.Get("/"+pageID, fb.Params{"fields": "access_token"})
	if err != nil {
		return "", fmt.Errorf("facebook page token exchange: %w", err)
	}

	var page struct {
		AccessToken string `facebook:"access_token"`
	}
	if err := res.Decode(&page); err != nil {
		return "", fmt.Errorf("decoding facebook page token: %w", err)
	}
	if page.AccessToken == "" {
		return "", fmt.Errorf("facebook page token exchange returned no token")
	}
	return page.AccessToken, nil
}

// facebookPostURL resolves the public permalink from Graph's compound
// "{pageID}_{postID}" identifier.
func facebookPostURL(pageID, graphID string) string {
	if i := strings.Index(graphID, "_"); i >= 0 {
		return fmt.Sprintf("https://facebook.com/%s/posts/%s", pageID, graphID[i+1:])
	}
	return fmt.Sprintf("https://facebook.com/%s/posts/%s", pageID, graphID)
}
