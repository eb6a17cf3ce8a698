package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	config "github.com/postloom/publisher-api/configs"
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/tokenstore"
)

func testConfig() config.Config {
	oauth := config.OAuthClient{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/callback",
	}
	return config.Config{
		AppEnv:          "test",
		Facebook:        oauth,
		Instagram:       oauth,
		LinkedIn:        oauth,
		Reddit:          oauth,
		RedditUserAgent: "publisher-api-test/0.1",
		Pinterest:       oauth,
		X:               oauth,
		Blog:            oauth,
		BlogAPIBaseURL:  "https://blog.example.com",
		SecretKey:       "0123456789abcdef0123456789abcdef",
	}
}

// memAccountRepo keeps the account token map in memory, handing out
// copies the way a database read would.
type memAccountRepo struct {
	mu     sync.Mutex
	tokens map[int64]map[string]json.RawMessage
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{tokens: make(map[int64]map[string]json.RawMessage)}
}

func (r *memAccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return &models.Account{ID: id}, nil
}

func (r *memAccountRepo) GetProviderTokens(ctx context.Context, accountID int64) (map[string]json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]json.RawMessage, len(r.tokens[accountID]))
	for k, v := range r.tokens[accountID] {
		out[k] = v
	}
	return out, nil
}

func (r *memAccountRepo) SetProviderTokens(ctx context.Context, accountID int64, tokens map[string]json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := make(map[string]json.RawMessage, len(tokens))
	for k, v := range tokens {
		stored[k] = v
	}
	r.tokens[accountID] = stored
	return nil
}

func (r *memAccountRepo) ListAccountsWithTokens(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int64
	for id, t := range r.tokens {
		if len(t) > 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func newTestStore() (*tokenstore.Store, *memAccountRepo) {
	repo := newMemAccountRepo()
	return tokenstore.New(repo), repo
}

type memPostRepo struct {
	mu    sync.Mutex
	posts map[int64]*models.Post
}

func newMemPostRepo(posts ...*models.Post) *memPostRepo {
	r := &memPostRepo{posts: make(map[int64]*models.Post)}
	for _, p := range posts {
		cp := *p
		r.posts[p.ID] = &cp
	}
	return r
}

func (r *memPostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memPostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := int64(len(r.posts) + 1)
	cp := *post
	cp.ID = id
	r.posts[id] = &cp
	return id, nil
}

func (r *memPostRepo) ListByAccountID(ctx context.Context, accountID int64) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Post
	for _, p := range r.posts {
		if p.AccountID == accountID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memPostRepo) UpdateState(ctx context.Context, state string, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[postID]
	if !ok {
		return errors.New("post not found")
	}
	p.State = state
	return nil
}

func (r *memPostRepo) MarkPublished(ctx context.Context, postID int64, externalID, publishedURL string, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[postID]
	if !ok {
		return errors.New("post not found")
	}
	p.State = models.PostStatePosted
	p.PostIDInProvider = externalID
	p.PublishedURL = publishedURL
	p.PublishedAt = publishedAt
	return nil
}

type memRecommendationRepo struct {
	mu    sync.Mutex
	urls  map[int64][]string
	fail  error
	calls int
}

func newMemRecommendationRepo() *memRecommendationRepo {
	return &memRecommendationRepo{urls: make(map[int64][]string)}
}

func (r *memRecommendationRepo) AddPublishedURL(ctx context.Context, recommendationID int64, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.fail != nil {
		return r.fail
	}
	r.urls[recommendationID] = append(r.urls[recommendationID], url)
	return nil
}

type memHistoryRepo struct {
	mu      sync.Mutex
	entries []*models.PostingHistory
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{}
}

func (r *memHistoryRepo) Create(ctx context.Context, h *models.PostingHistory) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *h
	r.entries = append(r.entries, &cp)
	return int64(len(r.entries)), nil
}
