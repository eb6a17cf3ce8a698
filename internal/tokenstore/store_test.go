package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func TestPutGetRoundTrip(t *testing.T) {
	store := New(newMemAccountRepo())
	ctx := context.Background()

	in := &models.RedditTokenRecord{
		Credentials: models.Credentials{AccessToken: "enc-token", ExpiresAt: time.Now().Add(time.Hour)},
		Username:    "someone",
		Subreddits:  []string{"golang", "programming"},
	}
	require.NoError(t, store.Put(ctx, 1, models.ProviderReddit, in))
	assert.False(t, in.UpdatedAt.IsZero(), "Put should stamp the mutation time")

	var out models.RedditTokenRecord
	found, err := store.Get(ctx, 1, models.ProviderReddit, &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "enc-token", out.AccessToken)
	assert.Equal(t, "someone", out.Username)
	assert.Equal(t, []string{"golang", "programming"}, out.Subreddits)
}

func TestGetMissingProvider(t *testing.T) {
	store := New(newMemAccountRepo())

	var out models.XTokenRecord
	found, err := store.Get(context.Background(), 1, models.ProviderX, &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := New(newMemAccountRepo())
	ctx := context.Background()

	rec := &models.XTokenRecord{Credentials: models.Credentials{AccessToken: "enc"}}
	require.NoError(t, store.Put(ctx, 1, models.ProviderX, rec))

	require.NoError(t, store.Delete(ctx, 1, models.ProviderX))
	require.NoError(t, store.Delete(ctx, 1, models.ProviderX))

	var out models.XTokenRecord
	found, err := store.Get(ctx, 1, models.ProviderX, &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestProvidersAreIsolatedPerAccount(t *testing.T) {
	store := New(newMemAccountRepo())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, 1, models.ProviderX, &models.XTokenRecord{Credentials: models.Credentials{AccessToken: "x"}}))
	require.NoError(t, store.Put(ctx, 1, models.ProviderReddit, &models.RedditTokenRecord{Credentials: models.Credentials{AccessToken: "r"}}))
	require.NoError(t, store.Delete(ctx, 1, models.ProviderX))

	var out models.RedditTokenRecord
	found, err := store.Get(ctx, 1, models.ProviderReddit, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "r", out.AccessToken)
}

// Writers on different providers of the same account share one JSON
// blob; concurrent mutations must not drop each other's entries.
func TestConcurrentWritersKeepAllEntries(t *testing.T) {
	store := New(newMemAccountRepo())
	ctx := context.Background()

	providers := []models.Provider{
		models.ProviderX, models.ProviderLinkedIn, models.ProviderFacebook,
		models.ProviderInstagram, models.ProviderReddit, models.ProviderPinterest,
		models.ProviderBlog,
	}

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p models.Provider) {
			defer wg.Done()
			rec := &models.BlogTokenRecord{Credentials: models.Credentials{AccessToken: fmt.Sprintf("token-%d", i)}}
			for j := 0; j < 50; j++ {
				if err := store.Put(ctx, 1, p, rec); err != nil {
					t.Error(err)
					return
				}
			}
		}(i, p)
	}
	wg.Wait()

	for i, p := range providers {
		var out models.BlogTokenRecord
		found, err := store.Get(ctx, 1, p, &out)
		require.NoError(t, err)
		require.True(t, found, "provider %s lost its entry", p)
		assert.Equal(t, fmt.Sprintf("token-%d", i), out.AccessToken)
	}
}
