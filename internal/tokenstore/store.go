// Package tokenstore is the single access path to the per-account
// provider token map. The map is stored as one JSON blob per account,
// so a plain read-modify-write from two goroutines (a status check
// refreshing a token while a publish rewrites a selection) can clobber
// the other's write. Every mutation here runs the full read-modify-write
// cycle under a per-account mutex: provider keys live in the same blob,
// so even writers on different providers must serialize.
package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/repository"
)

type Store struct {
	accounts repository.AccountRepository

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New(accounts repository.AccountRepository) *Store {
	return &Store{
		accounts: accounts,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *Store) accountLock(accountID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountID] = l
	}
	return l
}

// Get unmarshals the provider's token record into rec. The second
// return value reports whether the provider has an entry at all.
func (s *Store) Get(ctx context.Context, accountID int64, provider models.Provider, rec models.TokenRecord) (bool, error) {
	tokens, err := s.accounts.GetProviderTokens(ctx, accountID)
	if err != nil {
		return false, err
	}

	raw, ok := tokens[provider.String()]
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, rec); err != nil {
		return false, fmt.Errorf("decoding %s token record: %w", provider, err)
	}
	return true, nil
}

// Put writes the provider's token record, stamping its mutation time.
func (s *Store) Put(ctx context.Context, accountID int64, provider models.Provider, rec models.TokenRecord) error {
	l := s.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	rec.Touch(time.Now())

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding %s token record: %w", provider, err)
	}

	tokens, err := s.accounts.GetProviderTokens(ctx, accountID)
	if err != nil {
		return err
	}
	tokens[provider.String()] = raw

	return s.accounts.SetProviderTokens(ctx, accountID, tokens)
}

// Delete removes the provider's entry. Removing an absent entry is not
// an error, so logging out twice succeeds both times.
func (s *Store) Delete(ctx context.Context, accountID int64, provider models.Provider) error {
	l := s.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	tokens, err := s.accounts.GetProviderTokens(ctx, accountID)
	if err != nil {
		return err
	}

	if _, ok := tokens[provider.String()]; !ok {
		return nil
	}
	delete(tokens, provider.String())

	return s.accounts.SetProviderTokens(ctx, accountID, tokens)
}
