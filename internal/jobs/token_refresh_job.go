package job

import (
	"context"
	"log/slog"
	"sync"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/repository"
	"github.com/postloom/publisher-api/internal/service"
)

// TokenRefreshJob sweeps every connected account and asks the hub for
// each provider's status. Connectors refresh near-expiry tokens as a
// side effect of the status check, so the sweep keeps credentials warm
// without its own refresh logic.
type TokenRefreshJob struct {
	ar  repository.AccountRepository
	hub service.HubService
}

func NewTokenRefreshJob(ar repository.AccountRepository, hub service.HubService) *TokenRefreshJob {
	return &TokenRefreshJob{
		ar:  ar,
		hub: hub,
	}
}

var sweepProviders = []models.Provider{
	models.ProviderX,
	models.ProviderLinkedIn,
	models.ProviderFacebook,
	models.ProviderInstagram,
	models.ProviderReddit,
	models.ProviderPinterest,
	models.ProviderBlog,
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	accounts, err := j.ar.ListAccountsWithTokens(ctx)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, accountID := range accounts {
		for _, provider := range sweepProviders {
			wg.Add(1)
			semaphore <- struct{}{}

			go func(accountID int64, provider models.Provider) {
				defer wg.Done()
				defer func() { <-semaphore }()

				if _, err := j.hub.Status(ctx, accountID, provider); err != nil {
					slog.Info("token sweep status check failed",
						"account_id", accountID, "provider", provider, "error", err.Error())
				}
			}(accountID, provider)
		}
	}

	wg.Wait()
}
