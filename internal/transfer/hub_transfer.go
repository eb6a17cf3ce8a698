package transfer

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/postloom/publisher-api/internal/models"
)

// Target is the provider-side destination a post is published to: a
// page, board, organization, subreddit or profile.
type Target struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// ConnectResult is what a connector returns after a successful code
// exchange: a human-readable confirmation plus the selectable targets
// enumerated with the fresh token.
type ConnectResult struct {
	Provider models.Provider `json:"provider"`
	Message  string          `json:"message"`
	Targets  []Target        `json:"targets"`
}

// PublishOutcome carries the provider-side identity of a freshly
// published post.
type PublishOutcome struct {
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

// SelectionResult confirms which target a provider will publish to
// from now on.
type SelectionResult struct {
	Message  string          `json:"message"`
	Provider models.Provider `json:"provider"`
}

type CustomClaims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}
