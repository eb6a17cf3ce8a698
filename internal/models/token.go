package models

import "time"

// Credentials is the part of a token record every provider shares.
// ExpiresAt is always an absolute instant: connectors convert whatever
// the provider returned (relative expires_in seconds, ISO timestamp)
// right after the token fetch, so comparison logic downstream never
// sees a provider-native representation.
type Credentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Touch stamps the record mutation time. The token store calls it on
// every write.
func (c *Credentials) Touch(now time.Time) {
	c.UpdatedAt = now
}

// ExpiresWithin reports whether the token expires inside the given
// buffer. An unset expiry counts as expired.
func (c *Credentials) ExpiresWithin(buffer time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return time.Until(c.ExpiresAt) < buffer
}

// TokenRecord is implemented by every per-provider credential record
// stored in the account token map.
type TokenRecord interface {
	Touch(now time.Time)
}

type FacebookPage struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

type FacebookTokenRecord struct {
	Credentials
	Pages          []FacebookPage `json:"pages"`
	SelectedPageID string         `json:"selectedPageId,omitempty"`
}

type InstagramProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type InstagramTokenRecord struct {
	Credentials
	Profiles          []InstagramProfile `json:"profiles"`
	SelectedProfileID string             `json:"selectedProfileId,omitempty"`
}

type LinkedInOrganization struct {
	URN  string `json:"urn"`
	Name string `json:"name"`
}

type LinkedInTokenRecord struct {
	Credentials
	Organizations           []LinkedInOrganization `json:"organizations"`
	SelectedOrganizationURN string                 `json:"selectedOrganizationUrn,omitempty"`
}

type RedditTokenRecord struct {
	Credentials
	Username          string   `json:"username"`
	Subreddits        []string `json:"subreddits"`
	SelectedSubreddit string   `json:"selectedSubreddit,omitempty"`
}

type PinterestBoard struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PinterestTokenRecord struct {
	Credentials
	Boards          []PinterestBoard `json:"boards"`
	SelectedBoardID string           `json:"selectedBoardId,omitempty"`
}

type XTokenRecord struct {
	Credentials
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type BlogTokenRecord struct {
	Credentials
}
