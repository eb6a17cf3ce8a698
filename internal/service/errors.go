package service

import "errors"

// Precondition errors never mark a post FAILED: the publish was
// rejected before the provider's content endpoint was reached.
// Everything else that escapes a publish is an unrecoverable provider
// error: the post goes to FAILED and the error propagates to the
// caller.
var (
	ErrUnsupportedProvider  = errors.New("unsupported social media provider")
	ErrNotConnected         = errors.New("provider is not connected for this account")
	ErrSessionExpired       = errors.New("provider session expired, reconnect required")
	ErrPostNotFound         = errors.New("post not found")
	ErrPostNotOwned         = errors.New("post does not belong to this account")
	ErrAlreadyPublished     = errors.New("post is already published")
	ErrProviderMismatch     = errors.New("post is assigned to a different provider")
	ErrNoTargetSelected     = errors.New("no publish target selected")
	ErrTargetNotFound       = errors.New("target not found in connected resources")
	ErrSelectionUnsupported = errors.New("provider has no target selection")
	ErrEmptyBody            = errors.New("post body is empty")
	ErrMissingImage         = errors.New("post requires an image")
	ErrOAuthConfig          = errors.New("oauth configuration is incomplete")
)

var preconditionErrors = []error{
	ErrNotConnected,
	ErrSessionExpired,
	ErrPostNotFound,
	ErrPostNotOwned,
	ErrAlreadyPublished,
	ErrProviderMismatch,
	ErrNoTargetSelected,
	ErrTargetNotFound,
	ErrSelectionUnsupported,
	ErrEmptyBody,
	ErrMissingImage,
	ErrOAuthConfig,
}

// IsPrecondition reports whether err was rejected before the connector
// touched the provider.
func IsPrecondition(err error) bool {
	for _, p := range preconditionErrors {
		if errors.Is(err, p) {
			return true
		}
	}
	return false
}
