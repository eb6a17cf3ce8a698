package models

import "fmt"

// Provider identifies an external social platform a post can be
// published to. The string value is also the key of the provider's
// entry in the account token map.
type Provider string

const (
	ProviderX         Provider = "x"
	ProviderLinkedIn  Provider = "linkedin"
	ProviderFacebook  Provider = "facebook"
	ProviderInstagram Provider = "instagram"
	ProviderReddit    Provider = "reddit"
	ProviderPinterest Provider = "pinterest"
	ProviderBlog      Provider = "blog"
)

func (p Provider) String() string {
	return string(p)
}

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderX, ProviderLinkedIn, ProviderFacebook, ProviderInstagram,
		ProviderReddit, ProviderPinterest, ProviderBlog:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown social media provider %q", s)
}
