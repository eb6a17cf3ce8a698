package service

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/postloom/publisher-api/internal/models"
)

const defaultHTTPTimeout = 30 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// GetExpiresAt converts a relative expires_in value into the absolute
// instant token records store.
func GetExpiresAt(expiresIn int64) time.Time {
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}

// composeMessage renders the post body followed by its hashtags, the
// shape every text-oriented provider accepts.
func composeMessage(post *models.Post) string {
	msg := post.Body
	if len(post.Hashtags) == 0 {
		return msg
	}

	tags := make([]string, 0, len(post.Hashtags))
	for _, t := range post.Hashtags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		tags = append(tags, t)
	}
	if len(tags) == 0 {
		return msg
	}
	return fmt.Sprintf("%s\n\n%s", msg, strings.Join(tags, " "))
}
