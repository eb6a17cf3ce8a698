package transfer

const RedditFlairRequiredError = "SUBMIT_VALIDATION_FLAIR_REQUIRED"

type RedditTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

type RedditIdentity struct {
	Name string `json:"name"`
}

type RedditSubredditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				DisplayName string `json:"display_name"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type RedditFlair struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// RedditSubmitResponse is the api_type=json envelope of /api/submit.
// Errors come back as [code, message, field] triples.
type RedditSubmitResponse struct {
	JSON struct {
		Errors [][]string `json:"errors"`
		Data   struct {
			URL  string `json:"url"`
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	} `json:"json"`
}

// HasError reports whether the submit response carries the given
// provider error code.
func (r *RedditSubmitResponse) HasError(code string) bool {
	for _, e := range r.JSON.Errors {
		if len(e) > 0 && e[0] == code {
			return true
		}
	}
	return false
}
