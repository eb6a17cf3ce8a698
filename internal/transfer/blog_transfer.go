package transfer

type BlogPostResponse struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}
