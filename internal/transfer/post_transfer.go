package transfer

type PostCreation struct {
	Provider         string   `json:"provider"`
	Title            string   `json:"title"`
	Body             string   `json:"body"`
	ImageURL         string   `json:"image_url"`
	Link             string   `json:"link"`
	Hashtags         []string `json:"hashtags"`
	ScheduledTime    string   `json:"scheduled_time"`
	RecommendationID int64    `json:"recommendation_id"`
}
