package models

import "time"

type Post struct {
	ID               int64     `db:"id" json:"id"`
	AccountID        int64     `db:"account_id" json:"account_id"`
	Provider         Provider  `db:"provider" json:"provider"`
	Title            string    `db:"title" json:"title"`
	Body             string    `db:"body" json:"body"`
	ImageURL         string    `db:"image_url" json:"image_url"`
	Hashtags         []string  `db:"hashtags" json:"hashtags"`
	Link             string    `db:"link" json:"link"`
	State            string    `db:"state" json:"state"`
	PostIDInProvider string    `db:"post_id_in_provider" json:"post_id_in_provider"`
	PublishedAt      time.Time `db:"published_at" json:"published_at"`
	PublishedURL     string    `db:"published_url" json:"published_url"`
	RecommendationID int64     `db:"recommendation_id" json:"recommendation_id"`
	ScheduledTime    time.Time `db:"scheduled_time" json:"scheduled_time"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

const (
	PostStateSuggested     = "SUGGESTED"
	PostStateToBePublished = "TO_BE_PUBLISHED"
	PostStateScheduled     = "SCHEDULED"
	PostStatePosted        = "POSTED"
	PostStateCanceled      = "CANCELED"
	PostStateFailed        = "FAILED"
	PostStateInProgress    = "IN_PROGRESS"
	PostStateDeleted       = "DELETED"
)
