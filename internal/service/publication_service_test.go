package service

import (
	"context"
	"errors"
	"testing"

	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsMissingPost(t *testing.T) {
	svc := NewPublicationService(newMemPostRepo(), newMemRecommendationRepo(), newMemHistoryRepo())

	_, err := svc.Validate(context.Background(), 1, 99, models.ProviderX)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.True(t, IsPrecondition(err))
}

func TestValidateRejectsForeignPost(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 2, Provider: models.ProviderX, State: models.PostStateToBePublished})
	svc := NewPublicationService(posts, newMemRecommendationRepo(), newMemHistoryRepo())

	_, err := svc.Validate(context.Background(), 1, 7, models.ProviderX)
	assert.ErrorIs(t, err, ErrPostNotOwned)
}

func TestValidateRejectsAlreadyPublished(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderX, State: models.PostStatePosted})
	svc := NewPublicationService(posts, newMemRecommendationRepo(), newMemHistoryRepo())

	_, err := svc.Validate(context.Background(), 1, 7, models.ProviderX)
	assert.ErrorIs(t, err, ErrAlreadyPublished)
}

func TestValidateRejectsProviderMismatch(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderReddit, State: models.PostStateToBePublished})
	svc := NewPublicationService(posts, newMemRecommendationRepo(), newMemHistoryRepo())

	_, err := svc.Validate(context.Background(), 1, 7, models.ProviderX)
	assert.ErrorIs(t, err, ErrProviderMismatch)
}

func TestCompleteMarksPostedAndNotifiesTracker(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderX, State: models.PostStateToBePublished, RecommendationID: 42})
	tracked := newMemRecommendationRepo()
	history := newMemHistoryRepo()
	svc := NewPublicationService(posts, tracked, history)

	post, err := svc.Validate(context.Background(), 1, 7, models.ProviderX)
	require.NoError(t, err)

	outcome := &transfer.PublishOutcome{ExternalID: "1234", URL: "https://x.com/someone/status/1234"}
	require.NoError(t, svc.Complete(context.Background(), post, outcome))

	assert.Equal(t, models.PostStatePosted, post.State)
	assert.Equal(t, "1234", post.PostIDInProvider)
	assert.Equal(t, outcome.URL, post.PublishedURL)

	stored, err := posts.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatePosted, stored.State)
	assert.Equal(t, outcome.URL, stored.PublishedURL)

	assert.Equal(t, []string{outcome.URL}, tracked.urls[42])
	require.Len(t, history.entries, 1)
	assert.Empty(t, history.entries[0].ErrorMessage)
}

func TestCompleteToleratesTrackerFailure(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderX, State: models.PostStateToBePublished, RecommendationID: 42})
	tracked := newMemRecommendationRepo()
	tracked.fail = errors.New("tracker down")
	svc := NewPublicationService(posts, tracked, newMemHistoryRepo())

	post, err := svc.Validate(context.Background(), 1, 7, models.ProviderX)
	require.NoError(t, err)

	outcome := &transfer.PublishOutcome{ExternalID: "1234", URL: "https://x.com/someone/status/1234"}
	require.NoError(t, svc.Complete(context.Background(), post, outcome))

	assert.Equal(t, 1, tracked.calls)
	assert.Equal(t, models.PostStatePosted, post.State)
}

func TestCompleteSkipsTrackerWithoutRecommendation(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderX, State: models.PostStateToBePublished})
	tracked := newMemRecommendationRepo()
	svc := NewPublicationService(posts, tracked, newMemHistoryRepo())

	post, err := svc.Validate(context.Background(), 1, 7, models.ProviderX)
	require.NoError(t, err)

	outcome := &transfer.PublishOutcome{ExternalID: "1234", URL: "https://x.com/someone/status/1234"}
	require.NoError(t, svc.Complete(context.Background(), post, outcome))

	assert.Equal(t, 0, tracked.calls)
}

func TestFailMarksPostFailedAndRecordsHistory(t *testing.T) {
	posts := newMemPostRepo(&models.Post{ID: 7, AccountID: 1, Provider: models.ProviderX, State: models.PostStateToBePublished})
	history := newMemHistoryRepo()
	svc := NewPublicationService(posts, newMemRecommendationRepo(), history)

	post, err := svc.Validate(context.Background(), 1, 7, models.ProviderX)
	require.NoError(t, err)

	svc.Fail(context.Background(), post, errors.New("provider returned 500"))

	stored, err := posts.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.PostStateFailed, stored.State)

	require.Len(t, history.entries, 1)
	assert.Equal(t, "provider returned 500", history.entries[0].ErrorMessage)
}
