package reviewer_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/totetech/reviewpilot/internal/annotate"
	"github.com/totetech/reviewpilot/internal/model"
	"github.com/totetech/reviewpilot/internal/model/interfaces"
	"github.com/totetech/reviewpilot/internal/reviewer"
)

const bot = "reviewpilot-bot"

type fakeProvider struct {
	stat     model.ChangeStat
	statErr  error
	comments []*model.ReviewComment

	labels       []model.SizeCategory
	created      []string
	updated      map[string]string
	failUpdates  map[string]bool
	commentCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		updated:     make(map[string]string),
		failUpdates: make(map[string]bool),
	}
}

func (f *fakeProvider) ValidateWebhook(payload []byte, authToken string) error { return nil }
func (f *fakeProvider) ParseWebhookEvent(payload []byte) (*model.CodeEvent, error) {
	return nil, nil
}
func (f *fakeProvider) IsPullRequestEvent(event *model.CodeEvent) bool { return true }
func (f *fakeProvider) GetPullRequest(ctx context.Context, projectID string, prIID int) (*model.PullRequest, error) {
	return nil, nil
}
func (f *fakeProvider) GetChangeStat(ctx context.Context, projectID string, prIID int) (model.ChangeStat, error) {
	return f.stat, f.statErr
}
func (f *fakeProvider) SetSizeLabel(ctx context.Context, projectID string, prIID int, category model.SizeCategory) error {
	f.labels = append(f.labels, category)
	return nil
}
func (f *fakeProvider) GetComments(ctx context.Context, projectID string, prIID int) ([]*model.ReviewComment, error) {
	f.commentCalls++
	return f.comments, nil
}
func (f *fakeProvider) CreateComment(ctx context.Context, projectID string, prIID int, body string) error {
	f.created = append(f.created, body)
	return nil
}
func (f *fakeProvider) UpdateComment(ctx context.Context, projectID string, prIID int, commentID, newBody string) error {
	if f.failUpdates[commentID] {
		return errm.New("boom")
	}
	f.updated[commentID] = newBody
	return nil
}
func (f *fakeProvider) GetCurrentUser(ctx context.Context) (*model.User, error) {
	return &model.User{Username: bot}, nil
}

type fakeGenerator struct {
	requests []*model.ReviewRequest
	err      error
}

func (f *fakeGenerator) RequestReview(ctx context.Context, request *model.ReviewRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, request)
	return nil
}

func newReviewer(t *testing.T, provider interfaces.CodeProvider, gen *fakeGenerator) *reviewer.Reviewer {
	t.Helper()
	r, err := reviewer.New(reviewer.Config{
		SkipLargeChanges: lang.Ptr(true),
		MaxFiles:         50,
		MaxLines:         2000,
	}, provider, gen)
	require.NoError(t, err)
	t.Cleanup(func() { r.Stop(context.Background()) })
	return r
}

func pr(iid int, sha string) *model.PullRequest {
	return &model.PullRequest{IID: iid, SHA: sha, Title: "change"}
}

func botReview(id string, createdAt time.Time) *model.ReviewComment {
	return &model.ReviewComment{
		ID:        id,
		Body:      annotate.ReviewMarker + "\n### Review\n\nold findings",
		Author:    model.User{Username: bot},
		CreatedAt: createdAt,
	}
}

func TestRunRequestsReview(t *testing.T) {
	provider := newFakeProvider()
	provider.stat = model.ChangeStat{FilesChanged: 4, LinesChanged: 120}
	gen := &fakeGenerator{}

	r := newReviewer(t, provider, gen)

	result, err := r.Run(context.Background(), "group/repo", pr(5, "abc123"))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, model.SizeM, result.Category)
	assert.False(t, result.Skipped)
	assert.True(t, result.ReviewRequested)
	assert.Equal(t, []model.SizeCategory{model.SizeM}, provider.labels)
	require.Len(t, gen.requests, 1)
	assert.Equal(t, "group/repo", gen.requests[0].ProjectID)
	assert.Empty(t, provider.created)
}

func TestRunSkipsLargeChangeButStillLabels(t *testing.T) {
	provider := newFakeProvider()
	provider.stat = model.ChangeStat{FilesChanged: 60, LinesChanged: 100}
	gen := &fakeGenerator{}

	r := newReviewer(t, provider, gen)

	result, err := r.Run(context.Background(), "group/repo", pr(5, "abc123"))
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Equal(t, model.SizeL, result.Category)
	assert.False(t, result.ReviewRequested)
	assert.Empty(t, gen.requests)
	assert.Equal(t, []model.SizeCategory{model.SizeL}, provider.labels)

	// the too-large notice is a review comment itself, so later runs collapse it
	require.Len(t, provider.created, 1)
	assert.Contains(t, provider.created[0], annotate.ReviewMarker)
	assert.Contains(t, provider.created[0], "too large")
}

func TestRunCollapsesPriorReviews(t *testing.T) {
	base := time.Now()
	provider := newFakeProvider()
	provider.stat = model.ChangeStat{FilesChanged: 1, LinesChanged: 5}
	provider.comments = []*model.ReviewComment{
		botReview("1", base),
		botReview("2", base.Add(time.Minute)),
		{ID: "3", Body: "human reply", Author: model.User{Username: "alice"}, CreatedAt: base.Add(2 * time.Minute)},
	}
	gen := &fakeGenerator{}

	r := newReviewer(t, provider, gen)

	result, err := r.Run(context.Background(), "group/repo", pr(5, "abc123"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.CollapsedPrior)
	assert.Len(t, provider.updated, 2)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(provider.updated["1"]), "<details"))
	require.Len(t, gen.requests, 1)
}

func TestRunPartialCollapseFailureStillRequestsReview(t *testing.T) {
	base := time.Now()
	provider := newFakeProvider()
	provider.comments = []*model.ReviewComment{
		botReview("1", base),
		botReview("2", base.Add(time.Minute)),
	}
	provider.failUpdates["1"] = true
	gen := &fakeGenerator{}

	r := newReviewer(t, provider, gen)

	result, err := r.Run(context.Background(), "group/repo", pr(5, "abc123"))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.CollapsedPrior)
	require.Len(t, result.Errors, 1)
	require.Len(t, gen.requests, 1)
}

func TestRunDeduplicatesProcessedCommits(t *testing.T) {
	provider := newFakeProvider()
	gen := &fakeGenerator{}

	r := newReviewer(t, provider, gen)

	_, err := r.Run(context.Background(), "group/repo", pr(5, "abc123"))
	require.NoError(t, err)
	result, err := r.Run(context.Background(), "group/repo", pr(5, "abc123"))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Len(t, gen.requests, 1)
	assert.Len(t, provider.labels, 1)
	assert.Equal(t, 1, provider.commentCalls)
}

func TestRunNewCommitRunsAgain(t *testing.T) {
	provider := newFakeProvider()
	gen := &fakeGenerator{}

	r := newReviewer(t, provider, gen)

	_, err := r.Run(context.Background(), "group/repo", pr(5, "abc123"))
	require.NoError(t, err)
	_, err = r.Run(context.Background(), "group/repo", pr(5, "def456"))
	require.NoError(t, err)

	assert.Len(t, gen.requests, 2)
}

// gateProvider blocks the first UpdateComment call until released, so a test
// can hold a run mid-flight while a newer event for the same thread arrives.
type gateProvider struct {
	*fakeProvider
	entered  chan struct{}
	release  chan struct{}
	gateOnce sync.Once
}

func (g *gateProvider) UpdateComment(ctx context.Context, projectID string, prIID int, commentID, newBody string) error {
	var first bool
	g.gateOnce.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeProvider.UpdateComment(ctx, projectID, prIID, commentID, newBody)
}

func TestRunNewEventCancelsInFlightRun(t *testing.T) {
	base := time.Now()
	inner := newFakeProvider()
	inner.comments = []*model.ReviewComment{
		botReview("1", base),
		botReview("2", base.Add(time.Minute)),
	}
	provider := &gateProvider{
		fakeProvider: inner,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	gen := &fakeGenerator{}

	r := newReviewer(t, provider, gen)

	type outcome struct {
		result *model.ReviewResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := r.Run(context.Background(), "group/repo", pr(5, "abc123"))
		done <- outcome{result, err}
	}()

	// hold the first run inside a provider call, then deliver a new commit
	// for the same thread; it must cancel the run it supersedes
	<-provider.entered
	second, err := r.Run(context.Background(), "group/repo", pr(5, "def456"))
	require.NoError(t, err)
	assert.True(t, second.Success)

	close(provider.release)
	first := <-done
	require.NoError(t, first.err)

	// the in-flight update finishes, the rest fail on the cancelled context
	assert.False(t, first.result.Success)
	assert.Equal(t, 1, first.result.CollapsedPrior)
	require.Len(t, first.result.Errors, 1)
	assert.Contains(t, first.result.Errors[0].Error(), "cancelled")
}

func TestRunStatFailureDegradesToZeroStat(t *testing.T) {
	provider := newFakeProvider()
	provider.statErr = errm.New("api is down")
	gen := &fakeGenerator{}

	r := newReviewer(t, provider, gen)

	result, err := r.Run(context.Background(), "group/repo", pr(5, "abc123"))
	require.NoError(t, err)

	// classification never fails: a missing stat counts as zero
	assert.Equal(t, model.SizeXS, result.Category)
	assert.False(t, result.Skipped)
	assert.Equal(t, []model.SizeCategory{model.SizeXS}, provider.labels)
	assert.True(t, result.ReviewRequested)
	assert.False(t, result.Success) // the stat error is still reported
}
