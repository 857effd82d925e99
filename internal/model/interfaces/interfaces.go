package interfaces

import (
	"context"

	"github.com/totetech/reviewpilot/internal/model"
)

// CodeProvider defines the interface for different VCS providers (GitHub, GitLab, etc.)
type CodeProvider interface {
	// Webhook handling
	ValidateWebhook(payload []byte, authToken string) error
	ParseWebhookEvent(payload []byte) (*model.CodeEvent, error)
	IsPullRequestEvent(event *model.CodeEvent) bool

	// PR operations
	GetPullRequest(ctx context.Context, projectID string, prIID int) (*model.PullRequest, error)
	GetChangeStat(ctx context.Context, projectID string, prIID int) (model.ChangeStat, error)
	SetSizeLabel(ctx context.Context, projectID string, prIID int, category model.SizeCategory) error

	// Comments
	GetComments(ctx context.Context, projectID string, prIID int) ([]*model.ReviewComment, error)
	CreateComment(ctx context.Context, projectID string, prIID int, body string) error
	UpdateComment(ctx context.Context, projectID string, prIID int, commentID, newBody string) error

	// User operations
	GetCurrentUser(ctx context.Context) (*model.User, error)
}

// ReviewGenerator requests a fresh review for a pull request from an external
// service. Generation itself happens outside this process.
type ReviewGenerator interface {
	RequestReview(ctx context.Context, request *model.ReviewRequest) error
}
