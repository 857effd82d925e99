package model

import (
	"time"
)

// ProviderConfig represents provider-specific configuration
type ProviderConfig struct {
	Type          string
	BaseURL       string
	Token         string
	WebhookSecret string
	BotUsername   string
}

// User represents a user across different providers
type User struct {
	ID       string
	Username string
	Name     string
}

// PullRequest represents a pull/merge request across different providers
type PullRequest struct {
	ID           string
	IID          int
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	Author       User
	URL          string
	State        string
	SHA          string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChangeStat holds the diff size of a pull request between its base and head.
// Counts are clamped to zero on construction so classification never sees
// negative input.
type ChangeStat struct {
	FilesChanged int
	LinesChanged int
}

// NewChangeStat builds a ChangeStat, treating negative or missing counts as zero
func NewChangeStat(files, lines int) ChangeStat {
	if files < 0 {
		files = 0
	}
	if lines < 0 {
		lines = 0
	}
	return ChangeStat{FilesChanged: files, LinesChanged: lines}
}

// ReviewComment represents one persisted comment on a review thread
type ReviewComment struct {
	ID        string
	Body      string
	Author    User
	CreatedAt time.Time
}

// CommentUpdate is an intent to rewrite the body of an existing comment.
// Updates are computed from an immutable snapshot and applied separately.
type CommentUpdate struct {
	CommentID string
	NewBody   string
}

// UpdateReport describes the outcome of applying a batch of comment updates
type UpdateReport struct {
	Applied []string
	Failed  map[string]error
}

// OK reports whether every update in the batch was applied
func (r UpdateReport) OK() bool {
	return len(r.Failed) == 0
}

// CodeEvent represents a webhook event from any provider
type CodeEvent struct {
	Type        string
	Action      string
	ProjectID   string
	PullRequest *PullRequest
	User        *User
	Timestamp   time.Time
}
