package gitlab

import (
	"context"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	"github.com/totetech/reviewpilot/internal/model"
	"github.com/totetech/reviewpilot/internal/model/interfaces"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

const defaultBaseURL = "https://gitlab.com"

const sizeLabelPrefix = "size/"

var _ interfaces.CodeProvider = (*Provider)(nil)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Provider implements the CodeProvider interface for GitLab
type Provider struct {
	client *gitlab.Client
	config model.ProviderConfig
	logger logze.Logger
}

// New creates a new GitLab provider
func New(config model.ProviderConfig) (*Provider, error) {
	if config.Token == "" {
		return nil, errm.New("GitLab token is required")
	}
	logger := logze.With("provider", "gitlab")

	baseURL := lang.Check(config.BaseURL, defaultBaseURL)

	client, err := gitlab.NewClient(config.Token, gitlab.WithBaseURL(baseURL))
	if err != nil {
		return nil, errm.Wrap(err, "failed to create GitLab client")
	}

	return &Provider{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// ValidateWebhook validates the webhook token.
// GitLab sends the configured secret verbatim in X-Gitlab-Token.
func (p *Provider) ValidateWebhook(payload []byte, signature string) error {
	if p.config.WebhookSecret == "" {
		return nil // No secret configured, skip validation
	}

	if signature != p.config.WebhookSecret {
		return errm.New("invalid webhook signature")
	}

	return nil
}

// ParseWebhookEvent parses a GitLab webhook event
func (p *Provider) ParseWebhookEvent(payload []byte) (*model.CodeEvent, error) {
	var body gitlabPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errm.Wrap(err, "failed to parse GitLab webhook payload")
	}

	event := &model.CodeEvent{
		Type:      body.ObjectKind,
		Action:    body.ObjectAttributes.Action,
		ProjectID: strconv.Itoa(body.Project.ID),
		User: &model.User{
			ID:       strconv.Itoa(body.User.ID),
			Username: body.User.Username,
			Name:     body.User.Name,
		},
		PullRequest: &model.PullRequest{
			ID:           strconv.Itoa(body.ObjectAttributes.IID),
			IID:          body.ObjectAttributes.IID,
			Title:        body.ObjectAttributes.Title,
			Description:  body.ObjectAttributes.Description,
			SourceBranch: body.ObjectAttributes.SourceBranch,
			TargetBranch: body.ObjectAttributes.TargetBranch,
			URL:          body.ObjectAttributes.URL,
			State:        body.ObjectAttributes.State,
			SHA:          body.ObjectAttributes.LastCommit.ID,
		},
	}

	return event, nil
}

// IsPullRequestEvent determines if a webhook event should trigger the pipeline
func (p *Provider) IsPullRequestEvent(event *model.CodeEvent) bool {
	if event.Type != "merge_request" {
		return false
	}

	switch event.Action {
	case "open", "reopen", "update":
	default:
		return false
	}

	// Don't process events from the bot itself to avoid loops
	if event.User != nil && event.User.Username == p.config.BotUsername {
		return false
	}

	return true
}

// GetPullRequest retrieves detailed information about a merge request
func (p *Provider) GetPullRequest(ctx context.Context, projectID string, prIID int) (*model.PullRequest, error) {
	projectIDInt, err := strconv.Atoi(projectID)
	if err != nil {
		return nil, errm.Wrap(err, "invalid project ID")
	}

	mr, _, err := p.client.MergeRequests.GetMergeRequest(projectIDInt, prIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, errm.Wrap(err, "failed to get merge request from GitLab")
	}

	return &model.PullRequest{
		ID:           strconv.Itoa(mr.ID),
		IID:          mr.IID,
		Title:        mr.Title,
		Description:  mr.Description,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		URL:          mr.WebURL,
		State:        mr.State,
		SHA:          mr.SHA,
		Author: model.User{
			ID:       strconv.Itoa(mr.Author.ID),
			Username: mr.Author.Username,
			Name:     mr.Author.Name,
		},
		CreatedAt: lang.Deref(mr.CreatedAt),
		UpdatedAt: lang.Deref(mr.UpdatedAt),
	}, nil
}

// GetChangeStat retrieves the diff size of a merge request.
// GitLab does not return line counts directly, so they are derived from the diffs.
func (p *Provider) GetChangeStat(ctx context.Context, projectID string, prIID int) (model.ChangeStat, error) {
	projectIDInt, err := strconv.Atoi(projectID)
	if err != nil {
		return model.ChangeStat{}, errm.Wrap(err, "invalid project ID")
	}

	var files, lines int
	page := 1

	for {
		opts := &gitlab.ListMergeRequestDiffsOptions{
			ListOptions: gitlab.ListOptions{Page: page},
		}

		diffs, resp, err := p.client.MergeRequests.ListMergeRequestDiffs(projectIDInt, prIID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return model.ChangeStat{}, errm.Wrap(err, "failed to list merge request diffs")
		}

		for _, diff := range diffs {
			files++
			lines += countChangedLines(diff.Diff)
		}

		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	return model.NewChangeStat(files, lines), nil
}

// countChangedLines counts added and removed lines in a unified diff
func countChangedLines(diff string) int {
	var count int
	for _, line := range strings.Split(diff, "\n") {
		if len(line) == 0 {
			continue
		}
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		if line[0] == '+' || line[0] == '-' {
			count++
		}
	}
	return count
}

// SetSizeLabel replaces any previous size label on the merge request
func (p *Provider) SetSizeLabel(ctx context.Context, projectID string, prIID int, category model.SizeCategory) error {
	projectIDInt, err := strconv.Atoi(projectID)
	if err != nil {
		return errm.Wrap(err, "invalid project ID")
	}

	mr, _, err := p.client.MergeRequests.GetMergeRequest(projectIDInt, prIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return errm.Wrap(err, "failed to get merge request labels")
	}

	var stale gitlab.LabelOptions
	for _, label := range mr.Labels {
		if label == category.Label() {
			return nil // already labeled correctly
		}
		if strings.HasPrefix(label, sizeLabelPrefix) {
			stale = append(stale, label)
		}
	}

	opts := &gitlab.UpdateMergeRequestOptions{
		AddLabels: &gitlab.LabelOptions{category.Label()},
	}
	if len(stale) > 0 {
		opts.RemoveLabels = &stale
	}

	_, _, err = p.client.MergeRequests.UpdateMergeRequest(projectIDInt, prIID, opts, gitlab.WithContext(ctx))
	if err != nil {
		return errm.Wrap(err, "failed to update merge request labels")
	}

	return nil
}

// GetComments retrieves all thread comments for a merge request
func (p *Provider) GetComments(ctx context.Context, projectID string, prIID int) ([]*model.ReviewComment, error) {
	projectIDInt, err := strconv.Atoi(projectID)
	if err != nil {
		return nil, errm.Wrap(err, "invalid project ID")
	}

	var allNotes []*gitlab.Note
	page := 1

	for {
		opts := &gitlab.ListMergeRequestNotesOptions{
			ListOptions: gitlab.ListOptions{Page: page, PerPage: 100},
		}

		notes, resp, err := p.client.Notes.ListMergeRequestNotes(projectIDInt, prIID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, errm.Wrap(err, "failed to list merge request notes")
		}

		allNotes = append(allNotes, notes...)

		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	var comments []*model.ReviewComment
	for _, note := range allNotes {
		if note.System {
			continue // state change notes, not real comments
		}
		comments = append(comments, &model.ReviewComment{
			ID:   strconv.Itoa(note.ID),
			Body: note.Body,
			Author: model.User{
				ID:       strconv.Itoa(note.Author.ID),
				Username: note.Author.Username,
				Name:     note.Author.Name,
			},
			CreatedAt: lang.Deref(note.CreatedAt),
		})
	}

	return comments, nil
}

// CreateComment creates a comment on a merge request thread
func (p *Provider) CreateComment(ctx context.Context, projectID string, prIID int, body string) error {
	projectIDInt, err := strconv.Atoi(projectID)
	if err != nil {
		return errm.Wrap(err, "invalid project ID")
	}

	opts := &gitlab.CreateMergeRequestNoteOptions{
		Body: &body,
	}

	_, _, err = p.client.Notes.CreateMergeRequestNote(projectIDInt, prIID, opts, gitlab.WithContext(ctx))
	if err != nil {
		return errm.Wrap(err, "failed to create merge request note")
	}

	return nil
}

// UpdateComment rewrites the body of an existing comment
func (p *Provider) UpdateComment(ctx context.Context, projectID string, prIID int, commentID, newBody string) error {
	projectIDInt, err := strconv.Atoi(projectID)
	if err != nil {
		return errm.Wrap(err, "invalid project ID")
	}

	noteID, err := strconv.Atoi(commentID)
	if err != nil {
		return errm.Wrap(err, "invalid comment ID")
	}

	opts := &gitlab.UpdateMergeRequestNoteOptions{
		Body: &newBody,
	}

	_, _, err = p.client.Notes.UpdateMergeRequestNote(projectIDInt, prIID, noteID, opts, gitlab.WithContext(ctx))
	if err != nil {
		return errm.Wrap(err, "failed to update merge request note")
	}

	return nil
}

// GetCurrentUser retrieves information about the current authenticated user
func (p *Provider) GetCurrentUser(ctx context.Context) (*model.User, error) {
	user, _, err := p.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return nil, errm.Wrap(err, "failed to get current user")
	}

	return &model.User{
		ID:       strconv.Itoa(user.ID),
		Username: user.Username,
		Name:     user.Name,
	}, nil
}
