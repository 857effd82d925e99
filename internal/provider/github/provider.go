package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"
	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/totetech/reviewpilot/internal/model"
	"github.com/totetech/reviewpilot/internal/model/interfaces"
	"golang.org/x/oauth2"
)

var _ interfaces.CodeProvider = (*Provider)(nil)

const defaultBaseURL = "https://github.com"

// sizeLabelPrefix is shared by every label this service manages on a PR
const sizeLabelPrefix = "size/"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Provider implements the CodeProvider interface for GitHub
type Provider struct {
	client *github.Client
	config model.ProviderConfig
	logger logze.Logger
}

// New creates a new GitHub provider
func New(config model.ProviderConfig) (*Provider, error) {
	if config.Token == "" {
		return nil, errm.New("GitHub token is required")
	}
	log := logze.With("provider", "github")

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: config.Token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	client := github.NewClient(tc)

	// Set base URL if provided (for GitHub Enterprise)
	if config.BaseURL != "" && config.BaseURL != defaultBaseURL {
		var err error
		client, err = github.NewClient(tc).WithEnterpriseURLs(config.BaseURL, config.BaseURL)
		if err != nil {
			return nil, errm.Wrap(err, "failed to create GitHub Enterprise client")
		}
	}

	return &Provider{
		client: client,
		config: config,
		logger: log,
	}, nil
}

// ValidateWebhook validates the GitHub webhook signature
func (p *Provider) ValidateWebhook(payload []byte, signature string) error {
	if p.config.WebhookSecret == "" {
		return nil // No secret configured, skip validation
	}

	// GitHub signature format: "sha256=<signature>"
	if !strings.HasPrefix(signature, "sha256=") {
		return errm.New("invalid GitHub signature format")
	}
	expectedSignature := strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(p.config.WebhookSecret))
	mac.Write(payload)
	calculatedSignature := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expectedSignature), []byte(calculatedSignature)) {
		return errm.New("GitHub webhook signature verification failed")
	}

	return nil
}

// ParseWebhookEvent parses a GitHub webhook event
func (p *Provider) ParseWebhookEvent(payload []byte) (*model.CodeEvent, error) {
	var body githubPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errm.Wrap(err, "failed to parse GitHub webhook payload")
	}

	event := &model.CodeEvent{
		Type:      "pull_request",
		Action:    body.Action,
		ProjectID: body.Repository.FullName, // GitHub uses "owner/repo" format
		User: &model.User{
			ID:       strconv.Itoa(body.Sender.ID),
			Username: body.Sender.Login,
			Name:     body.Sender.Name,
		},
		PullRequest: &model.PullRequest{
			ID:           strconv.Itoa(body.PullRequest.ID),
			IID:          body.PullRequest.Number,
			Title:        body.PullRequest.Title,
			Description:  body.PullRequest.Body,
			SourceBranch: body.PullRequest.Head.Ref,
			TargetBranch: body.PullRequest.Base.Ref,
			URL:          body.PullRequest.HTMLURL,
			State:        body.PullRequest.State,
			SHA:          body.PullRequest.Head.SHA,
			Author: model.User{
				ID:       strconv.Itoa(body.PullRequest.User.ID),
				Username: body.PullRequest.User.Login,
				Name:     body.PullRequest.User.Name,
			},
		},
	}

	return event, nil
}

// IsPullRequestEvent determines if a webhook event should trigger the pipeline
func (p *Provider) IsPullRequestEvent(event *model.CodeEvent) bool {
	if event.Type != "pull_request" {
		p.logger.Debug("ignoring non-pull request event", "event_type", event.Type)
		return false
	}

	relevantActions := []string{
		"opened",           // When PR is opened
		"reopened",         // When PR is reopened
		"synchronize",      // When PR is updated with new commits
		"edited",           // When PR title or description is edited
		"ready_for_review", // When PR is marked ready for review
	}
	if !slices.Contains(relevantActions, event.Action) {
		p.logger.Debug("ignoring irrelevant action", "action", event.Action)
		return false
	}

	// Don't process events from the bot itself to avoid loops
	if event.User != nil && event.User.Username == p.config.BotUsername {
		p.logger.Debug("ignoring event from bot user")
		return false
	}

	return true
}

// GetPullRequest retrieves detailed information about a pull request
func (p *Provider) GetPullRequest(ctx context.Context, projectID string, prIID int) (*model.PullRequest, error) {
	owner, repo, err := splitProjectID(projectID)
	if err != nil {
		return nil, err
	}

	pr, _, err := p.client.PullRequests.Get(ctx, owner, repo, prIID)
	if err != nil {
		return nil, errm.Wrap(err, "failed to get pull request from GitHub")
	}

	return &model.PullRequest{
		ID:           strconv.FormatInt(pr.GetID(), 10),
		IID:          pr.GetNumber(),
		Title:        pr.GetTitle(),
		Description:  pr.GetBody(),
		SourceBranch: pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		URL:          pr.GetHTMLURL(),
		State:        pr.GetState(),
		SHA:          pr.GetHead().GetSHA(),
		Author: model.User{
			ID:       strconv.FormatInt(pr.GetUser().GetID(), 10),
			Username: pr.GetUser().GetLogin(),
			Name:     pr.GetUser().GetName(),
		},
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
	}, nil
}

// GetChangeStat retrieves the diff size of a pull request between base and head
func (p *Provider) GetChangeStat(ctx context.Context, projectID string, prIID int) (model.ChangeStat, error) {
	owner, repo, err := splitProjectID(projectID)
	if err != nil {
		return model.ChangeStat{}, err
	}

	pr, _, err := p.client.PullRequests.Get(ctx, owner, repo, prIID)
	if err != nil {
		return model.ChangeStat{}, errm.Wrap(err, "failed to get pull request stats from GitHub")
	}

	return model.NewChangeStat(pr.GetChangedFiles(), pr.GetAdditions()+pr.GetDeletions()), nil
}

// SetSizeLabel replaces any previous size label on the PR with the given category
func (p *Provider) SetSizeLabel(ctx context.Context, projectID string, prIID int, category model.SizeCategory) error {
	owner, repo, err := splitProjectID(projectID)
	if err != nil {
		return err
	}

	labels, _, err := p.client.Issues.ListLabelsByIssue(ctx, owner, repo, prIID, &github.ListOptions{PerPage: 100})
	if err != nil {
		return errm.Wrap(err, "failed to list PR labels")
	}

	for _, label := range labels {
		name := label.GetName()
		if name == category.Label() {
			return nil // already labeled correctly
		}
		if strings.HasPrefix(name, sizeLabelPrefix) {
			if _, err := p.client.Issues.RemoveLabelForIssue(ctx, owner, repo, prIID, name); err != nil {
				p.logger.Err(err, "failed to remove stale size label", "label", name)
			}
		}
	}

	_, _, err = p.client.Issues.AddLabelsToIssue(ctx, owner, repo, prIID, []string{category.Label()})
	if err != nil {
		return errm.Wrap(err, "failed to add size label")
	}

	return nil
}

// GetComments retrieves all comments for a pull request
func (p *Provider) GetComments(ctx context.Context, projectID string, prIID int) ([]*model.ReviewComment, error) {
	owner, repo, err := splitProjectID(projectID)
	if err != nil {
		return nil, err
	}

	// GitHub treats PR thread comments as issue comments
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var allComments []*github.IssueComment
	for {
		comments, resp, err := p.client.Issues.ListComments(ctx, owner, repo, prIID, opts)
		if err != nil {
			return nil, errm.Wrap(err, "failed to list pull request comments")
		}

		allComments = append(allComments, comments...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	var reviewComments []*model.ReviewComment
	for _, comment := range allComments {
		reviewComments = append(reviewComments, &model.ReviewComment{
			ID:   strconv.FormatInt(comment.GetID(), 10),
			Body: comment.GetBody(),
			Author: model.User{
				ID:       strconv.FormatInt(comment.GetUser().GetID(), 10),
				Username: comment.GetUser().GetLogin(),
				Name:     comment.GetUser().GetName(),
			},
			CreatedAt: comment.GetCreatedAt().Time,
		})
	}

	return reviewComments, nil
}

// CreateComment creates a comment on a pull request thread
func (p *Provider) CreateComment(ctx context.Context, projectID string, prIID int, body string) error {
	owner, repo, err := splitProjectID(projectID)
	if err != nil {
		return err
	}

	_, _, err = p.client.Issues.CreateComment(ctx, owner, repo, prIID, &github.IssueComment{
		Body: &body,
	})
	if err != nil {
		return errm.Wrap(err, "failed to create pull request comment")
	}

	return nil
}

// UpdateComment rewrites the body of an existing comment
func (p *Provider) UpdateComment(ctx context.Context, projectID string, prIID int, commentID, newBody string) error {
	owner, repo, err := splitProjectID(projectID)
	if err != nil {
		return err
	}

	commentIDInt, err := strconv.ParseInt(commentID, 10, 64)
	if err != nil {
		return errm.Wrap(err, "invalid comment ID")
	}

	_, _, err = p.client.Issues.EditComment(ctx, owner, repo, commentIDInt, &github.IssueComment{
		Body: &newBody,
	})
	if err != nil {
		return errm.Wrap(err, "failed to update comment")
	}

	return nil
}

// GetCurrentUser retrieves information about the current authenticated user
func (p *Provider) GetCurrentUser(ctx context.Context) (*model.User, error) {
	user, _, err := p.client.Users.Get(ctx, "")
	if err != nil {
		return nil, errm.Wrap(err, "failed to get current user")
	}

	return &model.User{
		ID:       strconv.FormatInt(user.GetID(), 10),
		Username: user.GetLogin(),
		Name:     user.GetName(),
	}, nil
}

func splitProjectID(projectID string) (owner, repo string, err error) {
	parts := strings.Split(projectID, "/")
	if len(parts) != 2 {
		return "", "", errm.New("invalid GitHub project ID format, expected 'owner/repo'")
	}
	return parts[0], parts[1], nil
}
