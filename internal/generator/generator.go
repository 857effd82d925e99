// Package generator triggers review generation on an external service.
// The service owns model access and prompting; this process only sends
// the coordinates of the pull request to review.
package generator

import (
	"context"
	"time"

	"github.com/maxbolgarin/cliex"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	"github.com/totetech/reviewpilot/internal/model"
	"github.com/totetech/reviewpilot/internal/model/interfaces"
)

const defaultTimeout = 2 * time.Minute

var _ interfaces.ReviewGenerator = (*Remote)(nil)

// Config represents external review generator configuration
type Config struct {
	Endpoint     string        `yaml:"endpoint" env:"GENERATOR_ENDPOINT"`
	AuthToken    string        `yaml:"auth_token" env:"GENERATOR_AUTH_TOKEN"`
	CustomPrompt string        `yaml:"custom_prompt" env:"GENERATOR_CUSTOM_PROMPT"`
	Timeout      time.Duration `yaml:"timeout" env:"GENERATOR_TIMEOUT"`
}

func (c *Config) PrepareAndValidate() error {
	if c.Endpoint == "" {
		return errm.New("generator endpoint is required")
	}
	c.Timeout = lang.Check(c.Timeout, defaultTimeout)
	return nil
}

// Remote requests reviews from an external generation service over HTTP
type Remote struct {
	cfg Config
	cli *cliex.HTTP
	log logze.Logger
}

// New creates a new remote review generator
func New(cfg Config) (*Remote, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, errm.Wrap(err, "validate config")
	}
	log := logze.With("component", "generator")

	cli, err := cliex.NewWithConfig(cliex.Config{
		RequestTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, errm.Wrap(err, "failed to create HTTP client")
	}
	if cfg.AuthToken != "" {
		cli.C().SetAuthToken(cfg.AuthToken)
	}

	return &Remote{
		cfg: cfg,
		cli: cli,
		log: log,
	}, nil
}

// reviewPayload is the request body sent to the generation service
type reviewPayload struct {
	ProjectID string `json:"project_id"`
	PRIID     int    `json:"pr_iid"`
	SHA       string `json:"sha"`
	Category  string `json:"category"`
	Prompt    string `json:"prompt,omitempty"`
}

// RequestReview asks the external service to produce a review for the PR
func (r *Remote) RequestReview(ctx context.Context, request *model.ReviewRequest) error {
	if request == nil || request.PullRequest == nil {
		return errm.New("review request is empty")
	}

	payload := reviewPayload{
		ProjectID: request.ProjectID,
		PRIID:     request.PullRequest.IID,
		SHA:       request.PullRequest.SHA,
		Category:  string(request.Category),
		Prompt:    lang.Check(request.Prompt, r.cfg.CustomPrompt),
	}

	_, err := r.cli.Post(ctx, r.cfg.Endpoint, payload, nil)
	if err != nil {
		return errm.Wrap(err, "failed to request review")
	}

	r.log.Info("review requested",
		"project_id", request.ProjectID,
		"pr_iid", request.PullRequest.IID,
		"sha", request.PullRequest.SHA,
	)
	return nil
}
