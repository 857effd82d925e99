// Package provider exposes VCS providers behind a common interface.
package provider

import (
	"github.com/maxbolgarin/erro"
	"github.com/totetech/reviewpilot/internal/model"
	"github.com/totetech/reviewpilot/internal/model/interfaces"
	"github.com/totetech/reviewpilot/internal/provider/github"
	"github.com/totetech/reviewpilot/internal/provider/gitlab"
)

// New creates a new VCS provider based on the configuration
func New(cfg Config) (interfaces.CodeProvider, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, erro.Wrap(err, "validate config")
	}

	cfgForProvider := model.ProviderConfig{
		Type:          string(cfg.Type),
		BaseURL:       cfg.BaseURL,
		Token:         cfg.Token,
		WebhookSecret: cfg.WebhookSecret,
		BotUsername:   cfg.BotUsername,
	}

	var provider interfaces.CodeProvider
	var err error

	switch cfg.Type {
	case GitLab:
		provider, err = gitlab.New(cfgForProvider)
	case GitHub:
		provider, err = github.New(cfgForProvider)
	default:
		return nil, erro.New("unsupported provider type: %s", cfg.Type)
	}
	if err != nil {
		return nil, erro.Wrap(err, "failed to create provider")
	}

	return provider, nil
}
