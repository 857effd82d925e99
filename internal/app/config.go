package app

import (
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/maxbolgarin/errm"
	"github.com/totetech/reviewpilot/internal/generator"
	"github.com/totetech/reviewpilot/internal/provider"
	"github.com/totetech/reviewpilot/internal/reviewer"
	"github.com/totetech/reviewpilot/internal/server"
)

// Config represents the main application configuration
type Config struct {
	Server    server.Config    `yaml:"server"`
	Provider  provider.Config  `yaml:"provider"`
	Generator generator.Config `yaml:"generator"`
	Review    reviewer.Config  `yaml:"review"`
}

// LoadConfig reads configuration from an optional YAML file and environment
// variables. Environment always wins over the file.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, errm.Wrap(err, "failed to read config file")
		}
		return cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, errm.Wrap(err, "failed to read config from environment")
	}

	return cfg, nil
}
