package reviewer

import (
	"github.com/maxbolgarin/lang"
)

const (
	defaultMaxFiles = 50
	defaultMaxLines = 2000
)

// Config represents review pipeline configuration.
// The skip thresholds here are independent from the fixed labeling thresholds:
// labels describe every change, skip only gates whether a review is requested.
type Config struct {
	SkipLargeChanges *bool  `yaml:"skip_large_changes" env:"REVIEW_SKIP_LARGE_CHANGES"`
	MaxFiles         int    `yaml:"max_files" env:"REVIEW_MAX_FILES"`
	MaxLines         int    `yaml:"max_lines" env:"REVIEW_MAX_LINES"`
	CustomPrompt     string `yaml:"custom_prompt" env:"REVIEW_CUSTOM_PROMPT"`
}

func (c *Config) PrepareAndValidate() error {
	if c.SkipLargeChanges == nil {
		c.SkipLargeChanges = lang.Ptr(true)
	}
	c.MaxFiles = lang.Check(c.MaxFiles, defaultMaxFiles)
	c.MaxLines = lang.Check(c.MaxLines, defaultMaxLines)
	return nil
}
