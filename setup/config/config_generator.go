// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"os"
	"sync"
	"time"
)

type Generator struct {
	Global *Global `yaml:"-"`

	// APIKey may be left empty and supplied through AXON_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the OpenAI endpoint, e.g. for a local
	// OpenAI-compatible server. Empty means the public API.
	BaseURL string `yaml:"base_url"`

	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`

	// Persona is prepended to every system prompt. It describes the voice
	// the generated replies should carry.
	Persona string `yaml:"persona"`

	// FewShotExamples are sample replies included in the system prompt
	// so the model matches their tone. At most three are used.
	FewShotExamples []string `yaml:"few_shot_examples"`

	// MaxContextChars bounds how much thread context is packed into the
	// prompt.
	MaxContextChars int `yaml:"max_context_chars"`

	// Content filter. A draft matching any banned pattern, or falling
	// outside the length bounds, is regenerated up to MaxAttempts times.
	BannedPatterns []string `yaml:"banned_patterns"`
	MinLength      int      `yaml:"min_length"`
	MaxLength      int      `yaml:"max_length"`
	MaxAttempts    int      `yaml:"max_attempts"`

	apiKeyOnce sync.Once
	apiKey     string
}

// defaultBannedPatterns are regexes (case-insensitive) matching phrasing
// that gives away machine-written text.
var defaultBannedPatterns = []string{
	`as an ai\b`,
	`as a language model`,
	`i'm an ai`,
	`i am an ai`,
	`it'?s important to note that`,
	`in summary,`,
	`in conclusion,`,
	`based on my experience,`,
	`i don'?t have personal`,
	`i cannot provide`,
	`as an assistant`,
	`i hope this helps!$`,
	`feel free to ask`,
	`let me know if you`,
	`i'd be happy to`,
}

func (c *Generator) Defaults(opts DefaultOpts) {
	c.Model = "gpt-4o-mini"
	c.MaxTokens = 500
	c.Temperature = 0.8
	c.Timeout = 60 * time.Second
	c.MaxContextChars = 8000
	c.BannedPatterns = defaultBannedPatterns
	c.MinLength = 20
	c.MaxLength = 2000
	c.MaxAttempts = 3
	if opts.Generate {
		c.Persona = "A helpful, plain-spoken regular who answers from firsthand experience."
	}
}

func (c *Generator) Verify(configErrs *ConfigErrors) {
	if c.GetAPIKey() == "" {
		configErrs.Add("either generator.api_key or AXON_OPENAI_API_KEY must be set")
	}
	checkNotEmpty(configErrs, "generator.model", c.Model)
	checkPositive(configErrs, "generator.max_tokens", int64(c.MaxTokens))
	checkPositive(configErrs, "generator.max_attempts", int64(c.MaxAttempts))
	if c.MinLength <= 0 || c.MaxLength <= c.MinLength {
		configErrs.Add("generator.min_length and generator.max_length must describe a non-empty range")
	}
}

// GetAPIKey returns the LLM API key, preferring AXON_OPENAI_API_KEY over
// the config file.
func (c *Generator) GetAPIKey() string {
	c.apiKeyOnce.Do(func() {
		c.apiKey = os.Getenv("AXON_OPENAI_API_KEY")
		if c.apiKey == "" {
			c.apiKey = c.APIKey
		}
	})
	return c.apiKey
}
