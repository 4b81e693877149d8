// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Package generator turns a packed conversation context into a draft
// reply via an OpenAI-compatible chat-completions endpoint, and guards
// the output with a content filter so nothing machine-sounding ever
// reaches the approval queue.
package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/setup/config"
)

// Request is one draft to generate.
type Request struct {
	Subreddit string
	// Context is the packed conversation, already PII-scrubbed and
	// bounded by the ContextBuilder.
	Context string
}

// Generator produces filtered draft replies.
type Generator struct {
	cfg    *config.Generator
	client *openai.Client
	filter *ContentFilter
}

func NewGenerator(cfg *config.Generator) (*Generator, error) {
	filter, err := NewContentFilter(cfg)
	if err != nil {
		return nil, err
	}
	clientCfg := openai.DefaultConfig(cfg.GetAPIKey())
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Generator{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
		filter: filter,
	}, nil
}

// Generate asks the model for a reply and validates it, retrying up to
// MaxAttempts times on filter failures. Transport and API errors are
// returned as-is; only filtered content is retried.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemMessage(g.cfg.Persona, g.cfg.FewShotExamples),
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: userMessage(req.Context),
		},
	}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       g.cfg.Model,
			Messages:    messages,
			MaxTokens:   g.cfg.MaxTokens,
			Temperature: g.cfg.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("chat completion returned no choices")
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)

		if err := g.filter.Check(content); err != nil {
			lastErr = err
			logrus.WithFields(logrus.Fields{
				"subreddit": req.Subreddit,
				"attempt":   attempt,
			}).WithError(err).Warn("Generated content failed validation, retrying")
			continue
		}

		logrus.WithFields(logrus.Fields{
			"subreddit": req.Subreddit,
			"length":    len(content),
			"attempt":   attempt,
		}).Info("Draft generated")
		return content, nil
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrContentFiltered, g.cfg.MaxAttempts, lastErr)
}
