// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"fmt"
	"os"
	"sync"
	"time"
)

type Notifier struct {
	Global *Global `yaml:"-"`

	// Type selects the outbound channel: "webhook", "telegram" or "slack".
	// Targets enables several channels at once; Type is the single-target
	// shorthand and is ignored when Targets is set.
	Type    string   `yaml:"type"`
	Targets []string `yaml:"targets"`

	Timeout time.Duration `yaml:"timeout"`

	Webhook  WebhookNotifier  `yaml:"webhook"`
	Telegram TelegramNotifier `yaml:"telegram"`
	Slack    SlackNotifier    `yaml:"slack"`
}

type WebhookNotifier struct {
	URL string `yaml:"url"`
	// Secret signs the JSON payload with HMAC-SHA256, sent as
	// "X-Signature: sha256=<hex>". May be supplied through
	// AXON_WEBHOOK_SECRET instead.
	Secret string `yaml:"secret"`

	secretOnce sync.Once
	secret     string
}

type TelegramNotifier struct {
	// BotToken may be supplied through AXON_TELEGRAM_TOKEN instead.
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`

	tokenOnce sync.Once
	token     string
}

type SlackNotifier struct {
	// WebhookURL is a Slack incoming-webhook URL.
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

func (c *Notifier) Defaults(opts DefaultOpts) {
	c.Type = "webhook"
	c.Timeout = 10 * time.Second
}

func (c *Notifier) Verify(configErrs *ConfigErrors) {
	for _, target := range c.EnabledTargets() {
		switch target {
		case "webhook":
			checkNotEmpty(configErrs, "notifier.webhook.url", c.Webhook.URL)
		case "telegram":
			if c.Telegram.GetBotToken() == "" {
				configErrs.Add("either notifier.telegram.bot_token or AXON_TELEGRAM_TOKEN must be set")
			}
			checkNotEmpty(configErrs, "notifier.telegram.chat_id", c.Telegram.ChatID)
		case "slack":
			checkNotEmpty(configErrs, "notifier.slack.webhook_url", c.Slack.WebhookURL)
		default:
			configErrs.Add(fmt.Sprintf("unknown notifier type %q (want webhook, telegram or slack)", target))
		}
	}
}

// EnabledTargets returns the notifier targets in configured order. Targets
// takes precedence over the single-value Type.
func (c *Notifier) EnabledTargets() []string {
	if len(c.Targets) > 0 {
		return c.Targets
	}
	if c.Type == "" {
		return nil
	}
	return []string{c.Type}
}

// GetSecret returns the webhook signing secret, preferring
// AXON_WEBHOOK_SECRET over the config file.
func (w *WebhookNotifier) GetSecret() string {
	w.secretOnce.Do(func() {
		w.secret = os.Getenv("AXON_WEBHOOK_SECRET")
		if w.secret == "" {
			w.secret = w.Secret
		}
	})
	return w.secret
}

// GetBotToken returns the Telegram bot token, preferring
// AXON_TELEGRAM_TOKEN over the config file.
func (t *TelegramNotifier) GetBotToken() string {
	t.tokenOnce.Do(func() {
		t.token = os.Getenv("AXON_TELEGRAM_TOKEN")
		if t.token == "" {
			t.token = t.BotToken
		}
	})
	return t.token
}
