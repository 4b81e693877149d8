// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/element-hq/axon/setup/config"
)

const telegramAPIBase = "https://api.telegram.org"

const telegramDraftMessage = `📝 *New Draft for Approval*

*Subreddit:* r/%s
*Thread:* [View on Reddit](%s)
*Draft ID:* ` + "`%s`" + `

───────────────

%s

───────────────

Click the buttons below to approve or reject.`

// Telegram sends notifications through a bot, with inline approve and
// reject buttons. The buttons carry plain URLs that open the approval
// page in a browser, so no bot interactivity setup is needed beyond
// the token from @BotFather.
type Telegram struct {
	token     string
	chatID    string
	publicURL string
	client    *http.Client

	// Overridden in tests.
	baseURL string
}

// NewTelegram builds the Telegram notifier. The bot token may come from
// AXON_TELEGRAM_TOKEN instead of the config file.
func NewTelegram(cfg *config.Notifier) *Telegram {
	return &Telegram{
		token:     cfg.Telegram.GetBotToken(),
		chatID:    cfg.Telegram.ChatID,
		publicURL: cfg.Global.PublicURL,
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   telegramAPIBase,
	}
}

func (t *Telegram) Notify(ctx context.Context, n Notification) error {
	// Without a token the buttons would dead-end, so refuse to send a
	// notification nobody can act on.
	if n.Token == "" {
		return fmt.Errorf("draft %s has no approval token", n.DraftID)
	}
	approve, reject := approvalURLs(t.publicURL, n.Token)
	keyboard := map[string]any{
		"inline_keyboard": [][]map[string]any{{
			{"text": "✅ Approve", "url": approve},
			{"text": "❌ Reject", "url": reject},
		}},
	}
	text := fmt.Sprintf(telegramDraftMessage, n.Subreddit, n.ThreadURL, n.DraftID, n.Content)
	if err := t.sendMessage(ctx, text, keyboard); err != nil {
		return err
	}
	logrus.WithField("draft_id", n.DraftID).Info("Telegram notification sent")
	return nil
}

func (t *Telegram) NotifyStatus(ctx context.Context, u StatusUpdate) error {
	text := fmt.Sprintf("%s *Status Update*\n\nDraft `%s` is now *%s*", statusEmoji(u.Status), u.DraftID, u.Status)
	if u.CommentID != "" {
		text += fmt.Sprintf("\n\nComment ID: `%s`", u.CommentID)
	}
	return t.sendMessage(ctx, text, nil)
}

// sendMessage calls the Bot API sendMessage method. The Bot API can
// return "ok": false inside an HTTP 200, so both are checked. A
// keyboard, when present, travels as a JSON-encoded string per the Bot
// API's reply_markup convention.
func (t *Telegram) sendMessage(ctx context.Context, text string, keyboard map[string]any) error {
	if t.token == "" || t.chatID == "" {
		return fmt.Errorf("telegram notifier is not configured")
	}
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": false,
	}
	if keyboard != nil {
		markup, err := json.Marshal(keyboard)
		if err != nil {
			return fmt.Errorf("failed to encode inline keyboard: %w", err)
		}
		payload["reply_markup"] = string(markup)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode telegram message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close() // nolint: errcheck
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned HTTP %d", resp.StatusCode)
	}
	if !gjson.GetBytes(respBody, "ok").Bool() {
		return fmt.Errorf("telegram API rejected the message: %s", gjson.GetBytes(respBody, "description").String())
	}
	return nil
}
