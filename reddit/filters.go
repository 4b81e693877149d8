// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package reddit

import (
	"regexp"
	"strings"
)

// botAuthorPattern matches usernames that are very likely automated.
// Replying to other bots wastes the daily budget and looks spammy.
var botAuthorPattern = regexp.MustCompile(`(?i)(bot|assistant|auto)`)

// IgnorableAuthor reports whether an author should never be engaged:
// deleted accounts, AutoModerator and obviously automated usernames.
func IgnorableAuthor(author string) bool {
	if author == "" || author == "[deleted]" {
		return true
	}
	if strings.EqualFold(author, "AutoModerator") {
		return true
	}
	return botAuthorPattern.MatchString(author)
}

// BlockedKeyword returns the first configured no-go topic mentioned in
// the text, if any. Matching is case-insensitive substring.
func BlockedKeyword(text string, keywords []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}
