// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package generator

import (
	"fmt"
	"regexp"
	"strings"
)

// maxFewShotExamples bounds how many style examples reach the prompt.
const maxFewShotExamples = 3

const promptGuidelines = `
Guidelines:
- Write a natural, helpful reply
- Match the tone and style of the examples
- Avoid formal language and AI-like phrases
- Be concise but helpful
- Do not include phrases like "As an AI" or "In summary"
`

// systemMessage assembles the system prompt: the configured persona,
// numbered style examples, then the guidelines.
func systemMessage(persona string, examples []string) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	if len(examples) > maxFewShotExamples {
		examples = examples[:maxFewShotExamples]
	}
	if len(examples) > 0 {
		b.WriteString("Example replies (match this tone and style):\n")
		for i, example := range examples {
			fmt.Fprintf(&b, "%d. %s\n", i+1, example)
		}
	}

	b.WriteString(promptGuidelines)
	return b.String()
}

func userMessage(context string) string {
	return fmt.Sprintf("Write a reply to the following Reddit conversation:\n\n%s\n\nYour reply:", context)
}

// piiPatterns match secrets and personal data that must never leave the
// process inside a prompt. Matches are replaced with a typed redaction
// marker.
var piiPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"PHONE", regexp.MustCompile(`(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"CREDIT_CARD", regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
	{"IP_ADDRESS", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{"URL_WITH_TOKEN", regexp.MustCompile(`(?i)https?://[^\s]*[?&](token|key|api_key|secret|password|auth)=[^\s&]+`)},
	{"AWS_KEY", regexp.MustCompile(`\b(AKIA|ABIA|ACCA|ASIA)[A-Z0-9]{16}\b`)},
}

// ScrubPII redacts emails, phone numbers, card and social security
// numbers, IP addresses, tokened URLs and AWS keys from thread content
// before it is packed into a prompt.
func ScrubPII(text string) string {
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllString(text, "[REDACTED_"+p.kind+"]")
	}
	return text
}
