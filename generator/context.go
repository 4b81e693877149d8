// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/element-hq/axon/types"
)

// section is one labelled block of conversation context. Priority
// decides what gets cut when the whole context exceeds the budget:
// lower goes first, and the target (priority 100) is never touched.
type section struct {
	label    string
	content  string
	priority int
}

const (
	priorityPostBody     = 20
	priorityChainBase    = 30
	priorityChainStep    = 20
	priorityPostTitle    = 80
	priorityInstructions = 90
	priorityTarget       = 100

	// labelOverhead approximates the formatting cost of one section:
	// brackets, label, newlines.
	labelOverhead = 25

	postReplyInstructions = "You are replying directly to this post. " +
		"Address the main topic and add value with insights, questions, or relevant experience."
)

// ContextBuilder packs a candidate's vertical conversation chain into a
// bounded string for the prompt. Only the chain above the target is
// loaded, never siblings, and the oldest, least relevant content is
// truncated first.
type ContextBuilder struct {
	maxChars int
}

func NewContextBuilder(maxChars int) *ContextBuilder {
	return &ContextBuilder{maxChars: maxChars}
}

// BuildPostContext renders the context for a reply to a top-level post.
func (b *ContextBuilder) BuildPostContext(candidate *types.Candidate) string {
	sections := make([]section, 0, 3)
	if candidate.Title != "" {
		sections = append(sections, section{"Post Title", candidate.Title, priorityPostTitle})
	}
	if strings.TrimSpace(candidate.Body) != "" {
		sections = append(sections, section{"Post Body", candidate.Body, priorityPostBody})
	}
	sections = append(sections, section{"Instructions", postReplyInstructions, priorityInstructions})
	return b.render(sections)
}

// BuildCommentContext renders the context for a reply to a comment: the
// parent post's title, the ancestor chain oldest-first, then the target
// comment itself.
func (b *ContextBuilder) BuildCommentContext(candidate *types.Candidate, chain []types.ThreadMessage) string {
	sections := make([]section, 0, len(chain)+2)
	if candidate.ParentTitle != "" {
		sections = append(sections, section{"Post Title", candidate.ParentTitle, priorityPostTitle})
	}
	for i, msg := range chain {
		body := msg.Body
		if strings.TrimSpace(body) == "" {
			body = "[deleted]"
		}
		label := "Comment"
		if msg.Author != "" {
			label = "Comment by " + msg.Author
		}
		sections = append(sections, section{label, body, priorityChainBase + i*priorityChainStep})
	}
	targetLabel := "Target Comment"
	if candidate.Author != "" {
		targetLabel = "Reply from " + candidate.Author
	}
	sections = append(sections, section{targetLabel, candidate.Body, priorityTarget})
	return b.render(sections)
}

func (b *ContextBuilder) render(sections []section) string {
	sections = b.fit(sections)
	var lines []string
	for _, s := range sections {
		lines = append(lines, fmt.Sprintf("[%s]", s.label), s.content, "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// fit trims the sections to the character budget. Sections are cut in
// ascending priority order; a fully consumed section is dropped. The
// surviving sections keep their conversational order.
func (b *ContextBuilder) fit(sections []section) []section {
	total := 0
	for _, s := range sections {
		total += len(s.content)
	}
	excess := total + len(sections)*labelOverhead - b.maxChars
	if excess <= 0 {
		return sections
	}

	order := make([]int, len(sections))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return sections[order[i]].priority < sections[order[j]].priority
	})

	for _, idx := range order {
		if excess <= 0 {
			break
		}
		s := &sections[idx]
		if s.priority >= priorityTarget {
			// The target is sacred; if we get here the budget is
			// simply too small and the context stays oversized.
			logrus.WithField("excess", excess).Warn("Context budget too small for target comment")
			break
		}
		if len(s.content) <= excess {
			// Dropping the section frees its label overhead as well.
			excess -= len(s.content) + labelOverhead
			s.content = ""
			continue
		}
		s.content = trimToValidUTF8(s.content[:len(s.content)-excess]) + truncationMark
		excess = 0
	}

	kept := sections[:0]
	for _, s := range sections {
		if s.content != "" {
			kept = append(kept, s)
		}
	}
	return kept
}

const truncationMark = "..."

func trimToValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
