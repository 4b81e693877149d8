// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package generator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/element-hq/axon/setup/config"
)

// ErrContentFiltered is returned when every generation attempt produced
// content that failed validation. It is item-local: the pipeline logs
// it and moves on to the next candidate.
var ErrContentFiltered = errors.New("generated content failed the content filter")

// ContentFilter rejects drafts that would give the account away:
// machine-sounding phrases, suspicious lengths, empty output.
type ContentFilter struct {
	patterns  []*regexp.Regexp
	minLength int
	maxLength int
}

func NewContentFilter(cfg *config.Generator) (*ContentFilter, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.BannedPatterns))
	for _, raw := range cfg.BannedPatterns {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			return nil, fmt.Errorf("invalid banned pattern %q: %w", raw, err)
		}
		patterns = append(patterns, re)
	}
	return &ContentFilter{
		patterns:  patterns,
		minLength: cfg.MinLength,
		maxLength: cfg.MaxLength,
	}, nil
}

// Check returns nil when the content may be queued for approval, or an
// error naming the first rule it broke.
func (f *ContentFilter) Check(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content is empty")
	}
	if len(content) < f.minLength {
		return fmt.Errorf("content too short (%d < %d)", len(content), f.minLength)
	}
	if len(content) > f.maxLength {
		return fmt.Errorf("content too long (%d > %d)", len(content), f.maxLength)
	}
	for _, re := range f.patterns {
		if re.MatchString(content) {
			return fmt.Errorf("content matches banned phrase %q", re.String())
		}
	}
	return nil
}
