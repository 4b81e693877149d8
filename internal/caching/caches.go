// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package caching

import (
	"github.com/element-hq/axon/types"
)

// Caches contains a set of references to caches. They may be
// different implementations as long as they satisfy the Cache
// interface.
type Caches struct {
	SubredditRules Cache[string, types.RuleVerdict] // subreddit name -> rule compliance verdict
	AuthorKarma    Cache[string, int64]             // username -> combined karma
}

// Cache is the interface that an implementation must satisfy.
type Cache[K keyable, T any] interface {
	Get(key K) (value T, ok bool)
	Set(key K, value T)
	Unset(key K)
}

// Valid key types, as supported by Ristretto.
type keyable interface {
	uint64 | string | []byte | byte | int | int32 | uint32 | int64
}

// costable types can report their own cache cost, otherwise the size
// of the value is estimated.
type costable interface {
	CacheCost() int
}

const (
	DisableMetrics = false
	EnableMetrics  = true
)
