// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package caching

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/dgraph-io/ristretto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/types"
)

// Each partition gets a distinct single-byte prefix so that keys from
// different partitions can never collide in the shared cache.
const (
	subredditRulesCache byte = iota + 1
	authorKarmaCache
)

// NewRistrettoCache creates a new in-process cache of the given total
// cost, shared between all partitions. Entries expire after maxAge at
// the latest; callers wanting a shorter window compare timestamps on
// the cached values themselves.
func NewRistrettoCache(maxCost config.DataUnit, maxAge time.Duration, enablePrometheus bool) *Caches {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64((maxCost / 1024) * 10), // assumes ~1KB per entry
		MaxCost:     int64(maxCost),
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		panic(err)
	}
	if enablePrometheus {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "axon",
			Subsystem: "caching_ristretto",
			Name:      "ratio",
		}, func() float64 {
			return float64(cache.Metrics.Ratio())
		})
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "axon",
			Subsystem: "caching_ristretto",
			Name:      "cost",
		}, func() float64 {
			return float64(cache.Metrics.CostAdded() - cache.Metrics.CostEvicted())
		})
	}
	return &Caches{
		SubredditRules: &RistrettoCachePartition[string, types.RuleVerdict]{
			cache:   cache,
			Prefix:  subredditRulesCache,
			Mutable: true,
			MaxAge:  maxAge,
		},
		AuthorKarma: &RistrettoCachePartition[string, int64]{
			cache:   cache,
			Prefix:  authorKarmaCache,
			Mutable: true,
			MaxAge:  maxAge,
		},
	}
}

// RistrettoCachePartition defines one partition of the shared cache.
type RistrettoCachePartition[K keyable, V any] struct {
	cache   *ristretto.Cache
	Prefix  byte
	Mutable bool
	MaxAge  time.Duration
}

func (c *RistrettoCachePartition[K, V]) Set(key K, value V) {
	bkey := fmt.Sprintf("%c%v", c.Prefix, key)
	var cost int64
	if cv, ok := any(value).(costable); ok {
		cost = int64(cv.CacheCost())
	} else if cv, ok := any(value).(string); ok {
		cost = int64(len(cv))
	} else {
		cost = int64(unsafe.Sizeof(value))
	}
	c.cache.SetWithTTL(bkey, value, cost, c.MaxAge)
}

func (c *RistrettoCachePartition[K, V]) Unset(key K) {
	bkey := fmt.Sprintf("%c%v", c.Prefix, key)
	c.cache.Del(bkey)
}

func (c *RistrettoCachePartition[K, V]) Get(key K) (value V, ok bool) {
	bkey := fmt.Sprintf("%c%v", c.Prefix, key)
	v, ok := c.cache.Get(bkey)
	if !ok || v == nil {
		var empty V
		return empty, false
	}
	value, ok = v.(V)
	return value, ok
}
