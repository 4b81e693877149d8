// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Global struct {
	// PublicURL is the externally reachable base URL of the callback API.
	// Approval links in outbound notifications are built from it.
	PublicURL string `yaml:"public_url"`

	// The agent database stores every durable record: the replay ledger,
	// the draft queue, performance history, daily counters and the error
	// log. All components share this single database.
	DatabaseOptions DatabaseOptions `yaml:"database"`

	Cache CacheOptions `yaml:"cache"`

	Sentry Sentry `yaml:"sentry"`

	Metrics Metrics `yaml:"metrics"`
}

func (c *Global) Defaults(opts DefaultOpts) {
	c.PublicURL = "http://localhost:8322"
	if opts.Generate {
		c.DatabaseOptions.ConnectionString = opts.DatabaseURI
		if c.DatabaseOptions.ConnectionString == "" {
			c.DatabaseOptions.ConnectionString = "file:axon.db"
		}
	}
	c.DatabaseOptions.Defaults(10)
	c.Cache.Defaults()
}

func (c *Global) Verify(configErrs *ConfigErrors) {
	checkNotEmpty(configErrs, "global.public_url", c.PublicURL)
	if c.PublicURL != "" {
		if u, err := url.Parse(c.PublicURL); err != nil || u.Host == "" || !strings.HasPrefix(u.Scheme, "http") {
			configErrs.Add("global.public_url must be a valid http(s):// URL")
		}
	}
	checkNotEmpty(configErrs, "global.database.connection_string", string(c.DatabaseOptions.ConnectionString))
}

type CacheOptions struct {
	// The estimated maximum size of the in-process caches in bytes.
	EstimatedMaxSize DataUnit `yaml:"max_size_estimated"`
	// The maximum amount of time that a cache entry may live for.
	MaxAge time.Duration `yaml:"max_age"`
	// Whether to register cache size metrics with Prometheus.
	EnablePrometheus bool `yaml:"enable_prometheus"`
}

func (c *CacheOptions) Defaults() {
	if c.EstimatedMaxSize == 0 {
		c.EstimatedMaxSize = 64 * 1024 * 1024 // 64MB
	}
	if c.MaxAge == 0 {
		c.MaxAge = 24 * time.Hour
	}
}

// The configuration to use for Sentry error reporting.
type Sentry struct {
	Enabled bool `yaml:"enabled"`
	// The DSN to use e.g "https://examplePublicKey@o0.ingest.sentry.io/0"
	// See https://docs.sentry.io/platforms/go/configuration/options/
	DSN string `yaml:"dsn"`
	// The environment e.g "production"
	// See https://docs.sentry.io/platforms/go/configuration/environments/
	Environment string `yaml:"environment"`
}

type Metrics struct {
	// Whether or not the /metrics endpoint should be enabled on the
	// callback API listener.
	Enabled bool `yaml:"enabled"`

	// Use BasicAuth for Authorization
	BasicAuth struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"basic_auth"`
}

type DatabaseOptions struct {
	// The connection string, file:filename.db or postgres://server....
	ConnectionString DataSource `yaml:"connection_string"`
	// Maximum open connections to the DB (0 = use default, negative means unlimited)
	MaxOpenConnections int `yaml:"max_open_conns"`
	// Maximum idle connections to the DB (0 = use default, negative means unlimited)
	MaxIdleConnections int `yaml:"max_idle_conns"`
	// maximum amount of time (in seconds) a connection may be reused (<= 0 means unlimited)
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime"`
}

func (c *DatabaseOptions) Defaults(conns int) {
	c.MaxOpenConnections = conns
	c.MaxIdleConnections = 2
	c.ConnMaxLifetimeSeconds = -1
}

// MaxIdleConns returns maximum idle connections to the DB.
func (c DatabaseOptions) MaxIdleConns() int {
	return c.MaxIdleConnections
}

// MaxOpenConns returns maximum open connections to the DB.
func (c DatabaseOptions) MaxOpenConns() int {
	return c.MaxOpenConnections
}

// ConnMaxLifetime returns maximum amount of time a connection may be reused.
func (c DatabaseOptions) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// DataUnit represents a quantity of bytes. Supports suffixes "kb", "mb",
// "gb" and "tb"; a bare number is a byte count.
type DataUnit int64

func (d *DataUnit) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var datasize string
	var value DataUnit
	if err := unmarshal(&datasize); err != nil {
		return err
	}
	datasize = strings.ToLower(strings.TrimSpace(datasize))
	if _, err := fmt.Sscanf(datasize, "%d", &value); err != nil {
		return fmt.Errorf("invalid data unit %q: %w", datasize, err)
	}
	switch {
	case strings.HasSuffix(datasize, "tb"):
		*d = value * 1024 * 1024 * 1024 * 1024
	case strings.HasSuffix(datasize, "gb"):
		*d = value * 1024 * 1024 * 1024
	case strings.HasSuffix(datasize, "mb"):
		*d = value * 1024 * 1024
	case strings.HasSuffix(datasize, "kb"):
		*d = value * 1024
	default:
		*d = value
	}
	return nil
}
