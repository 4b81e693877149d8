// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jaegerconfig "github.com/uber/jaeger-client-go/config"
	"gopkg.in/yaml.v2"
)

// Version is the current version of the config format.
// This will change whenever we make breaking changes to the config format.
const Version = 1

// Axon contains all the config used by the agent. A config file is
// distributed across the per-component structs below; every component
// receives the section it owns plus a pointer to Global.
type Axon struct {
	// The version of the configuration file.
	Version int `yaml:"version"`

	Global      Global      `yaml:"global"`
	Reddit      Reddit      `yaml:"reddit"`
	Scoring     Scoring     `yaml:"scoring"`
	Selection   Selection   `yaml:"selection"`
	Generator   Generator   `yaml:"generator"`
	Notifier    Notifier    `yaml:"notifier"`
	CallbackAPI CallbackAPI `yaml:"callback_api"`

	// The config for tracing the agent.
	Tracing struct {
		// Set to true to enable tracer hooks. If false, no tracing is set up.
		Enabled bool `yaml:"enabled"`
		// The config for the jaeger opentracing reporter.
		Jaeger jaegerconfig.Configuration `yaml:"jaeger"`
	} `yaml:"tracing"`

	// The config for logging informational messages and errors.
	Logging []LogrusHook `yaml:"logging"`
}

// DefaultOpts contains the options used when generating a default config.
type DefaultOpts struct {
	// Generate means the defaults are being used to generate a starter
	// config file, so placeholder values are filled in too.
	Generate bool
	// DatabaseURI is the connection string written into a generated config.
	DatabaseURI DataSource
}

// Defaults sets default config values on all sections.
func (c *Axon) Defaults(opts DefaultOpts) {
	c.Version = Version

	c.Global.Defaults(opts)
	c.Reddit.Defaults(opts)
	c.Scoring.Defaults(opts)
	c.Selection.Defaults(opts)
	c.Generator.Defaults(opts)
	c.Notifier.Defaults(opts)
	c.CallbackAPI.Defaults(opts)

	c.Wire()
}

// Verify checks the config and adds anything wrong with it to configErrs.
func (c *Axon) Verify(configErrs *ConfigErrors) {
	type verifiable interface {
		Verify(configErrs *ConfigErrors)
	}
	for _, section := range []verifiable{
		&c.Global, &c.Reddit, &c.Scoring, &c.Selection,
		&c.Generator, &c.Notifier, &c.CallbackAPI,
	} {
		section.Verify(configErrs)
	}
}

// Wire sets the Global pointers on each section. Must be called after
// unmarshalling before any section is used.
func (c *Axon) Wire() {
	c.Reddit.Global = &c.Global
	c.Scoring.Global = &c.Global
	c.Selection.Global = &c.Global
	c.Generator.Global = &c.Global
	c.Notifier.Global = &c.Global
	c.CallbackAPI.Global = &c.Global
}

// Load the configuration from the given file, verifying it as we go.
func Load(configPath string) (*Axon, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, err
	}
	basePath := filepath.Dir(absPath)
	return loadConfig(basePath, configData)
}

func loadConfig(basePath string, configData []byte) (*Axon, error) {
	var c Axon
	c.Defaults(DefaultOpts{})

	var err error
	if err = yaml.Unmarshal(configData, &c); err != nil {
		return nil, err
	}
	c.Wire()

	if c.Version != Version {
		return nil, fmt.Errorf(
			"config version is %d, expected %d - this means that the format of the configuration "+
				"file has changed in some significant way, so please revisit your config",
			c.Version, Version,
		)
	}

	var configErrs ConfigErrors
	c.Verify(&configErrs)
	if configErrs != nil {
		return nil, configErrs
	}
	return &c, nil
}

// A Path on the filesystem.
type Path string

// A DataSource for opening a database connection.
type DataSource string

func (d DataSource) IsSQLite() bool {
	return strings.HasPrefix(string(d), "file:")
}

func (d DataSource) IsPostgres() bool {
	return strings.HasPrefix(string(d), "postgres:") || strings.HasPrefix(string(d), "postgresql:")
}

// A LogrusHook represents a single logrus hook. At this point, only parsing
// and verification of the proper values for type and level are done.
// Validity/integrity checks on the parameters are done when configuring logrus.
type LogrusHook struct {
	// The type of hook, currently only "file" is supported.
	Type string `yaml:"type"`

	// The level of the logs to produce. Will output only this level and above.
	Level string `yaml:"level"`

	// The parameters for this hook.
	Params map[string]interface{} `yaml:"params"`
}

// ConfigErrors stores problems encountered when parsing a config file.
// It implements the error interface.
type ConfigErrors []string

// Add appends an error to the list of errors in this ConfigErrors.
// It is a wrapper to the builtin append and hides pointers from
// the client code.
// This method is safe to use with an uninitialized ConfigErrors because
// if it is nil, it will be properly allocated.
func (errs *ConfigErrors) Add(str string) {
	*errs = append(*errs, str)
}

// Error returns a string detailing how many errors were contained within a
// ConfigErrors type.
func (errs ConfigErrors) Error() string {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Sprintf(
		"%s (and %d other problems)", errs[0], len(errs)-1,
	)
}

// checkNotEmpty verifies the given value is not empty in the configuration.
// If it is, adds an error to the list.
func checkNotEmpty(configErrs *ConfigErrors, key, value string) {
	if value == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
	}
}

// checkPositive verifies the given value is positive (zero included)
// in the configuration. If it is not, adds an error to the list.
func checkPositive(configErrs *ConfigErrors, key string, value int64) {
	if value < 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %d", key, value))
	}
}

// checkUnitInterval verifies the given value lies in [0, 1].
// If it does not, adds an error to the list.
func checkUnitInterval(configErrs *ConfigErrors, key string, value float64) {
	if value < 0.0 || value > 1.0 {
		configErrs.Add(fmt.Sprintf("config key %q must be between 0 and 1, got %v", key, value))
	}
}
