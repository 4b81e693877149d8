// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"os"
	"sync"
	"time"
)

type CallbackAPI struct {
	Global *Global `yaml:"-"`

	// ListenAddress for the approval HTTP listener.
	ListenAddress string `yaml:"listen_address"`

	// TokenLifetime is how long an approval token stays redeemable after
	// the draft is queued. Expired tokens behave exactly like unknown
	// ones.
	TokenLifetime time.Duration `yaml:"token_lifetime"`

	// AutoPublish posts a draft upstream immediately after it is approved
	// through the callback API, instead of waiting for the publish
	// command.
	AutoPublish bool `yaml:"auto_publish"`

	// CallbackSecret authenticates programmatic POST callbacks with
	// HMAC-SHA256 over the request body. May be supplied through
	// AXON_CALLBACK_SECRET. The human GET link needs only the token.
	CallbackSecret string `yaml:"callback_secret"`

	secretOnce sync.Once
	secret     string
}

func (c *CallbackAPI) Defaults(opts DefaultOpts) {
	c.ListenAddress = "localhost:8322"
	c.TokenLifetime = 48 * time.Hour
	c.AutoPublish = true
}

func (c *CallbackAPI) Verify(configErrs *ConfigErrors) {
	checkNotEmpty(configErrs, "callback_api.listen_address", c.ListenAddress)
	if c.TokenLifetime <= 0 {
		configErrs.Add("callback_api.token_lifetime must be a positive duration")
	}
}

// GetCallbackSecret returns the callback HMAC secret, preferring
// AXON_CALLBACK_SECRET over the config file. Empty disables the POST
// callback route.
func (c *CallbackAPI) GetCallbackSecret() string {
	c.secretOnce.Do(func() {
		c.secret = os.Getenv("AXON_CALLBACK_SECRET")
		if c.secret == "" {
			c.secret = c.CallbackSecret
		}
	})
	return c.secret
}
