// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v2"

	"github.com/element-hq/axon/setup/config"
)

func main() {
	defaultsForCI := flag.Bool("ci", false, "Populate the configuration with sane defaults for use in CI")
	dbURI := flag.String("db", "file:axon.db", "The database connection string to write into the generated config")
	username := flag.String("username", "", "The Reddit account username to write into the generated config")
	promptPassword := flag.Bool("prompt", true, "Prompt for the Reddit account password on stdin")
	flag.Parse()

	cfg := &config.Axon{}
	cfg.Defaults(config.DefaultOpts{
		Generate:    true,
		DatabaseURI: config.DataSource(*dbURI),
	})

	if *username != "" {
		cfg.Reddit.Username = *username
	}
	if *promptPassword && !*defaultsForCI && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Reddit account password (leave empty to fill in later): ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to read password:", err)
			os.Exit(1)
		}
		cfg.Reddit.Password = string(password)
	}

	if *defaultsForCI {
		cfg.Reddit.Username = "ci-axon"
		cfg.Reddit.Password = "ci-password"
		cfg.Reddit.ClientID = "ci-client-id"
		cfg.Reddit.ClientSecret = "ci-client-secret"
		cfg.Reddit.Subreddits = []string{"golang"}
		cfg.Generator.APIKey = "ci-api-key"
		cfg.Notifier.Type = "webhook"
		cfg.Notifier.Webhook.URL = "http://localhost:8009/notify"
		cfg.Logging = nil
	}

	j, err := yaml.Marshal(cfg)
	if err != nil {
		panic(err)
	}
	fmt.Print(string(j))
}
