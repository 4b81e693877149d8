// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package internal

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Version of the agent. Gets appended with "-dev" on non-release builds.
const (
	VersionMajor = 0
	VersionMinor = 3
	VersionPatch = 1
	VersionTag   = "" // example: "rc1"

	gitSha = "" // set by the build system
)

func VersionString() string {
	version := fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
	if VersionTag != "" {
		version += "-" + VersionTag
	}
	if gitSha != "" {
		version += "+" + gitSha
	}
	return version
}

// CloseAndLogIfError closes the given closer, logging any error at warn
// level. For use in defers where the usual error return is unavailable.
func CloseAndLogIfError(ctx context.Context, closer io.Closer, message string) {
	if closer == nil {
		return
	}
	err := closer.Close()
	if ctx == nil {
		ctx = context.TODO()
	}
	if err != nil {
		logrus.WithContext(ctx).WithError(err).Warn(message)
	}
}
