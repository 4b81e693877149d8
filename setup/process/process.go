// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package process

import (
	"context"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ProcessContext is passed to long-running components so that they can
// be told to shut down and so that the main process can wait for them
// to finish before exiting.
type ProcessContext struct {
	wg       *sync.WaitGroup
	ctx      context.Context
	shutdown context.CancelFunc
	degraded atomic.Bool
}

func NewProcessContext() *ProcessContext {
	ctx, shutdown := context.WithCancel(context.Background())
	return &ProcessContext{
		ctx:      ctx,
		shutdown: shutdown,
		wg:       &sync.WaitGroup{},
	}
}

// Context returns a context that is cancelled when the process is told
// to shut down.
func (b *ProcessContext) Context() context.Context {
	return context.WithValue(b.ctx, "scope", "process") // nolint:staticcheck
}

// ComponentStarted must be called by a component when it starts so that
// WaitForComponentsToFinish knows to wait for it.
func (b *ProcessContext) ComponentStarted() {
	b.wg.Add(1)
}

func (b *ProcessContext) ComponentFinished() {
	b.wg.Done()
}

// ShutdownAxon cancels the process context, telling every component
// started with it to stop.
func (b *ProcessContext) ShutdownAxon() {
	b.shutdown()
}

// WaitForShutdown returns a channel that is closed once ShutdownAxon
// has been called.
func (b *ProcessContext) WaitForShutdown() <-chan struct{} {
	return b.ctx.Done()
}

func (b *ProcessContext) WaitForComponentsToFinish() {
	b.wg.Wait()
}

// Degraded marks the process as degraded, e.g. when a component failed
// to start but the process is carrying on anyway. The exit code of the
// process should reflect this.
func (b *ProcessContext) Degraded() {
	if b.degraded.CompareAndSwap(false, true) {
		logrus.Warn("Axon is running in a degraded state")
		sentry.CaptureException(fmt.Errorf("process is running in a degraded state"))
	}
}

func (b *ProcessContext) IsDegraded() bool {
	return b.degraded.Load()
}
