// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"sync"
)

// A downloadGroup tracks a set of concurrent media downloads sharing
// one cancelable context. The first download that fails cancels the
// context so in-flight downloads can stop early, and Wait reports
// that first failure after everything has returned.
type downloadGroup struct {
	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	mtx      sync.Mutex
	firstErr error
}

// newDownloadGroup derives a child context from ctx for the group's
// downloads. The caller must call Cancel when done with the group.
func newDownloadGroup(ctx context.Context) *downloadGroup {
	ctx, cancel := context.WithCancel(ctx)
	return &downloadGroup{ctx: ctx, cancel: cancel}
}

// Cancel releases the group's context.
func (g *downloadGroup) Cancel() {
	g.cancel()
}

// Context returns the context the group's downloads should use. It is
// canceled when a download fails or Cancel is called.
func (g *downloadGroup) Context() context.Context {
	return g.ctx
}

// Go runs f in a new goroutine. After a download has failed, Go is a
// no-op.
func (g *downloadGroup) Go(f func() error) {
	g.mtx.Lock()
	failed := g.firstErr != nil
	g.mtx.Unlock()
	if failed {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := f(); err != nil {
			g.fail(err)
		}
	}()
}

func (g *downloadGroup) fail(err error) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if g.firstErr == nil {
		g.firstErr = err
		g.cancel()
	}
}

// Wait blocks until every started download has returned. It returns
// the first download error, or the context's error if the parent
// context was canceled before any download failed.
func (g *downloadGroup) Wait() error {
	g.wg.Wait()
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if g.firstErr != nil {
		return g.firstErr
	}
	return g.ctx.Err()
}
