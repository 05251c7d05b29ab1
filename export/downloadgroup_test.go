// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"errors"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&DownloadGroupSuite{})

type DownloadGroupSuite struct{}

func (s *DownloadGroupSuite) TestFirstErrorWins(c *check.C) {
	dg := newDownloadGroup(context.Background())
	defer dg.Cancel()

	errFail := errors.New("boom")
	started := make(chan struct{})
	dg.Go(func() error {
		close(started)
		return errFail
	})
	<-started
	// The failure cancels the group context, and later downloads
	// return the first error regardless of their own.
	<-dg.Context().Done()
	dg.Go(func() error { return errors.New("later") })
	c.Check(dg.Wait(), check.Equals, errFail)
}

func (s *DownloadGroupSuite) TestWaitReturnsParentCancel(c *check.C) {
	ctx, cancel := context.WithCancel(context.Background())
	dg := newDownloadGroup(ctx)
	defer dg.Cancel()

	dg.Go(func() error {
		<-dg.Context().Done()
		return nil
	})
	cancel()
	c.Check(dg.Wait(), check.Equals, context.Canceled)
}

func (s *DownloadGroupSuite) TestWaitNilOnSuccess(c *check.C) {
	dg := newDownloadGroup(context.Background())
	dg.Go(func() error { return nil })
	c.Check(dg.Wait(), check.IsNil)
	dg.Cancel()
}
