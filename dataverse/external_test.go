// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&ExternalSuite{})

type ExternalSuite struct{}

func (s *ExternalSuite) TestDownload(c *check.C) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("media bytes"))
	}))
	defer srv.Close()

	ec := &ExternalClient{RetryWaitMin: time.Millisecond}
	buf, err := ec.Download(context.Background(), srv.URL+"/a.jpg")
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, "media bytes")
	c.Check(atomic.LoadInt64(&calls), check.Equals, int64(2))
}

func (s *ExternalSuite) TestDownloadNotFound(c *check.C) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	ec := &ExternalClient{RetryWaitMin: time.Millisecond}
	_, err := ec.Download(context.Background(), srv.URL+"/missing.jpg")
	c.Check(err, check.ErrorMatches, `download .*: 404 Not Found`)
}

func (s *ExternalSuite) TestUpload(c *check.C) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.Method, check.Equals, "PUT")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	ec := &ExternalClient{RetryWaitMin: time.Millisecond}
	err := ec.Upload(context.Background(), srv.URL+"/a.jpg", []byte("image bytes"), "image/jpeg")
	c.Assert(err, check.IsNil)
	c.Check(string(gotBody), check.Equals, "image bytes")
	c.Check(gotContentType, check.Equals, "image/jpeg")
}
