// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// An ExternalClient performs requests against third-party URLs that
// are not part of the Dataverse API: presigned cloud-storage upload
// URLs, and the public media links returned with datarows. Transient
// failures are retried with exponential backoff.
type ExternalClient struct {
	// HTTP client used to make requests. If nil,
	// http.DefaultClient is used.
	Client *http.Client

	// Maximum number of retries per request. Zero means
	// DefaultMaxRetries.
	MaxRetries int

	// Wait before the first retry. Zero means one second; the
	// wait doubles per attempt.
	RetryWaitMin time.Duration
}

func (ec *ExternalClient) retryClient() *retryablehttp.Client {
	httpClient := ec.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	retries := ec.MaxRetries
	if retries == 0 {
		retries = DefaultMaxRetries
	}
	waitMin := ec.RetryWaitMin
	if waitMin == 0 {
		waitMin = time.Second
	}
	return &retryablehttp.Client{
		HTTPClient:   httpClient,
		RetryWaitMin: waitMin,
		RetryWaitMax: 32 * waitMin,
		RetryMax:     retries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}
}

// Download fetches the content behind url.
func (ec *ExternalClient) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := ec.retryClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Upload sends body to url with an HTTP PUT, as expected by presigned
// cloud-storage upload URLs.
func (ec *ExternalClient) Upload(ctx context.Context, url string, body []byte, contentType string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := ec.retryClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload %s: %s", url, resp.Status)
	}
	return nil
}
