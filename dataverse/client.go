// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru"
)

// Well-known Dataverse deployments. NewClient accepts any base URL,
// these are just a convenience.
const (
	HostProduction = "https://dataverse.linkervision.ai"
	HostStaging    = "https://staging.dataverse-dev.linkervision.ai"
	HostDemo       = "https://demo.dataverse-dev.linkervision.ai"
	HostLocal      = "http://localhost:8000"
)

// A Client is an HTTP client with a Dataverse API endpoint and a set
// of credentials.
//
// It offers methods for accessing individual Dataverse APIs, and
// methods that implement common patterns like fetching multiple
// pages of results using cursor-paginated list APIs.
type Client struct {
	// HTTP client used to make requests. If nil,
	// DefaultSecureClient or InsecureHTTPClient will be used.
	Client *http.Client `json:"-"`

	// Protocol scheme: "http", "https", or "" (https)
	Scheme string

	// Hostname (or host:port) of the Dataverse API server.
	APIHost string

	// Login credentials. Login exchanges these for AuthToken.
	Email    string `json:"-"`
	Password string `json:"-"`

	// JWT access token. Sent as "Authorization: Bearer ..." with
	// every request. Populated by Login, or set directly when a
	// token is already at hand.
	AuthToken string

	// Refresh token returned by the auth endpoint, if any.
	RefreshToken string `json:",omitempty"`

	// Value for the X-Request-Service-Id header, identifying the
	// calling service to the backend.
	ServiceID string `json:",omitempty"`

	// Accept unverified certificates. This works only if the
	// Client field is nil: otherwise, it has no effect.
	Insecure bool

	// HTTP headers to add/override in outgoing requests.
	SendHeader http.Header

	// Timeout for requests. NewClient and NewClientFromEnv return
	// a Client with a default 5 minute timeout. To disable this
	// timeout and rely on each http.Request's context deadline
	// instead, set Timeout to zero.
	Timeout time.Duration

	// Maximum number of times to retry a request that returns a
	// transient error (5xx or connection failure) before giving
	// up. Zero means DefaultMaxRetries.
	MaxRetries int

	projects     *lru.Cache
	projectsOnce sync.Once

	// APIHost and AuthToken were loaded from DATAVERSE_* env vars
	// (used to customize "no host/token" error messages)
	loadedFromEnv bool
}

// DefaultMaxRetries is the number of times a request returning a
// transient error is retried when Client.MaxRetries is zero.
const DefaultMaxRetries = 5

// InsecureHTTPClient is the default http.Client used by a Client with
// Insecure==true and Client==nil.
var InsecureHTTPClient = &http.Client{
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true}}}

// DefaultSecureClient is the default http.Client used by a Client otherwise.
var DefaultSecureClient = &http.Client{}

// NewClient returns a Client for the Dataverse deployment at the
// given base URL (e.g., HostProduction or "http://localhost:8000").
//
// AuthToken is left empty: populate it directly, or set Email and
// Password and call Login.
func NewClient(host string) (*Client, error) {
	if host == "" {
		return nil, errors.New("dataverse: host must not be empty")
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("dataverse: invalid host %q: %w", host, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("dataverse: no host in URL %q", host)
	}
	return &Client{
		Scheme:  u.Scheme,
		APIHost: u.Host,
		Timeout: 5 * time.Minute,
	}, nil
}

// NewClientFromEnv creates a new Client that uses the API endpoint
// and credentials given by the DATAVERSE_API_* environment variables,
// falling back on ~/.config/dataverse/settings.conf for variables not
// present in the environment.
func NewClientFromEnv() *Client {
	vars := map[string]string{}
	home := os.Getenv("HOME")
	conffile := home + "/.config/dataverse/settings.conf"
	if home == "" {
		// no $HOME => just use env vars
	} else if settings, err := os.ReadFile(conffile); err != nil {
		// no settings file => just use env vars
	} else {
		for _, line := range bytes.Split(settings, []byte{'\n'}) {
			kv := bytes.SplitN(line, []byte{'='}, 2)
			k := string(bytes.TrimSpace(kv[0]))
			if len(kv) != 2 || !strings.HasPrefix(k, "DATAVERSE_") {
				// Same behavior as python sdk:
				// silently skip leading # (comments),
				// blank lines, etc.
				continue
			}
			vars[k] = string(bytes.TrimSpace(kv[1]))
		}
	}
	for _, k := range []string{"DATAVERSE_API_HOST", "DATAVERSE_API_TOKEN", "DATAVERSE_API_HOST_INSECURE", "DATAVERSE_SERVICE_ID"} {
		if v := os.Getenv(k); v != "" {
			vars[k] = v
		}
	}
	var insecure bool
	if s := strings.ToLower(vars["DATAVERSE_API_HOST_INSECURE"]); s == "1" || s == "yes" || s == "true" {
		insecure = true
	}
	scheme, apiHost := "https", vars["DATAVERSE_API_HOST"]
	if u, err := url.Parse(apiHost); err == nil && u.Host != "" {
		scheme, apiHost = u.Scheme, u.Host
	}
	return &Client{
		Scheme:        scheme,
		APIHost:       apiHost,
		AuthToken:     vars["DATAVERSE_API_TOKEN"],
		ServiceID:     vars["DATAVERSE_SERVICE_ID"],
		Insecure:      insecure,
		Timeout:       5 * time.Minute,
		loadedFromEnv: true,
	}
}

type jwtResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges the client's Email and Password for a JWT access
// token via the auth endpoint, and stores it in AuthToken.
//
// If Email and Password are empty but AuthToken is already set, Login
// is a no-op: the existing token is kept.
func (c *Client) Login(ctx context.Context) error {
	if c.Email != "" && c.Password != "" {
		var resp jwtResponse
		err := c.RequestAndDecodeContext(ctx, &resp, "POST", "auth/users/jwt/", nil, map[string]string{
			"email":    c.Email,
			"password": c.Password,
		})
		if err != nil {
			return fmt.Errorf("dataverse: login failed: %w", err)
		}
		c.AuthToken = resp.AccessToken
		c.RefreshToken = resp.RefreshToken
		return nil
	}
	if c.AuthToken != "" {
		return nil
	}
	if c.Email == "" {
		return errors.New("dataverse: cannot login with empty email")
	}
	return errors.New("dataverse: cannot login with empty password")
}

// Do adds Authorization and X-Request-Service-Id headers, obeys
// c.Timeout, and performs the request, retrying transient failures
// (connection errors and 5xx responses) up to c.MaxRetries times with
// exponential backoff.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.AuthToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}
	if c.ServiceID != "" && req.Header.Get("X-Request-Service-Id") == "" {
		req.Header.Set("X-Request-Service-Id", c.ServiceID)
	}
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		ctx := req.Context()
		ctx, cancel = context.WithDeadline(ctx, time.Now().Add(c.Timeout))
		req = req.WithContext(ctx)
	}
	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}
	retries := c.MaxRetries
	if retries == 0 {
		retries = DefaultMaxRetries
	}
	rclient := &retryablehttp.Client{
		HTTPClient:   c.httpClient(),
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 30 * time.Second,
		RetryMax:     retries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		// Return the last 5xx response instead of a "giving
		// up" error, so callers see the server's status and
		// error detail.
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	resp, err := rclient.Do(rreq)
	if err == nil && cancel != nil {
		// We need to call cancel() eventually, but we can't
		// use "defer cancel()" because the context has to
		// stay alive until the caller has finished reading
		// the response body.
		resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	} else if cancel != nil {
		cancel()
	}
	return resp, err
}

// cancelOnClose calls a provided CancelFunc when its wrapped
// ReadCloser's Close() method is called.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (coc cancelOnClose) Close() error {
	err := coc.ReadCloser.Close()
	coc.cancel()
	return err
}

// DoAndDecode performs req and unmarshals the response (which must be
// JSON) into dst. Use this instead of RequestAndDecode if you need
// more control of the http.Request object.
func (c *Client) DoAndDecode(dst interface{}, req *http.Request) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300 && dst == nil:
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return json.Unmarshal(buf, dst)
	default:
		return newTransactionError(req, resp, buf)
	}
}

// RequestAndDecode performs an API request and unmarshals the
// response (which must be JSON) into dst. The given path is added to
// the server's scheme/host/port to form the request URL; it must not
// contain a query string (pass query instead). A non-nil body is
// marshaled to JSON and sent with Content-Type application/json.
func (c *Client) RequestAndDecode(dst interface{}, method, path string, query url.Values, body interface{}) error {
	return c.RequestAndDecodeContext(context.Background(), dst, method, path, query, body)
}

// RequestAndDecodeContext does the same as RequestAndDecode, but with a context
func (c *Client) RequestAndDecodeContext(ctx context.Context, dst interface{}, method, path string, query url.Values, body interface{}) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	return c.DoAndDecode(dst, req)
}

// Download performs a GET request and returns the raw response body
// as a stream. The caller is responsible for closing it. A non-2xx
// response is returned as a TransactionError.
func (c *Client) Download(ctx context.Context, path string, query url.Values, header http.Header) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, "GET", path, query, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, newTransactionError(req, resp, buf)
	}
	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	if c.APIHost == "" {
		if c.loadedFromEnv {
			return nil, errors.New("DATAVERSE_API_HOST and/or DATAVERSE_API_TOKEN environment variables are not set")
		}
		return nil, errors.New("dataverse.Client cannot perform request: APIHost is not set")
	}
	urlString := c.apiURL(path)
	if len(query) > 0 {
		urlString += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		j, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(j)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlString, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.SendHeader {
		req.Header[k] = v
	}
	return req, nil
}

func (c *Client) httpClient() *http.Client {
	switch {
	case c.Client != nil:
		return c.Client
	case c.Insecure:
		return InsecureHTTPClient
	default:
		return DefaultSecureClient
	}
}

func (c *Client) apiURL(path string) string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + c.APIHost + "/" + path
}
