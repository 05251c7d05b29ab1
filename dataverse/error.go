// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// TransactionError is an error response from the Dataverse API: the
// request was performed, but the server answered with a non-2xx
// status. The server's error detail, if it sent any, is included in
// the message.
type TransactionError struct {
	Method     string
	URL        url.URL
	StatusCode int
	Status     string
	errors     []string
}

func (e TransactionError) Error() (s string) {
	s = fmt.Sprintf("request failed: %s", e.URL.String())
	if e.Status != "" {
		s = s + ": " + e.Status
	}
	if len(e.errors) > 0 {
		s = s + ": " + strings.Join(e.errors, "; ")
	}
	return
}

// errorBody covers the error envelopes the backend is known to emit:
// DRF-style {"detail": "..."}, field error maps, and plain
// {"error": "..."} / {"message": "..."} objects.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func newTransactionError(req *http.Request, resp *http.Response, buf []byte) *TransactionError {
	var e TransactionError
	var body errorBody
	if json.Unmarshal(buf, &body) == nil {
		if len(body.Detail) > 0 {
			var s string
			if json.Unmarshal(body.Detail, &s) == nil {
				e.errors = append(e.errors, s)
			} else {
				e.errors = append(e.errors, string(body.Detail))
			}
		}
		if body.Error != "" {
			e.errors = append(e.errors, body.Error)
		}
		if body.Message != "" {
			e.errors = append(e.errors, body.Message)
		}
	}
	e.Method = req.Method
	e.URL = *req.URL
	if resp != nil {
		e.Status = resp.Status
		e.StatusCode = resp.StatusCode
	}
	return &e
}
