// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package storage inspects the cloud storage locations that back
// cloud-sourced datasets, so callers can verify a bucket path or a
// container actually holds data before attaching it to a dataset.
package storage

import (
	"context"
	"time"
)

// An Object is one stored blob.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// A Lister enumerates objects under a storage location.
type Lister interface {
	// List returns up to limit objects whose keys start with
	// prefix. limit <= 0 means no limit.
	List(ctx context.Context, prefix string, limit int) ([]Object, error)
}
