// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Dataslice is a dataverse#dataslice record: a curated subset of a
// project's datarows.
type Dataslice struct {
	ID      int      `json:"id,omitempty"`
	Name    string   `json:"name"`
	Type    string   `json:"type,omitempty"`
	Project *Project `json:"project,omitempty"`
}

// ListDataslices lists the dataslices of one project.
func (c *Client) ListDataslices(ctx context.Context, projectID int) ([]Dataslice, error) {
	query := url.Values{}
	query.Set("project", strconv.Itoa(projectID))
	var resp struct {
		Results []Dataslice `json:"results"`
	}
	err := c.RequestAndDecodeContext(ctx, &resp, "GET", "api/dataslices/basic/", query, nil)
	return resp.Results, err
}

// GetDataslice returns the dataslice record with the given id,
// including its project's full ontology.
func (c *Client) GetDataslice(ctx context.Context, datasliceID int) (Dataslice, error) {
	var ds Dataslice
	err := c.RequestAndDecodeContext(ctx, &ds, "GET", fmt.Sprintf("api/dataslices/%d/", datasliceID), nil, nil)
	return ds, err
}

// ExportDatasliceOptions are the arguments to ExportDataslice.
type ExportDatasliceOptions struct {
	Format         AnnotationFormat
	AnnotationName string
	Sequential     bool
}

// ExportRecord tracks a server-side dataslice export.
type ExportRecord struct {
	ID          int    `json:"id,omitempty"`
	Status      string `json:"status,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// ExportDataslice triggers a server-side export of the dataslice for
// direct download. For a client-side export that downloads media and
// converts annotations locally, see the export package.
func (c *Client) ExportDataslice(ctx context.Context, datasliceID int, opts ExportDatasliceOptions) (ExportRecord, error) {
	var record ExportRecord
	err := c.RequestAndDecodeContext(ctx, &record, "POST", fmt.Sprintf("api/dataslices/%d/export/", datasliceID), nil, map[string]interface{}{
		"is_sequential":   opts.Sequential,
		"export_format":   opts.Format,
		"export_to":       "direct_download",
		"annotation_name": opts.AnnotationName,
	})
	return record, err
}
