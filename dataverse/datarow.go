// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// StringInt is an int that tolerates being JSON-encoded as a quoted
// (possibly zero-padded) digit string, which is how the backend
// serializes frame numbers.
type StringInt int

// UnmarshalJSON implements json.Unmarshaler
func (i *StringInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*i = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", s, err)
	}
	*i = StringInt(n)
	return nil
}

// MarshalJSON implements json.Marshaler
func (i StringInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(i))
}

// Datarow is a dataverse#datarow record: one sensor capture (image or
// point cloud) with its annotations.
type Datarow struct {
	ID                int             `json:"id"`
	FrameID           StringInt       `json:"frame_id,omitempty"`
	SequenceDatarowID *int            `json:"sequence_datarow_id,omitempty"`
	FrameDatarowID    StringInt       `json:"frame_datarow_id,omitempty"`
	Items             json.RawMessage `json:"items,omitempty"`
	VLMItems          json.RawMessage `json:"vlm_items,omitempty"`
	URL               string          `json:"url,omitempty"`
	OriginalURL       string          `json:"original_url,omitempty"`
	ImageWidth        int             `json:"image_width,omitempty"`
	ImageHeight       int             `json:"image_height,omitempty"`
	SensorName        string          `json:"sensor_name,omitempty"`
	Type              string          `json:"type,omitempty"`
}

// ListDatarowsOptions restrict the datarows visited by
// EachDatarowPage.
type ListDatarowsOptions struct {
	// Fetch exactly these datarows (chunked into id_set queries).
	IDs []int
	// Fetch the datarows of these dataslices.
	DatasliceIDs []int
	// Restrict the record fields the server returns, as a
	// comma-separated list.
	Fields string
	// Rows per page. Zero means 20.
	BatchSize int
}

type datarowPage struct {
	Results []Datarow `json:"results"`
}

// EachDatarowPage fetches datarows page by page using id-cursor
// pagination, and calls fn with each page until the listing is
// exhausted or fn returns a non-nil error.
func (c *Client) EachDatarowPage(ctx context.Context, opts ListDatarowsOptions, fn func([]Datarow) error) error {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 20
	}
	if len(opts.IDs) > 0 {
		for _, chunk := range chunkInts(opts.IDs, batchSize) {
			ids := make([]string, len(chunk))
			for i, id := range chunk {
				ids[i] = strconv.Itoa(id)
			}
			query := url.Values{}
			query.Set("id_set", strings.Join(ids, ","))
			if err := c.eachDatarowPage(ctx, "api/datarows/", query, opts, batchSize, fn); err != nil {
				return err
			}
		}
		return nil
	}
	query := url.Values{}
	for _, id := range opts.DatasliceIDs {
		query.Add("dataslice_set", strconv.Itoa(id))
	}
	return c.eachDatarowPage(ctx, "api/datarows/", query, opts, batchSize, fn)
}

func (c *Client) eachDatarowPage(ctx context.Context, path string, query url.Values, opts ListDatarowsOptions, batchSize int, fn func([]Datarow) error) error {
	if opts.Fields != "" {
		query.Set("fields", opts.Fields)
	}
	query.Set("order_by", "id")
	query.Set("limit", strconv.Itoa(batchSize))
	idGt := 0
	for {
		query.Set("id__gt", strconv.Itoa(idGt))
		var page datarowPage
		err := c.RequestAndDecodeContext(ctx, &page, "GET", path, query, nil)
		if err != nil {
			return err
		}
		if len(page.Results) == 0 {
			return nil
		}
		idGt = page.Results[len(page.Results)-1].ID
		if err := fn(page.Results); err != nil {
			return err
		}
	}
}

// ListFlatParentOptions restrict the datarows visited by
// EachFlatParentPage.
type ListFlatParentOptions struct {
	DatasliceID int
	// Datarow type filter ("image", "pcd", or "base").
	Type string
	// Restrict the record fields the server returns.
	Fields string
	// Rows per page. Zero means 20.
	BatchSize int
}

// EachFlatParentPage visits the dataslice's datarows with their
// sequence/frame parent ids flattened in, page by page. This is the
// listing exporters use to rebuild the sequence -> frame -> datarow
// tree.
func (c *Client) EachFlatParentPage(ctx context.Context, opts ListFlatParentOptions, fn func([]Datarow) error) error {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 20
	}
	query := url.Values{}
	query.Set("dataslice_id", strconv.Itoa(opts.DatasliceID))
	if opts.Type != "" {
		query.Set("type", opts.Type)
	}
	listOpts := ListDatarowsOptions{Fields: opts.Fields}
	return c.eachDatarowPage(ctx, "api/datarows/flat-parent/", query, listOpts, batchSize, fn)
}
