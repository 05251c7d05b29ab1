// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// ConvertRecord tracks a conversion of a trained model into a
// downloadable artifact bundle (labels, ONNX file, Triton package).
type ConvertRecord struct {
	ID     int    `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}

// MLModel is a dataverse#ml_model record: a trained model associated
// with one project.
type MLModel struct {
	ID            int             `json:"id,omitempty"`
	Name          string          `json:"name"`
	Type          string          `json:"type,omitempty"`
	Status        string          `json:"status,omitempty"`
	Project       *Project        `json:"project,omitempty"`
	Classes       []OntologyClass `json:"classes,omitempty"`
	ConvertRecord *ConvertRecord  `json:"convert_record,omitempty"`
}

// ListMLModels lists the trained models of one project.
func (c *Client) ListMLModels(ctx context.Context, projectID int) ([]MLModel, error) {
	query := url.Values{}
	query.Set("project", strconv.Itoa(projectID))
	query.Set("type", "trained")
	var resp struct {
		Results []MLModel `json:"results"`
	}
	err := c.RequestAndDecodeContext(ctx, &resp, "GET", "api/ml_models/", query, nil)
	return resp.Results, err
}

// GetMLModel returns the model record with the given id. The model's
// classes are resolved against its project's ontology, so they carry
// full class records (color, rank, attributes) rather than bare ids.
func (c *Client) GetMLModel(ctx context.Context, modelID int) (MLModel, error) {
	var model MLModel
	err := c.RequestAndDecodeContext(ctx, &model, "GET", fmt.Sprintf("api/ml_models/%d/", modelID), nil, nil)
	if err != nil {
		return model, err
	}
	if model.Project == nil || model.Project.ID == 0 {
		return model, nil
	}
	project, err := c.cachedProject(ctx, model.Project.ID)
	if err != nil {
		return model, err
	}
	classIDs := map[int]bool{}
	for _, cls := range model.Classes {
		classIDs[cls.ID] = true
	}
	var classes []OntologyClass
	for _, cls := range project.Ontology.Classes {
		if classIDs[cls.ID] {
			classes = append(classes, cls)
		}
	}
	model.Project = &project
	model.Classes = classes
	return model, nil
}

// GetConvertRecord returns the convert record with the given id.
func (c *Client) GetConvertRecord(ctx context.Context, convertRecordID int) (ConvertRecord, error) {
	var record ConvertRecord
	err := c.RequestAndDecodeContext(ctx, &record, "GET", fmt.Sprintf("api/convert_record/%d/", convertRecordID), nil, nil)
	return record, err
}

// DownloadModelLabels streams the label file of a converted model.
// The caller is responsible for closing the returned stream.
func (c *Client) DownloadModelLabels(ctx context.Context, convertRecordID int) (io.ReadCloser, error) {
	return c.Download(ctx, fmt.Sprintf("api/convert_record/%d/label/", convertRecordID), nil, nil)
}

// DownloadONNXModel streams the ONNX interchange file of a converted
// model. The caller is responsible for closing the returned stream.
func (c *Client) DownloadONNXModel(ctx context.Context, convertRecordID int) (io.ReadCloser, error) {
	return c.Download(ctx, fmt.Sprintf("api/convert_record/%d/model/", convertRecordID), nil, nil)
}

// DownloadTritonModelOptions are the arguments to
// DownloadTritonModel.
type DownloadTritonModelOptions struct {
	// Sent as the X-Request-Source header when non-empty, for
	// deployments that restrict model downloads per source.
	Permission string
}

// DownloadTritonModel streams the Triton inference-serving package of
// a converted model. The caller is responsible for closing the
// returned stream.
func (c *Client) DownloadTritonModel(ctx context.Context, convertRecordID int, opts DownloadTritonModelOptions) (io.ReadCloser, error) {
	query := url.Values{}
	query.Set("triton", "true")
	var header http.Header
	if opts.Permission != "" {
		header = http.Header{"X-Request-Source": {opts.Permission}}
	}
	return c.Download(ctx, fmt.Sprintf("api/convert_record/%d/model-observ/", convertRecordID), query, header)
}

// GetLabelFile streams the label file of the given model's convert
// record. It is a convenience wrapper that looks up the model first.
func (c *Client) GetLabelFile(ctx context.Context, modelID int) (io.ReadCloser, error) {
	model, err := c.GetMLModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if model.ConvertRecord == nil {
		return nil, errors.New("model has no convert record")
	}
	return c.DownloadModelLabels(ctx, model.ConvertRecord.ID)
}

// GetTritonModelFile streams the Triton package of the given model's
// convert record. It is a convenience wrapper that looks up the model
// first.
func (c *Client) GetTritonModelFile(ctx context.Context, modelID int) (io.ReadCloser, error) {
	model, err := c.GetMLModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if model.ConvertRecord == nil {
		return nil, errors.New("model has no convert record")
	}
	return c.DownloadTritonModel(ctx, model.ConvertRecord.ID, DownloadTritonModelOptions{})
}
