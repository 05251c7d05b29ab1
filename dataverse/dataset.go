// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// DataSource identifies where a dataset's media is imported from.
type DataSource string

const (
	DataSourceAWS   DataSource = "aws"
	DataSourceAzure DataSource = "azure"
	DataSourceLocal DataSource = "local"
)

// DatasetType distinguishes raw imports from imports that carry
// annotations.
type DatasetType string

const (
	DatasetTypeRaw       DatasetType = "raw_data"
	DatasetTypeAnnotated DatasetType = "annotated_data"
)

// AnnotationFormat is the on-storage format of a dataset's
// annotations, and the target format of an export.
type AnnotationFormat string

const (
	AnnotationFormatVisionAI AnnotationFormat = "vision_ai"
	AnnotationFormatCOCO     AnnotationFormat = "coco"
	AnnotationFormatYOLO     AnnotationFormat = "yolo"
	AnnotationFormatVLM      AnnotationFormat = "vlm"
)

// DatasetStatus is the server-side import state of a dataset.
type DatasetStatus string

const (
	DatasetStatusProcessing DatasetStatus = "processing"
	DatasetStatusReady      DatasetStatus = "ready"
	DatasetStatusFailed     DatasetStatus = "failed"
)

// Dataset is a dataverse#dataset record.
type Dataset struct {
	ID               int              `json:"id,omitempty"`
	Name             string           `json:"name"`
	Project          *Project         `json:"project,omitempty"`
	Sensors          []Sensor         `json:"sensors,omitempty"`
	Type             DatasetType      `json:"type"`
	DataSource       DataSource       `json:"data_source"`
	AnnotationFormat AnnotationFormat `json:"annotation_format"`
	Annotations      []string         `json:"annotations,omitempty"`
	Status           DatasetStatus    `json:"status,omitempty"`
	Sequential       bool             `json:"sequential,omitempty"`
	GenerateMetadata bool             `json:"generate_metadata,omitempty"`
	AutoTagging      []string         `json:"auto_tagging,omitempty"`
	RenderPCD        bool             `json:"render_pcd,omitempty"`
	Description      string           `json:"description,omitempty"`
	StorageURL       string           `json:"storage_url,omitempty"`
	ContainerName    string           `json:"container_name,omitempty"`
	DataFolder       string           `json:"data_folder,omitempty"`

	// Name of the backend-side container that receives files
	// uploaded from a local source. Generated by the server while
	// creating the dataset.
	ClientContainerName string `json:"client_container_name,omitempty"`
}

// CreateDatasetOptions are the arguments to CreateDataset.
type CreateDatasetOptions struct {
	Name             string
	DataSource       DataSource
	Project          Project
	Sensors          []Sensor
	Type             DatasetType
	AnnotationFormat AnnotationFormat

	// Cloud storage location (AWS/Azure sources), or the local
	// directory to upload from (local source).
	StorageURL string
	DataFolder string

	// Azure only.
	ContainerName string
	SASToken      string

	// AWS only. Assign both or neither.
	AccessKeyID     string
	SecretAccessKey string

	// Annotation folder names to import (must be "groundtruth" or
	// a model name). Required for annotated datasets.
	Annotations []string

	// Additional local folders to upload alongside DataFolder.
	AnnotationFolder  string
	CalibrationFolder string
	LidarFolder       string
	AnnotationFile    string

	Sequential       bool
	GenerateMetadata bool
	AutoTagging      []string
	RenderPCD        bool
	Description      string

	// Correlates a multi-request import. Generated when empty.
	CreateDatasetUUID string
}

// GroundTruthAnnotationName is the annotation folder name reserved
// for human-labeled ground truth.
const GroundTruthAnnotationName = "groundtruth"

// CreateDataset creates a dataset and starts importing its media.
//
// For AWS/Azure sources the import runs server side and CreateDataset
// returns as soon as the record is created. For a local source,
// CreateDataset walks the configured folders and uploads their files
// to the dataset's backend container in batches, then commits the
// upload.
func (c *Client) CreateDataset(ctx context.Context, opts CreateDatasetOptions) (Dataset, error) {
	var ds Dataset
	switch opts.DataSource {
	case DataSourceAWS, DataSourceAzure, DataSourceLocal:
	default:
		return ds, fmt.Errorf("data source %q is not supported", opts.DataSource)
	}
	if opts.Type == DatasetTypeAnnotated && len(opts.Annotations) == 0 {
		return ds, errors.New("annotated data needs at least one annotation folder name (groundtruth or a model name)")
	}
	if (opts.AccessKeyID == "") != (opts.SecretAccessKey == "") {
		return ds, errors.New("need to assign both access_key_id and secret_access_key")
	}
	sensorIDs := make([]int, 0, len(opts.Sensors))
	for _, sensor := range opts.Sensors {
		sensorIDs = append(sensorIDs, sensor.ID)
	}
	annotations := opts.Annotations
	if annotations == nil {
		annotations = []string{}
	}
	autoTagging := opts.AutoTagging
	if autoTagging == nil {
		autoTagging = []string{}
	}
	payload := map[string]interface{}{
		"name":              opts.Name,
		"project_id":        opts.Project.ID,
		"sensor_ids":        sensorIDs,
		"data_source":       opts.DataSource,
		"storage_url":       opts.StorageURL,
		"data_folder":       opts.DataFolder,
		"type":              opts.Type,
		"sequential":        opts.Sequential,
		"annotation_format": opts.AnnotationFormat,
		"generate_metadata": opts.GenerateMetadata,
		"auto_tagging":      autoTagging,
		"render_pcd":        opts.RenderPCD,
		"description":       opts.Description,
		"annotations":       annotations,
	}
	if opts.ContainerName != "" {
		payload["container_name"] = opts.ContainerName
	}
	if opts.SASToken != "" {
		payload["sas_token"] = opts.SASToken
	}
	if opts.AccessKeyID != "" {
		payload["access_key_id"] = opts.AccessKeyID
		payload["secret_access_key"] = opts.SecretAccessKey
	}
	createUUID := opts.CreateDatasetUUID
	if createUUID == "" && opts.DataSource == DataSourceLocal {
		createUUID = uuid.NewString()
	}
	if createUUID != "" {
		payload["create_dataset_uuid"] = createUUID
	}
	err := c.RequestAndDecodeContext(ctx, &ds, "POST", "api/datasets/", nil, payload)
	if err != nil {
		return ds, err
	}
	ds.Project = &opts.Project
	ds.Sensors = opts.Sensors

	if opts.DataSource != DataSourceLocal {
		return ds, nil
	}
	return ds, c.uploadLocalSource(ctx, &ds, opts)
}

// uploadBatchSize is the number of local files sent per upload
// request during a local-source import.
const uploadBatchSize = 5

func (c *Client) uploadLocalSource(ctx context.Context, ds *Dataset, opts CreateDatasetOptions) error {
	var paths []string
	for _, folder := range []string{opts.DataFolder, opts.AnnotationFolder, opts.CalibrationFolder, opts.LidarFolder} {
		if folder == "" {
			continue
		}
		folderPaths, err := listFilepaths(folder)
		if err != nil {
			return fmt.Errorf("walking %q: %w", folder, err)
		}
		paths = append(paths, folderPaths...)
	}
	if opts.AnnotationFile != "" {
		fi, err := os.Stat(opts.AnnotationFile)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return fmt.Errorf("annotation_file %q expects a file destination", opts.AnnotationFile)
		}
		paths = append(paths, opts.AnnotationFile)
	}

	// The backend generates the upload container while creating
	// the dataset, so it is only visible on a fresh record.
	created, err := c.GetDataset(ctx, ds.ID)
	if err != nil {
		return fmt.Errorf("failed to look up upload container: %w", err)
	}
	ds.ClientContainerName = created.ClientContainerName

	for i := 0; i < len(paths); i += uploadBatchSize {
		end := i + uploadBatchSize
		if end > len(paths) {
			end = len(paths)
		}
		files := map[string][]byte{}
		for _, path := range paths[i:end] {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files[path] = data
		}
		if err := c.uploadDatasetFiles(ctx, ds.ID, ds.ClientContainerName, files, false); err != nil {
			return fmt.Errorf("failed to upload files: %w", err)
		}
	}
	// Tell the backend the upload is complete so it can start
	// importing.
	if err := c.uploadDatasetFiles(ctx, ds.ID, ds.ClientContainerName, nil, true); err != nil {
		return fmt.Errorf("failed to finish upload: %w", err)
	}
	return nil
}

func (c *Client) uploadDatasetFiles(ctx context.Context, datasetID int, containerName string, files map[string][]byte, finished bool) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("container_name", containerName); err != nil {
		return err
	}
	if err := writer.WriteField("is_finished", strconv.FormatBool(finished)); err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			return err
		}
		if _, err := part.Write(files[name]); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}
	path := fmt.Sprintf("api/datasets/%d/upload-files/", datasetID)
	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL(path), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.DoAndDecode(nil, req)
}

// GetDataset returns the dataset record with the given id. The
// dataset's project reference is hydrated into a full project record.
func (c *Client) GetDataset(ctx context.Context, datasetID int) (Dataset, error) {
	var ds Dataset
	err := c.RequestAndDecodeContext(ctx, &ds, "GET", fmt.Sprintf("api/datasets/%d/", datasetID), nil, nil)
	if err != nil {
		return ds, err
	}
	if ds.Project != nil && ds.Project.ID != 0 && len(ds.Project.Sensors) == 0 {
		project, err := c.cachedProject(ctx, ds.Project.ID)
		if err != nil {
			return ds, err
		}
		ds.Project = &project
	}
	return ds, nil
}

// ListDatasets lists the datasets of one project.
func (c *Client) ListDatasets(ctx context.Context, projectID int) ([]Dataset, error) {
	query := url.Values{}
	query.Set("project", strconv.Itoa(projectID))
	var resp struct {
		Results []Dataset `json:"results"`
	}
	err := c.RequestAndDecodeContext(ctx, &resp, "GET", "api/datasets/", query, nil)
	return resp.Results, err
}

// UpdateDatasetOptions are the fields UpdateDataset can change.
// Nil/empty fields are left untouched on the server.
type UpdateDatasetOptions struct {
	Name        string
	Description string
	Status      DatasetStatus
}

// UpdateDataset updates the given fields of an existing dataset.
func (c *Client) UpdateDataset(ctx context.Context, datasetID int, opts UpdateDatasetOptions) (Dataset, error) {
	var ds Dataset
	payload := map[string]interface{}{}
	if opts.Name != "" {
		payload["name"] = opts.Name
	}
	if opts.Description != "" {
		payload["description"] = opts.Description
	}
	if opts.Status != "" {
		payload["status"] = opts.Status
	}
	err := c.RequestAndDecodeContext(ctx, &ds, "PATCH", fmt.Sprintf("api/datasets/%d/", datasetID), nil, payload)
	return ds, err
}

// UploadFileInformation is a presigned upload target for one file.
type UploadFileInformation struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// GeneratePresignedURLs asks the backend for presigned upload URLs
// for the given file names, so the files can be PUT directly to cloud
// storage instead of streamed through the API.
func (c *Client) GeneratePresignedURLs(ctx context.Context, filenames []string, createDatasetUUID string, source DataSource) ([]UploadFileInformation, error) {
	payload := map[string]interface{}{
		"filenames":   filenames,
		"data_source": source,
	}
	if createDatasetUUID != "" {
		payload["create_dataset_uuid"] = createDatasetUUID
	}
	var resp struct {
		URLInfo []UploadFileInformation `json:"url_info"`
	}
	err := c.RequestAndDecodeContext(ctx, &resp, "POST", "api/datasets/upload-file-information/", nil, payload)
	return resp.URLInfo, err
}
