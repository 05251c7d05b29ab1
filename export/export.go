// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package export downloads a dataslice from a Dataverse backend and
// writes it to the local filesystem in one of the supported dataset
// formats (VisionAI, COCO, YOLO, VLM).
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/linkervision/dataverse-sdk-go/ctxlog"
	"github.com/linkervision/dataverse-sdk-go/dataverse"
)

const (
	// DefaultBatchSize is the number of datarows fetched and
	// converted per API request.
	DefaultBatchSize = 50
	// DefaultMaxConcurrent is the number of media downloads in
	// flight at once.
	DefaultMaxConcurrent = 100
)

// A File is a converter output destined for the target folder.
type File struct {
	// Path relative to the export target folder, using "/" as
	// separator.
	Path string
	Data []byte
}

// A MediaJob asks the exporter to download the content behind URL and
// store it at Path relative to the target folder.
type MediaJob struct {
	URL  string
	Path string
}

// A Converter turns datarows into files in one dataset format.
// Converters are stateful and are not safe for concurrent use; the
// exporter calls Add serially and Finish once after the last Add.
type Converter interface {
	// Add consumes one datarow and returns any files that can be
	// written immediately, plus the media downloads the datarow
	// requires.
	Add(d dataverse.Datarow) ([]File, []MediaJob, error)
	// Finish returns the files that can only be written after all
	// datarows have been seen, e.g. aggregated annotation files.
	Finish() ([]File, error)
}

// A ConverterFactory builds a Converter for one export run.
type ConverterFactory func(project *dataverse.Project, layout *Layout, annotationName string) Converter

var converterFactories = map[dataverse.AnnotationFormat]ConverterFactory{}

// RegisterConverter makes a dataset format available to the exporter.
// It is typically called from an init function in the file defining
// the converter.
func RegisterConverter(format dataverse.AnnotationFormat, factory ConverterFactory) {
	converterFactories[format] = factory
}

// Formats returns the registered dataset formats, sorted.
func Formats() []dataverse.AnnotationFormat {
	var formats []dataverse.AnnotationFormat
	for format := range converterFactories {
		formats = append(formats, format)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

// An Exporter downloads dataslices.
type Exporter struct {
	Client *dataverse.Client

	// External requests (media downloads) go through External. If
	// nil, a default ExternalClient is used.
	External *dataverse.ExternalClient

	// TargetFolder receives the exported dataset. It is created
	// if it does not exist.
	TargetFolder string

	// BatchSize is the number of datarows per API request. Zero
	// means DefaultBatchSize.
	BatchSize int

	// MaxConcurrent limits media downloads in flight. Zero means
	// DefaultMaxConcurrent.
	MaxConcurrent int

	// SkipMedia disables media downloads, exporting annotation
	// files only.
	SkipMedia bool
}

// Options control one export run.
type Options struct {
	Format dataverse.AnnotationFormat
	// AnnotationName selects which annotation set to export. The
	// empty string means dataverse.GroundTruthAnnotationName.
	AnnotationName string
	// Sequential exports the dataslice as ordered sequences of
	// frames rather than independent images.
	Sequential bool
}

// ExportDataslice downloads the given dataslice to the target folder
// in the format named in opts.
func (ex *Exporter) ExportDataslice(ctx context.Context, datasliceID int, opts Options) error {
	factory, ok := converterFactories[opts.Format]
	if !ok {
		return fmt.Errorf("unsupported dataset format %q", opts.Format)
	}
	annotationName := opts.AnnotationName
	if annotationName == "" {
		annotationName = dataverse.GroundTruthAnnotationName
	}
	logger := ctxlog.FromContext(ctx).WithFields(map[string]interface{}{
		"dataslice": datasliceID,
		"format":    opts.Format,
	})

	dataslice, err := ex.Client.GetDataslice(ctx, datasliceID)
	if err != nil {
		return err
	}
	project, err := ex.Client.GetProject(ctx, dataslice.Project.ID)
	if err != nil {
		return err
	}
	layout, err := BuildLayout(ctx, ex.Client, datasliceID, dataslice.Type, opts.Sequential)
	if err != nil {
		return err
	}
	logger.WithField("datarows", layout.Len()).Info("starting export")

	conv := factory(&project, layout, annotationName)

	batchSize := ex.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	dg := newDownloadGroup(ctx)
	defer dg.Cancel()
	slots := make(chan struct{}, ex.maxConcurrent())

	var nbytes uint64
	// Fetch exactly the datarows in the layout. The backend can
	// return a datarow in more than one ID chunk, so duplicates are
	// dropped here rather than passed to the converter twice.
	seen := make(map[int]bool, layout.Len())
	err = ex.Client.EachDatarowPage(dg.Context(), dataverse.ListDatarowsOptions{
		IDs:       layout.DatarowIDs(),
		Fields:    "id,items,vlm_items,url,frame_id,image_width,image_height,sensor_name,original_url,type",
		BatchSize: batchSize,
	}, func(page []dataverse.Datarow) error {
		for _, d := range page {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			files, jobs, err := conv.Add(d)
			if err != nil {
				return fmt.Errorf("datarow %d: %w", d.ID, err)
			}
			for _, f := range files {
				if err := ex.writeFile(f); err != nil {
					return err
				}
				atomic.AddUint64(&nbytes, uint64(len(f.Data)))
			}
			if ex.SkipMedia {
				continue
			}
			for _, job := range jobs {
				job := job
				slots <- struct{}{}
				dg.Go(func() error {
					defer func() { <-slots }()
					n, err := ex.downloadMedia(dg.Context(), job)
					atomic.AddUint64(&nbytes, n)
					return err
				})
			}
		}
		return nil
	})
	if err != nil {
		dg.Cancel()
		dg.Wait()
		return err
	}
	if err := dg.Wait(); err != nil {
		return err
	}

	files, err := conv.Finish()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := ex.writeFile(f); err != nil {
			return err
		}
		atomic.AddUint64(&nbytes, uint64(len(f.Data)))
	}
	logger.WithField("size", humanize.Bytes(atomic.LoadUint64(&nbytes))).Info("export finished")
	return nil
}

func (ex *Exporter) maxConcurrent() int {
	if ex.MaxConcurrent > 0 {
		return ex.MaxConcurrent
	}
	return DefaultMaxConcurrent
}

func (ex *Exporter) external() *dataverse.ExternalClient {
	if ex.External != nil {
		return ex.External
	}
	return &dataverse.ExternalClient{}
}

func (ex *Exporter) downloadMedia(ctx context.Context, job MediaJob) (uint64, error) {
	buf, err := ex.external().Download(ctx, job.URL)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", job.Path, err)
	}
	return uint64(len(buf)), ex.writeFile(File{Path: job.Path, Data: buf})
}

func (ex *Exporter) writeFile(f File) error {
	path := filepath.Join(ex.TargetFolder, filepath.FromSlash(f.Path))
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	return os.WriteFile(path, f.Data, 0o666)
}
