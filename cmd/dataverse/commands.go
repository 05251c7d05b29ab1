// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/linkervision/dataverse-sdk-go/connections"
	"github.com/linkervision/dataverse-sdk-go/ctxlog"
	"github.com/linkervision/dataverse-sdk-go/dataverse"
	"github.com/linkervision/dataverse-sdk-go/export"
	"github.com/linkervision/dataverse-sdk-go/lib/cmd"
	"github.com/linkervision/dataverse-sdk-go/storage"
	"github.com/sirupsen/logrus"
)

// newContext returns a context with a logger writing to stderr.
func newContext(stderr io.Writer) context.Context {
	logger := ctxlog.New(stderr, "text", "info")
	return ctxlog.Context(context.Background(), logger)
}

// newClient builds a client from the environment (and an optional
// profiles file named by DATAVERSE_PROFILES) and registers it as the
// default connection.
func newClient(ctx context.Context, stderr io.Writer) (*dataverse.Client, error) {
	if path := os.Getenv("DATAVERSE_PROFILES"); path != "" {
		if err := connections.RegisterProfiles(ctx, path); err != nil {
			return nil, err
		}
		if client, err := connections.Default(); err == nil {
			return client, nil
		}
	}
	client := dataverse.NewClientFromEnv()
	if client.APIHost == "" {
		return nil, fmt.Errorf("no backend configured: set DATAVERSE_API_HOST and DATAVERSE_API_TOKEN, or DATAVERSE_PROFILES")
	}
	connections.Replace(connections.DefaultAlias, client)
	return client, nil
}

func printJSON(stdout io.Writer, v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(ctx context.Context, err error) int {
	ctxlog.FromContext(ctx).WithError(err).Error("command failed")
	return 1
}

func loginCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	host := flags.String("host", dataverse.HostProduction, "backend `host`")
	email := flags.String("email", "", "account `email`")
	serviceID := flags.String("service-id", "", "service `id` sent with each request")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	ctx := newContext(stderr)

	password := os.Getenv("DATAVERSE_PASSWORD")
	if password == "" {
		fmt.Fprint(stderr, "Password: ")
		line, err := io.ReadAll(io.LimitReader(stdin, 1024))
		if err != nil {
			return fail(ctx, err)
		}
		password = strings.TrimRight(string(line), "\r\n")
	}

	client, err := dataverse.NewClient(*host)
	if err != nil {
		return fail(ctx, err)
	}
	client.Email = *email
	client.Password = password
	client.ServiceID = *serviceID
	if err := client.Login(ctx); err != nil {
		return fail(ctx, err)
	}
	fmt.Fprintf(stdout, "DATAVERSE_API_HOST=%s\n", client.APIHost)
	fmt.Fprintf(stdout, "DATAVERSE_API_TOKEN=%s\n", client.AuthToken)
	return 0
}

func whoamiCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	ctx := newContext(stderr)
	client, err := newClient(ctx, stderr)
	if err != nil {
		return fail(ctx, err)
	}
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return fail(ctx, err)
	}
	if err := printJSON(stdout, user); err != nil {
		return fail(ctx, err)
	}
	return 0
}

var projectsCommand = cmd.Multi(map[string]cmd.RunFunc{
	"list": func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		flags := flag.NewFlagSet("", flag.ContinueOnError)
		currentUser := flags.Bool("current-user", false, "only list projects owned by the calling user")
		imageType := flags.String("image-type", "", "only list projects with this ontology image `type`")
		if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
			return code
		}
		ctx := newContext(stderr)
		client, err := newClient(ctx, stderr)
		if err != nil {
			return fail(ctx, err)
		}
		projects, err := client.ListProjects(ctx, dataverse.ListProjectsOptions{
			CurrentUser: *currentUser,
			ImageType:   dataverse.OntologyImageType(*imageType),
		})
		if err != nil {
			return fail(ctx, err)
		}
		if err := printJSON(stdout, projects); err != nil {
			return fail(ctx, err)
		}
		return 0
	},
	"get": func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		flags := flag.NewFlagSet("", flag.ContinueOnError)
		id := flags.Int("id", 0, "project `id`")
		if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
			return code
		}
		ctx := newContext(stderr)
		client, err := newClient(ctx, stderr)
		if err != nil {
			return fail(ctx, err)
		}
		project, err := client.GetProject(ctx, *id)
		if err != nil {
			return fail(ctx, err)
		}
		if err := printJSON(stdout, project); err != nil {
			return fail(ctx, err)
		}
		return 0
	},
})

var dataslicesCommand = cmd.Multi(map[string]cmd.RunFunc{
	"list": func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		flags := flag.NewFlagSet("", flag.ContinueOnError)
		project := flags.Int("project", 0, "project `id`")
		if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
			return code
		}
		ctx := newContext(stderr)
		client, err := newClient(ctx, stderr)
		if err != nil {
			return fail(ctx, err)
		}
		dataslices, err := client.ListDataslices(ctx, *project)
		if err != nil {
			return fail(ctx, err)
		}
		if err := printJSON(stdout, dataslices); err != nil {
			return fail(ctx, err)
		}
		return 0
	},
})

var datasetsCommand = cmd.Multi(map[string]cmd.RunFunc{
	"list": func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		flags := flag.NewFlagSet("", flag.ContinueOnError)
		project := flags.Int("project", 0, "project `id`")
		if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
			return code
		}
		ctx := newContext(stderr)
		client, err := newClient(ctx, stderr)
		if err != nil {
			return fail(ctx, err)
		}
		datasets, err := client.ListDatasets(ctx, *project)
		if err != nil {
			return fail(ctx, err)
		}
		if err := printJSON(stdout, datasets); err != nil {
			return fail(ctx, err)
		}
		return 0
	},
	"get": func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		flags := flag.NewFlagSet("", flag.ContinueOnError)
		id := flags.Int("id", 0, "dataset `id`")
		if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
			return code
		}
		ctx := newContext(stderr)
		client, err := newClient(ctx, stderr)
		if err != nil {
			return fail(ctx, err)
		}
		dataset, err := client.GetDataset(ctx, *id)
		if err != nil {
			return fail(ctx, err)
		}
		if err := printJSON(stdout, dataset); err != nil {
			return fail(ctx, err)
		}
		return 0
	},
	"verify-storage": verifyStorageCommand,
})

// verifyStorageCommand lists a cloud storage location before it is
// attached to a dataset, so typos in bucket names, folders, or
// credentials surface before the import starts.
func verifyStorageCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	storageURL := flags.String("url", "", "S3 storage `url` (https://bucket.s3.region.amazonaws.com/folder or s3://bucket/folder)")
	accessKeyID := flags.String("access-key-id", "", "AWS access key `id`")
	secretAccessKey := flags.String("secret-access-key", "", "AWS secret access `key`")
	endpoint := flags.String("azure-endpoint", "", "Azure blob `endpoint` (uses -sas-token and -container instead of -url)")
	sasToken := flags.String("sas-token", "", "Azure shared access signature `token`")
	container := flags.String("container", "", "Azure container `name`")
	folder := flags.String("folder", "", "key `prefix` to list (Azure)")
	limit := flags.Int("limit", 100, "maximum `number` of objects to list")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	ctx := newContext(stderr)

	var lister storage.Lister
	prefix := *folder
	switch {
	case *endpoint != "":
		cnt, err := storage.NewAzureContainerSAS(*endpoint, *sasToken, *container)
		if err != nil {
			return fail(ctx, err)
		}
		lister = cnt
	case *storageURL != "":
		bucket, region, urlPrefix, err := storage.ParseS3URL(*storageURL)
		if err != nil {
			return fail(ctx, err)
		}
		b, err := storage.NewS3Bucket(ctx, bucket, storage.S3Options{
			Region:          region,
			AccessKeyID:     *accessKeyID,
			SecretAccessKey: *secretAccessKey,
		})
		if err != nil {
			return fail(ctx, err)
		}
		lister = b
		if prefix == "" {
			prefix = urlPrefix
		}
	default:
		return fail(ctx, fmt.Errorf("either -url or -azure-endpoint is required"))
	}

	objects, err := lister.List(ctx, prefix, *limit)
	if err != nil {
		return fail(ctx, err)
	}
	var total uint64
	for _, obj := range objects {
		total += uint64(obj.Size)
	}
	fmt.Fprintf(stdout, "%d objects, %s\n", len(objects), humanize.Bytes(total))
	for _, obj := range objects {
		fmt.Fprintf(stdout, "%12d %s\n", obj.Size, obj.Key)
	}
	return 0
}

var modelsCommand = cmd.Multi(map[string]cmd.RunFunc{
	"list": func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		flags := flag.NewFlagSet("", flag.ContinueOnError)
		project := flags.Int("project", 0, "project `id`")
		if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
			return code
		}
		ctx := newContext(stderr)
		client, err := newClient(ctx, stderr)
		if err != nil {
			return fail(ctx, err)
		}
		models, err := client.ListMLModels(ctx, *project)
		if err != nil {
			return fail(ctx, err)
		}
		if err := printJSON(stdout, models); err != nil {
			return fail(ctx, err)
		}
		return 0
	},
	"get": func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		flags := flag.NewFlagSet("", flag.ContinueOnError)
		id := flags.Int("id", 0, "model `id`")
		if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
			return code
		}
		ctx := newContext(stderr)
		client, err := newClient(ctx, stderr)
		if err != nil {
			return fail(ctx, err)
		}
		model, err := client.GetMLModel(ctx, *id)
		if err != nil {
			return fail(ctx, err)
		}
		if err := printJSON(stdout, model); err != nil {
			return fail(ctx, err)
		}
		return 0
	},
	"download-labels": downloadArtifactCommand("labels", func(ctx context.Context, client *dataverse.Client, modelID int) (io.ReadCloser, error) {
		return client.GetLabelFile(ctx, modelID)
	}),
	"download-triton": downloadArtifactCommand("triton model", func(ctx context.Context, client *dataverse.Client, modelID int) (io.ReadCloser, error) {
		return client.GetTritonModelFile(ctx, modelID)
	}),
})

func downloadArtifactCommand(what string, fetch func(context.Context, *dataverse.Client, int) (io.ReadCloser, error)) cmd.RunFunc {
	return func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		flags := flag.NewFlagSet("", flag.ContinueOnError)
		id := flags.Int("id", 0, "model `id`")
		output := flags.String("output", "", "output `file` (default stdout)")
		if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
			return code
		}
		ctx := newContext(stderr)
		client, err := newClient(ctx, stderr)
		if err != nil {
			return fail(ctx, err)
		}
		body, err := fetch(ctx, client, *id)
		if err != nil {
			return fail(ctx, err)
		}
		defer body.Close()
		var out io.Writer = stdout
		if *output != "" {
			f, err := os.Create(*output)
			if err != nil {
				return fail(ctx, err)
			}
			defer f.Close()
			out = f
		}
		n, err := io.Copy(out, body)
		if err != nil {
			return fail(ctx, err)
		}
		ctxlog.FromContext(ctx).WithFields(logrus.Fields{
			"artifact": what,
			"size":     humanize.Bytes(uint64(n)),
		}).Info("download finished")
		return 0
	}
}

func exportCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	dataslice := flags.Int("dataslice", 0, "dataslice `id` to export")
	format := flags.String("format", string(dataverse.AnnotationFormatVisionAI), "dataset `format` (vision_ai, coco, yolo, vlm)")
	annotation := flags.String("annotation", "", "annotation `name` to export (default groundtruth)")
	target := flags.String("target", ".", "target `folder`")
	sequential := flags.Bool("sequential", false, "export ordered frame sequences")
	skipMedia := flags.Bool("skip-media", false, "export annotation files only")
	concurrency := flags.Int("concurrency", 0, "maximum concurrent media downloads")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	ctx := newContext(stderr)
	client, err := newClient(ctx, stderr)
	if err != nil {
		return fail(ctx, err)
	}
	ex := &export.Exporter{
		Client:        client,
		TargetFolder:  *target,
		MaxConcurrent: *concurrency,
		SkipMedia:     *skipMedia,
	}
	err = ex.ExportDataslice(ctx, *dataslice, export.Options{
		Format:         dataverse.AnnotationFormat(*format),
		AnnotationName: *annotation,
		Sequential:     *sequential,
	})
	if err != nil {
		return fail(ctx, err)
	}
	return 0
}

func importCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	project := flags.Int("project", 0, "project `id`")
	name := flags.String("name", "", "dataset `name`")
	dsType := flags.String("type", string(dataverse.DatasetTypeRaw), "dataset `type` (raw_data or annotated_data)")
	format := flags.String("format", string(dataverse.AnnotationFormatVisionAI), "annotation `format` of the source data")
	folder := flags.String("folder", "", "local data `folder` to upload")
	annotationFolder := flags.String("annotation-folder", "", "local annotation `folder`")
	calibrationFolder := flags.String("calibration-folder", "", "local calibration `folder`")
	annotationFile := flags.String("annotation-file", "", "single annotation `file`")
	annotations := flags.String("annotations", "", "comma-separated annotation `names` to import")
	sequential := flags.Bool("sequential", false, "source data is ordered frame sequences")
	description := flags.String("description", "", "dataset `description`")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	ctx := newContext(stderr)
	client, err := newClient(ctx, stderr)
	if err != nil {
		return fail(ctx, err)
	}
	opts := dataverse.CreateDatasetOptions{
		Name:              *name,
		DataSource:        dataverse.DataSourceLocal,
		Project:           dataverse.Project{ID: *project},
		Type:              dataverse.DatasetType(*dsType),
		AnnotationFormat:  dataverse.AnnotationFormat(*format),
		DataFolder:        *folder,
		AnnotationFolder:  *annotationFolder,
		CalibrationFolder: *calibrationFolder,
		AnnotationFile:    *annotationFile,
		Sequential:        *sequential,
		Description:       *description,
	}
	if *annotations != "" {
		opts.Annotations = strings.Split(*annotations, ",")
	}
	dataset, err := client.CreateDataset(ctx, opts)
	if err != nil {
		return fail(ctx, err)
	}
	if err := printJSON(stdout, dataset); err != nil {
		return fail(ctx, err)
	}
	return 0
}
