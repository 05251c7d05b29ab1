// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// An S3Bucket lists and uploads objects in one S3 bucket.
type S3Bucket struct {
	Bucket string
	Region string

	client *s3.Client
}

// S3Options configure access to a bucket.
type S3Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the AWS endpoint, for S3-compatible
	// stores.
	Endpoint string
}

// NewS3Bucket opens a bucket. If AccessKeyID is empty, the default
// AWS credential chain is used.
func NewS3Bucket(ctx context.Context, bucket string, opts S3Options) (*S3Bucket, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Bucket{Bucket: bucket, Region: opts.Region, client: client}, nil
}

// List implements Lister.
func (b *S3Bucket) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", b.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
			if limit > 0 && len(objects) >= limit {
				return objects, nil
			}
		}
	}
	return objects, nil
}

// Upload stores the content of r at key.
func (b *S3Bucket) Upload(ctx context.Context, key string, r io.Reader) error {
	uploader := manager.NewUploader(b.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", b.Bucket, key, err)
	}
	return nil
}

var s3HostRegexp = regexp.MustCompile(`^([^.]+)\.s3[.-]([^.]+)\.amazonaws\.com$`)

// ParseS3URL splits an S3 location into bucket, region, and key
// prefix. Both virtual-hosted URLs
// (https://bucket.s3.region.amazonaws.com/prefix) and s3:// URLs
// (s3://bucket/prefix, no region) are accepted.
func ParseS3URL(rawurl string) (bucket, region, prefix string, err error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", "", "", err
	}
	prefix = strings.TrimPrefix(u.Path, "/")
	switch u.Scheme {
	case "s3":
		return u.Host, "", prefix, nil
	case "http", "https":
		m := s3HostRegexp.FindStringSubmatch(u.Host)
		if m == nil {
			return "", "", "", fmt.Errorf("unrecognized S3 URL host %q", u.Host)
		}
		return m[1], m[2], prefix, nil
	default:
		return "", "", "", fmt.Errorf("unrecognized S3 URL %q", rawurl)
	}
}
