// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"time"

	azstorage "github.com/Azure/azure-sdk-for-go/storage"
)

// An AzureContainer lists blobs in one Azure storage container.
type AzureContainer struct {
	Container string

	container *azstorage.Container
}

// NewAzureContainer opens a container with an account name and key.
func NewAzureContainer(accountName, accountKey, container string) (*AzureContainer, error) {
	client, err := azstorage.NewBasicClient(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("connect to azure account %q: %w", accountName, err)
	}
	bs := client.GetBlobService()
	return &AzureContainer{
		Container: container,
		container: bs.GetContainerReference(container),
	}, nil
}

// NewAzureContainerSAS opens a container with a shared access
// signature token, as issued for cloud-sourced datasets.
func NewAzureContainerSAS(endpoint, sasToken, container string) (*AzureContainer, error) {
	client, err := azstorage.NewAccountSASClientFromEndpointToken(endpoint, sasToken)
	if err != nil {
		return nil, fmt.Errorf("connect to azure endpoint %q: %w", endpoint, err)
	}
	bs := client.GetBlobService()
	return &AzureContainer{
		Container: container,
		container: bs.GetContainerReference(container),
	}, nil
}

// List implements Lister.
func (c *AzureContainer) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	var objects []Object
	params := azstorage.ListBlobsParameters{Prefix: prefix}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := c.container.ListBlobs(params)
		if err != nil {
			return nil, fmt.Errorf("list container %q: %w", c.Container, err)
		}
		for _, blob := range resp.Blobs {
			objects = append(objects, Object{
				Key:          blob.Name,
				Size:         blob.Properties.ContentLength,
				LastModified: time.Time(blob.Properties.LastModified),
			})
			if limit > 0 && len(objects) >= limit {
				return objects, nil
			}
		}
		if resp.NextMarker == "" {
			return objects, nil
		}
		params.Marker = resp.NextMarker
	}
}
