// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package dataverse is a client library for the Dataverse MLOps
// platform API. It provides a typed HTTP client, resource types
// (projects, datasets, dataslices, models), and methods that
// implement common patterns like cursor-paginated listing.
package dataverse
