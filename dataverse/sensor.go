// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

// SensorType identifies the kind of sensor a project records.
type SensorType string

const (
	SensorTypeCamera SensorType = "camera"
	SensorTypeLidar  SensorType = "lidar"
)

// Sensor is a dataverse#sensor record.
type Sensor struct {
	ID   int        `json:"id,omitempty"`
	Name string     `json:"name"`
	Type SensorType `json:"type"`
}
