// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"fmt"
	"regexp"
)

// OntologyImageType identifies the image annotation task an ontology
// describes.
type OntologyImageType string

const (
	ImageType2DBoundingBox        OntologyImageType = "2d_bounding_box"
	ImageTypeSemanticSegmentation OntologyImageType = "semantic_segmentation"
	ImageTypeClassification       OntologyImageType = "classification"
	ImageTypePoint                OntologyImageType = "point"
	ImageTypePolygon              OntologyImageType = "polygon"
	ImageTypePolyline             OntologyImageType = "polyline"
)

// OntologyPcdType identifies the point-cloud annotation task an
// ontology describes.
type OntologyPcdType string

const (
	PcdTypeCuboid OntologyPcdType = "cuboid"
)

// AttributeType is the value type of an ontology class attribute.
type AttributeType string

const (
	AttributeTypeBoolean AttributeType = "boolean"
	AttributeTypeOption  AttributeType = "option"
	AttributeTypeNumber  AttributeType = "number"
	AttributeTypeText    AttributeType = "text"
)

// AttributeOption is one admissible value of an option attribute.
// Value may be a string, number, or bool.
type AttributeOption struct {
	ID    int         `json:"id,omitempty"`
	Value interface{} `json:"value"`
}

// Attribute is a named, typed property attachable to an ontology
// class or a project tag.
type Attribute struct {
	ID      int               `json:"id,omitempty"`
	Name    string            `json:"name"`
	Type    AttributeType     `json:"type"`
	Options []AttributeOption `json:"options,omitempty"`
}

// OntologyClass is one label class in a project's ontology.
type OntologyClass struct {
	ID         int         `json:"id,omitempty"`
	Name       string      `json:"name"`
	Color      string      `json:"color"`
	Rank       int         `json:"rank,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	// ExtendedClass is only present in visual question answering
	// ontologies, where each class represents one question.
	ExtendedClass *ExtendedClass `json:"extended_class,omitempty"`
}

// ExtendedClass carries the question text of a visual question
// answering ontology class.
type ExtendedClass struct {
	Question string `json:"question"`
}

// Ontology is a project's label class taxonomy.
type Ontology struct {
	ID        int               `json:"id,omitempty"`
	Name      string            `json:"name"`
	ImageType OntologyImageType `json:"image_type,omitempty"`
	PcdType   OntologyPcdType   `json:"pcd_type,omitempty"`
	Classes   []OntologyClass   `json:"classes,omitempty"`
}

// ProjectTag is a set of attributes applied to a whole project.
type ProjectTag struct {
	Attributes []Attribute `json:"attributes,omitempty"`
}

var classColorRegexp = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func checkClassColor(color string) error {
	if !classColorRegexp.MatchString(color) {
		return fmt.Errorf("color must start with \"#\" followed by 6 hex digits, got %q", color)
	}
	return nil
}
