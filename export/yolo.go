// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"fmt"
	"path"
	"strings"

	"github.com/linkervision/dataverse-sdk-go/dataverse"
)

const yoloClassesFile = "classes.txt"

func init() {
	RegisterConverter(dataverse.AnnotationFormatYOLO, func(project *dataverse.Project, layout *Layout, annotationName string) Converter {
		conv := &yoloConverter{
			annotationName: annotationName,
			categoryIndex:  map[string]int{},
			taken:          map[string]bool{},
		}
		if project != nil {
			for _, class := range project.Ontology.Classes {
				conv.addCategory(class.Name)
			}
		}
		return conv
	})
}

// yoloConverter exports images/ plus one labels/<image>.txt per
// image, with box coordinates normalized to the image size, and a
// classes.txt listing the project's label classes.
type yoloConverter struct {
	annotationName string
	classNames     []string
	categoryIndex  map[string]int
	taken          map[string]bool
}

func (conv *yoloConverter) addCategory(name string) int {
	if id, ok := conv.categoryIndex[name]; ok {
		return id
	}
	id := len(conv.classNames)
	conv.classNames = append(conv.classNames, name)
	conv.categoryIndex[name] = id
	return id
}

func (conv *yoloConverter) Add(d dataverse.Datarow) ([]File, []MediaJob, error) {
	name := uniqueFilename(mediaBasename(d.OriginalURL), conv.taken)
	conv.taken[name] = true

	vai, err := annotationVAI(d, conv.annotationName)
	if err != nil {
		return nil, nil, err
	}
	if vai == nil {
		vai = emptyVAI(d, "")
	}
	if d.ImageWidth <= 0 || d.ImageHeight <= 0 {
		return nil, nil, fmt.Errorf("datarow %d has no image dimensions", d.ID)
	}
	width, height := float64(d.ImageWidth), float64(d.ImageHeight)

	var lines []string
	for _, box := range frameBboxes(vai, d.SensorName) {
		lines = append(lines, fmt.Sprintf("%d %.6f %.6f %.6f %.6f",
			conv.addCategory(box.class), box.cx/width, box.cy/height, box.w/width, box.h/height))
	}
	base := strings.TrimSuffix(name, path.Ext(name))
	files := []File{{
		Path: path.Join("labels", base+".txt"),
		Data: []byte(strings.Join(lines, "\n")),
	}}
	return files, []MediaJob{{URL: d.URL, Path: path.Join(imagesFolder, name)}}, nil
}

func (conv *yoloConverter) Finish() ([]File, error) {
	return []File{{
		Path: yoloClassesFile,
		Data: []byte(strings.Join(conv.classNames, "\n")),
	}}, nil
}
