// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"encoding/json"
	"path"
	"sort"

	"github.com/linkervision/dataverse-sdk-go/dataverse"
)

const (
	imagesFolder     = "images"
	annotationFolder = "annotations"
	cocoLabelFile    = "labels.json"
)

func init() {
	RegisterConverter(dataverse.AnnotationFormatCOCO, func(project *dataverse.Project, layout *Layout, annotationName string) Converter {
		conv := &cocoConverter{
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

type cocoImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	CocoURL  string `json:"coco_url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type cocoAnnotation struct {
	ID         int        `json:"id"`
	ImageID    int        `json:"image_id"`
	CategoryID int        `json:"category_id"`
	Bbox       [4]float64 `json:"bbox"`
	Area       float64    `json:"area"`
	Iscrowd    int        `json:"iscrowd"`
}

type cocoCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type cocoDataset struct {
	Categories  []cocoCategory   `json:"categories"`
	Images      []cocoImage      `json:"images"`
	Annotations []cocoAnnotation `json:"annotations"`
}

// cocoConverter exports a flat images/ folder plus one aggregated
// annotations/labels.json. Bounding boxes are converted from
// center-point to COCO's top-left origin.
type cocoConverter struct {
	annotationName string
	categories     []string
	categoryIndex  map[string]int
	images         []cocoImage
	annotations    []cocoAnnotation
	taken          map[string]bool
}

func (conv *cocoConverter) addCategory(name string) int {
	if id, ok := conv.categoryIndex[name]; ok {
		return id
	}
	id := len(conv.categories)
	conv.categories = append(conv.categories, name)
	conv.categoryIndex[name] = id
	return id
}

func (conv *cocoConverter) Add(d dataverse.Datarow) ([]File, []MediaJob, error) {
	name := uniqueFilename(mediaBasename(d.OriginalURL), conv.taken)
	conv.taken[name] = true

	vai, err := annotationVAI(d, conv.annotationName)
	if err != nil {
		return nil, nil, err
	}
	if vai == nil {
		vai = emptyVAI(d, "")
	}

	imageID := len(conv.images)
	conv.images = append(conv.images, cocoImage{
		ID:       imageID,
		FileName: name,
		CocoURL:  path.Join(imagesFolder, name),
		Width:    d.ImageWidth,
		Height:   d.ImageHeight,
	})
	for _, box := range frameBboxes(vai, d.SensorName) {
		conv.annotations = append(conv.annotations, cocoAnnotation{
			ID:         len(conv.annotations),
			ImageID:    imageID,
			CategoryID: conv.addCategory(box.class),
			Bbox:       [4]float64{box.cx - box.w/2, box.cy - box.h/2, box.w, box.h},
			Area:       box.w * box.h,
		})
	}
	return nil, []MediaJob{{URL: d.URL, Path: path.Join(imagesFolder, name)}}, nil
}

func (conv *cocoConverter) Finish() ([]File, error) {
	dataset := cocoDataset{
		Images:      conv.images,
		Annotations: conv.annotations,
	}
	if dataset.Images == nil {
		dataset.Images = []cocoImage{}
	}
	if dataset.Annotations == nil {
		dataset.Annotations = []cocoAnnotation{}
	}
	for id, name := range conv.categories {
		dataset.Categories = append(dataset.Categories, cocoCategory{ID: id, Name: name})
	}
	buf, err := json.Marshal(dataset)
	if err != nil {
		return nil, err
	}
	return []File{{Path: path.Join(annotationFolder, cocoLabelFile), Data: buf}}, nil
}

type bbox struct {
	class        string
	cx, cy, w, h float64
}

// frameBboxes extracts the bounding boxes of the document's single
// frame for the given camera sensor, with the class name resolved
// from the static object declarations. Box values are center-point
// x, y, width, height.
func frameBboxes(vai *VisionAI, sensorName string) []bbox {
	var frame *VAIFrame
	for _, f := range vai.Frames {
		frame = f
		break
	}
	if frame == nil {
		return nil
	}
	var ids []string
	for id := range frame.Objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var boxes []bbox
	for _, id := range ids {
		class := ""
		if elem := vai.Objects[id]; elem != nil {
			class = elem.Type
		}
		for _, entry := range frame.Objects[id].ObjectData["bbox"] {
			if entry.Stream != "" && entry.Stream != sensorName {
				continue
			}
			vals, ok := floatVals(entry.Val)
			if !ok || len(vals) != 4 {
				continue
			}
			boxes = append(boxes, bbox{class: class, cx: vals[0], cy: vals[1], w: vals[2], h: vals[3]})
		}
	}
	return boxes
}

func floatVals(val interface{}) ([]float64, bool) {
	list, ok := val.([]interface{})
	if !ok {
		return nil, false
	}
	vals := make([]float64, 0, len(list))
	for _, v := range list {
		f, ok := v.(float64)
		if !ok {
			return nil, false
		}
		vals = append(vals, f)
	}
	return vals, true
}
