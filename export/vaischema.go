// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/linkervision/dataverse-sdk-go/dataverse"
)

// groundTruthItemsKey is the key under a datarow's items that holds
// the ground truth annotation document. User-facing APIs refer to the
// same annotation set as dataverse.GroundTruthAnnotationName.
const groundTruthItemsKey = "ground_truths"

// VisionAI is one annotation document in the VisionAI schema, either
// a single-frame fragment stored with a datarow or an aggregated
// per-sequence document produced by an export.
type VisionAI struct {
	Frames            map[string]*VAIFrame   `json:"frames,omitempty"`
	Objects           map[string]*VAIElement `json:"objects,omitempty"`
	Contexts          map[string]*VAIElement `json:"contexts,omitempty"`
	Streams           map[string]*VAIStream  `json:"streams,omitempty"`
	Tags              map[string]*VAITag     `json:"tags,omitempty"`
	CoordinateSystems json.RawMessage        `json:"coordinate_systems,omitempty"`
	FrameIntervals    []FrameInterval        `json:"frame_intervals,omitempty"`
	Metadata          *VAIMetadata           `json:"metadata,omitempty"`
}

type VAIMetadata struct {
	SchemaVersion string `json:"schema_version"`
}

// A FrameInterval is an inclusive range of frame numbers.
type FrameInterval struct {
	FrameStart int `json:"frame_start"`
	FrameEnd   int `json:"frame_end"`
}

// A VAIFrame holds the dynamic annotation data of one frame.
type VAIFrame struct {
	Objects         map[string]*VAIFrameElement `json:"objects,omitempty"`
	Contexts        map[string]*VAIFrameElement `json:"contexts,omitempty"`
	FrameProperties VAIFrameProperties          `json:"frame_properties"`
}

type VAIFrameProperties struct {
	Timestamp string                `json:"timestamp,omitempty"`
	Streams   map[string]*VAIStream `json:"streams,omitempty"`
}

// A VAIFrameElement is the per-frame data of one object or context,
// keyed by data kind ("bbox", "binary", "vec", ...).
type VAIFrameElement struct {
	ObjectData  VAIDataMap `json:"object_data,omitempty"`
	ContextData VAIDataMap `json:"context_data,omitempty"`
}

type VAIDataMap map[string][]VAIDataEntry

// A VAIDataEntry is one datum of an object or context. Val holds a
// kind-dependent value: a number vector for "bbox", a string for
// "binary", etc.
type VAIDataEntry struct {
	Name             string          `json:"name,omitempty"`
	Type             string          `json:"type,omitempty"`
	Val              interface{}     `json:"val,omitempty"`
	Stream           string          `json:"stream,omitempty"`
	CoordinateSystem string          `json:"coordinate_system,omitempty"`
	ConfidenceScore  *float64        `json:"confidence_score,omitempty"`
	Attributes       json.RawMessage `json:"attributes,omitempty"`
}

// A VAIElement is the static declaration of one object or context,
// with pointers into the frames that carry its data.
type VAIElement struct {
	Name                string                     `json:"name,omitempty"`
	Type                string                     `json:"type,omitempty"`
	OntologyUID         string                     `json:"ontology_uid,omitempty"`
	FrameIntervals      []FrameInterval            `json:"frame_intervals,omitempty"`
	ObjectDataPointers  map[string]*VAIDataPointer `json:"object_data_pointers,omitempty"`
	ContextDataPointers map[string]*VAIDataPointer `json:"context_data_pointers,omitempty"`
}

// dataPointers returns the element's pointer map for the given root
// key ("objects" or "contexts").
func (e *VAIElement) dataPointers(rootKey string) map[string]*VAIDataPointer {
	if rootKey == "contexts" {
		return e.ContextDataPointers
	}
	return e.ObjectDataPointers
}

type VAIDataPointer struct {
	Type           string          `json:"type,omitempty"`
	FrameIntervals []FrameInterval `json:"frame_intervals"`
	Attributes     json.RawMessage `json:"attributes,omitempty"`
}

type VAIStream struct {
	Type             string `json:"type,omitempty"`
	URI              string `json:"uri,omitempty"`
	Description      string `json:"description,omitempty"`
	OriginalFileName string `json:"original_file_name,omitempty"`
}

type VAITag struct {
	OntologyUID string     `json:"ontology_uid"`
	Type        string     `json:"type"`
	TagData     VAITagData `json:"tag_data"`
}

type VAITagData struct {
	Vec []VAITagVec `json:"vec"`
}

type VAITagVec struct {
	Name string   `json:"name"`
	Type string   `json:"type"`
	Val  []string `json:"val"`
}

// datarowItems is the decoded form of a datarow's items field: the
// ground truth document plus any model prediction documents keyed by
// annotation name.
type datarowItems struct {
	GroundTruths *VisionAI            `json:"ground_truths,omitempty"`
	Predictions  map[string]*VisionAI `json:"predictions,omitempty"`
}

// annotationVAI decodes the datarow's items and returns the VisionAI
// document for the given annotation name, or nil if the datarow has
// no such annotation.
func annotationVAI(d dataverse.Datarow, annotationName string) (*VisionAI, error) {
	if len(d.Items) == 0 {
		return nil, nil
	}
	var items datarowItems
	if err := json.Unmarshal(d.Items, &items); err != nil {
		return nil, fmt.Errorf("decode datarow %d items: %w", d.ID, err)
	}
	if annotationName == dataverse.GroundTruthAnnotationName {
		return items.GroundTruths, nil
	}
	return items.Predictions[annotationName], nil
}

// emptyVAI builds a minimal single-frame document for a datarow that
// has no annotations, so exports still account for its media.
func emptyVAI(d dataverse.Datarow, sequenceFolder string) *VisionAI {
	frameKey := frameKeyOf(int(d.FrameID))
	streamType := "camera"
	if d.Type == "pcd" {
		streamType = "lidar"
	}
	uri := path.Join(sequenceFolder, "data", d.SensorName, frameKey+mediaExt(d.URL))
	return &VisionAI{
		Frames: map[string]*VAIFrame{
			frameKey: {
				FrameProperties: VAIFrameProperties{
					Streams: map[string]*VAIStream{
						d.SensorName: {URI: uri},
					},
				},
			},
		},
		Streams: map[string]*VAIStream{
			d.SensorName: {Type: streamType},
		},
		FrameIntervals: []FrameInterval{{FrameStart: int(d.FrameID), FrameEnd: int(d.FrameID)}},
		Metadata:       &VAIMetadata{SchemaVersion: "1.0.0"},
	}
}

func frameKeyOf(frame int) string {
	return fmt.Sprintf("%012d", frame)
}

// mediaExt returns the filename extension of a media URL, ignoring
// any query string.
func mediaExt(rawurl string) string {
	if u, err := url.Parse(rawurl); err == nil {
		return path.Ext(u.Path)
	}
	return path.Ext(rawurl)
}

// mediaBasename returns the final path element of a media URL,
// ignoring any query string.
func mediaBasename(rawurl string) string {
	if u, err := url.Parse(rawurl); err == nil {
		return path.Base(u.Path)
	}
	return path.Base(rawurl)
}

// genIntervals turns a list of frame numbers into a minimal sorted
// list of inclusive intervals, e.g. 0,1,2,3,5,8,9,12 becomes
// (0,3),(5,5),(8,9),(12,12).
func genIntervals(frames []int) []FrameInterval {
	if len(frames) == 0 {
		return nil
	}
	sorted := append([]int(nil), frames...)
	sort.Ints(sorted)
	intervals := []FrameInterval{{FrameStart: sorted[0], FrameEnd: sorted[0]}}
	for _, frame := range sorted {
		last := &intervals[len(intervals)-1]
		switch {
		case frame <= last.FrameEnd:
		case frame == last.FrameEnd+1:
			last.FrameEnd = frame
		default:
			intervals = append(intervals, FrameInterval{FrameStart: frame, FrameEnd: frame})
		}
	}
	return mergeIntervals(intervals)
}

// mergeIntervals merges overlapping or adjacent intervals, e.g.
// (0,3),(3,5),(8,9) becomes (0,5),(8,9).
func mergeIntervals(intervals []FrameInterval) []FrameInterval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := append([]FrameInterval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FrameStart < sorted[j].FrameStart })
	merged := sorted[:1]
	for _, interval := range sorted[1:] {
		last := &merged[len(merged)-1]
		if interval.FrameStart-last.FrameEnd > 1 {
			merged = append(merged, interval)
			continue
		}
		if interval.FrameEnd > last.FrameEnd {
			last.FrameEnd = interval.FrameEnd
		}
	}
	return merged
}

// intervalFrames expands intervals into the set of frame numbers they
// cover.
func intervalFrames(intervals []FrameInterval) map[int]bool {
	frames := map[int]bool{}
	for _, interval := range intervals {
		for i := interval.FrameStart; i <= interval.FrameEnd; i++ {
			frames[i] = true
		}
	}
	return frames
}

// uniqueFilename returns name, or name with a "(n)" suffix before the
// extension if name is already taken.
func uniqueFilename(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, n, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}
