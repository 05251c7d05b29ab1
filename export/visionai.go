// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/linkervision/dataverse-sdk-go/dataverse"
)

func init() {
	RegisterConverter(dataverse.AnnotationFormatVisionAI, func(project *dataverse.Project, layout *Layout, annotationName string) Converter {
		return &visionAIConverter{
			layout:         layout,
			annotationName: annotationName,
			seqFrames:      map[int]map[int][]vaiRow{},
		}
	})
}

type vaiRow struct {
	datarow dataverse.Datarow
	vai     *VisionAI
}

// visionAIConverter exports one visionai.json per output sequence,
// with media laid out as
// <sequence>/data/<sensor>/<frame><ext>.
type visionAIConverter struct {
	layout         *Layout
	annotationName string
	seqFrames      map[int]map[int][]vaiRow
}

func (conv *visionAIConverter) Add(d dataverse.Datarow) ([]File, []MediaJob, error) {
	seq, ok := conv.layout.Sequence(d.ID)
	if !ok {
		return nil, nil, fmt.Errorf("datarow %d does not belong to the exported dataslice", d.ID)
	}
	frame := int(d.FrameID)
	seqFolder := fmt.Sprintf("%012d", seq)
	vai, err := annotationVAI(d, conv.annotationName)
	if err != nil {
		return nil, nil, err
	}
	if vai == nil || len(vai.Frames) == 0 {
		vai = emptyVAI(d, seqFolder)
	}
	frames := conv.seqFrames[seq]
	if frames == nil {
		frames = map[int][]vaiRow{}
		conv.seqFrames[seq] = frames
	}
	frames[frame] = append(frames[frame], vaiRow{datarow: d, vai: vai})

	job := MediaJob{
		URL:  d.URL,
		Path: path.Join(seqFolder, "data", d.SensorName, frameKeyOf(frame)+mediaExt(d.URL)),
	}
	return nil, []MediaJob{job}, nil
}

func (conv *visionAIConverter) Finish() ([]File, error) {
	var seqs []int
	for seq := range conv.seqFrames {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	var files []File
	for _, seq := range seqs {
		seqFolder := fmt.Sprintf("%012d", seq)
		vai, err := aggregateSequence(conv.seqFrames[seq], seqFolder, conv.annotationName)
		if err != nil {
			return nil, fmt.Errorf("aggregate sequence %d: %w", seq, err)
		}
		buf, err := json.Marshal(struct {
			VisionAI *VisionAI `json:"visionai"`
		}{vai})
		if err != nil {
			return nil, err
		}
		files = append(files, File{
			Path: path.Join(seqFolder, "annotations", conv.annotationName, "visionai.json"),
			Data: buf,
		})
	}
	return files, nil
}

// aggregateSequence merges the single-frame documents of one output
// sequence into one VisionAI document: dynamic per-frame data is
// combined per frame across sensors, static objects and contexts get
// their frame intervals recomputed, stream URIs are rewritten to the
// exported folder layout, and segmentation tags are renumbered to a
// sequence-wide class list.
func aggregateSequence(frameRows map[int][]vaiRow, sequenceFolder, annotationName string) (*VisionAI, error) {
	var frameNums []int
	for frame := range frameRows {
		frameNums = append(frameNums, frame)
	}
	sort.Ints(frameNums)

	dynamicObjectFrames := map[string][]int{}
	dynamicContextFrames := map[string][]int{}
	combinedFrames := map[string]*VAIFrame{}
	streams := map[string]*VAIStream{}
	var coordinateSystems json.RawMessage
	var allRows []vaiRow

	for _, frame := range frameNums {
		rows := frameRows[frame]
		allRows = append(allRows, rows...)
		current := &VAIFrame{
			Objects:  map[string]*VAIFrameElement{},
			Contexts: map[string]*VAIFrameElement{},
			FrameProperties: VAIFrameProperties{
				Streams: map[string]*VAIStream{},
			},
		}
		for _, row := range rows {
			vai := row.vai
			var vframe *VAIFrame
			for _, f := range vai.Frames {
				vframe = f
				break
			}
			if vframe == nil {
				return nil, fmt.Errorf("datarow %d items have no frame data", row.datarow.ID)
			}
			for id, obj := range vframe.Objects {
				dynamicObjectFrames[id] = append(dynamicObjectFrames[id], frame)
				if existing, ok := current.Objects[id]; ok {
					mergeDataMap(existing.ObjectData, obj.ObjectData)
				} else {
					current.Objects[id] = obj
				}
			}
			for id, ctx := range vframe.Contexts {
				dynamicContextFrames[id] = append(dynamicContextFrames[id], frame)
				if existing, ok := current.Contexts[id]; ok {
					mergeDataMap(existing.ContextData, ctx.ContextData)
				} else {
					current.Contexts[id] = ctx
				}
			}
			if ts := vframe.FrameProperties.Timestamp; ts != "" && current.FrameProperties.Timestamp == "" {
				current.FrameProperties.Timestamp = ts
			}
			originalName := mediaBasename(row.datarow.OriginalURL)
			for sensor, stream := range updateStreamsURI(vframe.FrameProperties.Streams, sequenceFolder, originalName) {
				current.FrameProperties.Streams[sensor] = stream
			}
			if coordinateSystems == nil && vai.CoordinateSystems != nil {
				coordinateSystems = vai.CoordinateSystems
			}
			if sensor := firstKey(vai.Streams); sensor != "" {
				if _, ok := streams[sensor]; !ok {
					for name, stream := range updateStreamsURI(vai.Streams, sequenceFolder, "") {
						streams[name] = stream
					}
				}
			}
		}
		if len(current.Objects) == 0 {
			current.Objects = nil
		}
		if len(current.Contexts) == 0 {
			current.Contexts = nil
		}
		combinedFrames[frameKeyOf(frame)] = current
	}

	frameSet := map[int]bool{}
	for _, frame := range frameNums {
		frameSet[frame] = true
	}

	staticObjects := aggregateStatic(allRows, "objects")
	staticContexts := aggregateStatic(allRows, "contexts")

	tags, err := aggregateTags(allRows, combinedFrames)
	if err != nil {
		return nil, err
	}

	vai := &VisionAI{
		Frames:            combinedFrames,
		FrameIntervals:    genIntervals(frameNums),
		Streams:           streams,
		Objects:           combineStaticDynamic(staticObjects, dynamicObjectFrames, frameSet, "objects"),
		Contexts:          combineStaticDynamic(staticContexts, dynamicContextFrames, frameSet, "contexts"),
		Tags:              tags,
		CoordinateSystems: coordinateSystems,
		Metadata:          &VAIMetadata{SchemaVersion: "1.0.0"},
	}
	return vai, nil
}

func mergeDataMap(dst, src VAIDataMap) {
	for kind, entries := range src {
		dst[kind] = append(dst[kind], entries...)
	}
}

func firstKey(streams map[string]*VAIStream) string {
	var keys []string
	for key := range streams {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// updateStreamsURI rewrites stream URIs to the exported folder
// layout. Only the last three path segments of the original URI
// (data/<sensor>/<frame><ext>) are kept and re-rooted under
// sequenceFolder.
func updateStreamsURI(streams map[string]*VAIStream, sequenceFolder, originalFileName string) map[string]*VAIStream {
	updated := make(map[string]*VAIStream, len(streams))
	for sensor, stream := range streams {
		copied := *stream
		if copied.URI != "" {
			parts := strings.Split(copied.URI, "/")
			if len(parts) > 3 {
				parts = parts[len(parts)-3:]
			}
			copied.URI = path.Join(append([]string{sequenceFolder}, parts...)...)
		}
		if originalFileName != "" {
			copied.OriginalFileName = originalFileName
		}
		updated[sensor] = &copied
	}
	return updated
}

type staticEntry struct {
	frame int
	elem  *VAIElement
}

// aggregateStatic collects the static objects or contexts of each
// datarow document, pinning each occurrence's data pointers to the
// frame the datarow belongs to.
func aggregateStatic(rows []vaiRow, rootKey string) map[string][]staticEntry {
	static := map[string][]staticEntry{}
	for _, row := range rows {
		frame := int(row.datarow.FrameID)
		elems := row.vai.Objects
		if rootKey == "contexts" {
			elems = row.vai.Contexts
		}
		for id, elem := range elems {
			for _, pointer := range elem.dataPointers(rootKey) {
				pointer.FrameIntervals = []FrameInterval{{FrameStart: frame, FrameEnd: frame}}
			}
			static[id] = append(static[id], staticEntry{frame: frame, elem: elem})
		}
	}
	return static
}

// combineStaticDynamic merges the per-datarow occurrences of each
// static element, recomputes its data pointer intervals against the
// frames actually present in the sequence, and derives each element's
// overall frame intervals from both its static occurrences and its
// dynamic per-frame data.
func combineStaticDynamic(static map[string][]staticEntry, dynamic map[string][]int, frameSet map[int]bool, rootKey string) map[string]*VAIElement {
	if len(static) == 0 && len(dynamic) == 0 {
		return nil
	}
	var ids []string
	for id := range static {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	combined := map[string]*VAIElement{}
	for _, id := range ids {
		for _, entry := range static[id] {
			elem, ok := combined[id]
			if !ok {
				combined[id] = entry.elem
				continue
			}
			pointers := elem.dataPointers(rootKey)
			for name, pointer := range entry.elem.dataPointers(rootKey) {
				if existing, ok := pointers[name]; ok {
					existing.FrameIntervals = append(existing.FrameIntervals, pointer.FrameIntervals...)
				} else {
					pointers[name] = pointer
				}
			}
		}
	}

	// Drop elements whose data lies entirely outside the exported
	// frames, and clip the rest.
	for _, id := range ids {
		elem, ok := combined[id]
		if !ok {
			continue
		}
		for _, pointer := range elem.dataPointers(rootKey) {
			var allowed []int
			for frame := range intervalFrames(pointer.FrameIntervals) {
				if frameSet[frame] {
					allowed = append(allowed, frame)
				}
			}
			if len(allowed) == 0 {
				delete(combined, id)
				break
			}
			pointer.FrameIntervals = genIntervals(allowed)
		}
	}

	for _, id := range ids {
		elem, ok := combined[id]
		if !ok {
			continue
		}
		var frames []int
		for _, entry := range static[id] {
			frames = append(frames, entry.frame)
		}
		frames = append(frames, dynamic[id]...)
		elem.FrameIntervals = genIntervals(frames)
	}
	if len(combined) == 0 {
		return nil
	}
	return combined
}

// aggregateTags combines segmentation tag class lists across the
// sequence and renumbers each frame's RLE mask from its per-datarow
// class indexes to the combined list. RLE masks are strings of
// "#<pixel count>V<class index>" segments.
func aggregateTags(rows []vaiRow, frames map[string]*VAIFrame) (map[string]*VAITag, error) {
	var classList []string
	seen := map[string]bool{}
	for _, row := range rows {
		for _, class := range tagClassVals(row.vai) {
			if !seen[class] {
				seen[class] = true
				classList = append(classList, class)
			}
		}
	}
	if len(classList) == 0 {
		return nil, nil
	}
	classIndex := make(map[string]int, len(classList))
	for i, class := range classList {
		classIndex[class] = i
	}

	for _, row := range rows {
		rowClasses := tagClassVals(row.vai)
		if len(rowClasses) == 0 {
			continue
		}
		frame := frames[frameKeyOf(int(row.datarow.FrameID))]
		if frame == nil || len(frame.Objects) == 0 {
			continue
		}
		var objIDs []string
		for id := range frame.Objects {
			objIDs = append(objIDs, id)
		}
		sort.Strings(objIDs)
		binaries := frame.Objects[objIDs[0]].ObjectData["binary"]
		if len(binaries) == 0 {
			continue
		}
		rle, ok := binaries[0].Val.(string)
		if !ok {
			continue
		}
		renumbered, err := renumberRLE(rle, rowClasses, classIndex)
		if err != nil {
			return nil, fmt.Errorf("datarow %d: %w", row.datarow.ID, err)
		}
		binaries[0].Val = renumbered
	}

	return map[string]*VAITag{
		uuid.NewString(): {
			OntologyUID: "",
			Type:        "semantic_segmentation_RLE",
			TagData: VAITagData{
				Vec: []VAITagVec{{Name: "", Type: "values", Val: classList}},
			},
		},
	}, nil
}

func tagClassVals(vai *VisionAI) []string {
	if vai == nil || len(vai.Tags) == 0 {
		return nil
	}
	var keys []string
	for key := range vai.Tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	vec := vai.Tags[keys[0]].TagData.Vec
	if len(vec) == 0 {
		return nil
	}
	return vec[0].Val
}

func renumberRLE(rle string, rowClasses []string, classIndex map[string]int) (string, error) {
	var b strings.Builder
	for _, segment := range strings.Split(rle, "#") {
		parts := strings.SplitN(segment, "V", 2)
		if len(parts) != 2 {
			continue
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil || idx < 0 || idx >= len(rowClasses) {
			return "", fmt.Errorf("invalid RLE segment %q", segment)
		}
		fmt.Fprintf(&b, "#%sV%d", parts[0], classIndex[rowClasses[idx]])
	}
	return b.String(), nil
}
