// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"sort"

	"github.com/linkervision/dataverse-sdk-go/dataverse"
)

// noSequence is the grouping key for datarows whose original data was
// not sequential.
const noSequence = -1

// A Layout fixes the output sequence numbering for one export run
// before any datarow content is fetched, so converters can place
// files deterministically regardless of page boundaries.
//
// In a sequential export, all frames of one sequence parent share an
// output sequence. In a non-sequential export (and for datarows with
// no sequence parent) every frame becomes its own single-frame output
// sequence. Datarows of the same frame captured by different sensors
// always share an output sequence.
type Layout struct {
	Sequential bool

	sequences  map[int]int
	nsequences int
}

type layoutRow struct {
	id       int
	seqKey   int
	frameKey int
}

// BuildLayout lists the dataslice's datarow structure and assigns
// output sequence numbers. Repeated exports of the same dataslice
// produce the same folder layout.
//
// datasliceType is the type of the dataslice being exported. The
// flat-parent listing only distinguishes "image" and "pcd"; any other
// type is listed as "base".
func BuildLayout(ctx context.Context, client *dataverse.Client, datasliceID int, datasliceType string, sequential bool) (*Layout, error) {
	if datasliceType != "image" && datasliceType != "pcd" {
		datasliceType = "base"
	}
	var rows []layoutRow
	err := client.EachFlatParentPage(ctx, dataverse.ListFlatParentOptions{
		DatasliceID: datasliceID,
		Type:        datasliceType,
		Fields:      "id,sequence_datarow_id,frame_datarow_id",
	}, func(page []dataverse.Datarow) error {
		for _, d := range page {
			seqKey := noSequence
			if d.SequenceDatarowID != nil {
				seqKey = *d.SequenceDatarowID
			}
			rows = append(rows, layoutRow{id: d.ID, seqKey: seqKey, frameKey: int(d.FrameDatarowID)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buildLayout(rows, sequential), nil
}

func buildLayout(rows []layoutRow, sequential bool) *Layout {
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	// Group rows by sequence parent, preserving first-encounter
	// order, and by frame parent within each group.
	var seqKeys []int
	frameKeys := map[int][]int{}
	frameRows := map[int]map[int][]int{}
	for _, r := range rows {
		byFrame, ok := frameRows[r.seqKey]
		if !ok {
			byFrame = map[int][]int{}
			frameRows[r.seqKey] = byFrame
			seqKeys = append(seqKeys, r.seqKey)
		}
		if _, ok := byFrame[r.frameKey]; !ok {
			frameKeys[r.seqKey] = append(frameKeys[r.seqKey], r.frameKey)
		}
		byFrame[r.frameKey] = append(byFrame[r.frameKey], r.id)
	}

	layout := &Layout{
		Sequential: sequential,
		sequences:  make(map[int]int, len(rows)),
	}
	order := 0
	for _, seqKey := range seqKeys {
		wholeSequence := sequential && seqKey != noSequence
		for _, frameKey := range frameKeys[seqKey] {
			for _, id := range frameRows[seqKey][frameKey] {
				layout.sequences[id] = order
			}
			if !wholeSequence {
				order++
			}
		}
		if wholeSequence {
			order++
		}
	}
	layout.nsequences = order
	return layout
}

// Sequence returns the output sequence number assigned to the given
// datarow.
func (layout *Layout) Sequence(datarowID int) (int, bool) {
	seq, ok := layout.sequences[datarowID]
	return seq, ok
}

// Len returns the number of datarows in the layout.
func (layout *Layout) Len() int {
	return len(layout.sequences)
}

// DatarowIDs returns the IDs of the datarows in the layout, sorted.
func (layout *Layout) DatarowIDs() []int {
	ids := make([]int, 0, len(layout.sequences))
	for id := range layout.sequences {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Sequences returns the number of output sequences in the layout.
func (layout *Layout) Sequences() int {
	return layout.nsequences
}
