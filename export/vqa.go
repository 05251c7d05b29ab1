// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/linkervision/dataverse-sdk-go/dataverse"
)

const vlmAnnotationFile = "vlm_annotation.json"

func init() {
	RegisterConverter(dataverse.AnnotationFormatVLM, func(project *dataverse.Project, layout *Layout, annotationName string) Converter {
		conv := &vqaConverter{
			annotationName: annotationName,
			questions:      map[int]string{},
			taken:          map[string]bool{},
		}
		if project != nil {
			for _, class := range project.Ontology.Classes {
				if class.ExtendedClass != nil {
					conv.questions[class.Rank] = class.ExtendedClass.Question
				}
			}
		}
		return conv
	})
}

// vlmEntry is one image's record in the exported vlm_annotation.json.
type vlmEntry struct {
	ID            string            `json:"id"`
	Image         string            `json:"image"`
	Conversations []vlmConversation `json:"conversations"`
}

type vlmConversation struct {
	QuestionID int                        `json:"question_id"`
	Question   string                     `json:"question,omitempty"`
	Answer     map[string]json.RawMessage `json:"answer"`
}

// vlmItems is the decoded form of a datarow's vlm_items field.
type vlmItems struct {
	Data vlmEntry `json:"data"`
}

// vqaConverter exports a visual question answering dataset: images/
// plus one aggregated annotations/vlm_annotation.json, with each
// conversation's question text resolved from the project ontology and
// its answers filtered to the exported annotation set.
type vqaConverter struct {
	annotationName string
	questions      map[int]string
	taken          map[string]bool
	entries        []vlmEntry
}

func (conv *vqaConverter) Add(d dataverse.Datarow) ([]File, []MediaJob, error) {
	name := uniqueFilename(mediaBasename(d.OriginalURL), conv.taken)
	conv.taken[name] = true

	if len(d.VLMItems) == 0 {
		return nil, nil, fmt.Errorf("datarow %d has no question answering items", d.ID)
	}
	var items vlmItems
	if err := json.Unmarshal(d.VLMItems, &items); err != nil {
		return nil, nil, fmt.Errorf("decode datarow %d vlm items: %w", d.ID, err)
	}
	entry := items.Data
	entry.ID = fmt.Sprintf("%012d", len(conv.entries))
	entry.Image = name

	var conversations []vlmConversation
	for _, conversation := range entry.Conversations {
		answer, ok := conversation.Answer[conv.annotationName]
		if !ok {
			continue
		}
		question, ok := conv.questions[conversation.QuestionID]
		if !ok {
			return nil, nil, fmt.Errorf("datarow %d references unknown question %d", d.ID, conversation.QuestionID)
		}
		conversation.Answer = map[string]json.RawMessage{conv.annotationName: answer}
		conversation.Question = question
		conversations = append(conversations, conversation)
	}
	entry.Conversations = conversations
	conv.entries = append(conv.entries, entry)

	return nil, []MediaJob{{URL: d.URL, Path: path.Join(imagesFolder, name)}}, nil
}

func (conv *vqaConverter) Finish() ([]File, error) {
	entries := conv.entries
	if entries == nil {
		entries = []vlmEntry{}
	}
	buf, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return []File{{Path: path.Join(annotationFolder, vlmAnnotationFile), Data: buf}}, nil
}
