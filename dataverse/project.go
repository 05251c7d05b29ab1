// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	lru "github.com/hashicorp/golang-lru"
)

// Project is a dataverse#project record: a named workspace defined by
// an ontology and a set of sensors.
type Project struct {
	ID          int         `json:"id,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	EgoCar      string      `json:"ego_car,omitempty"`
	Ontology    Ontology    `json:"ontology"`
	Sensors     []Sensor    `json:"sensors"`
	ProjectTag  *ProjectTag `json:"project_tag,omitempty"`
}

// Wire shapes for the project create/edit APIs. The backend takes
// "*_data" payloads that differ from the records it returns: ids are
// server-assigned, and option attributes carry their admissible
// values as a flat "option_data" list.
type attributeData struct {
	Name       string        `json:"name"`
	Type       AttributeType `json:"type"`
	OptionData []interface{} `json:"option_data,omitempty"`
}

type ontologyClassData struct {
	Name          string          `json:"name"`
	Color         string          `json:"color"`
	Rank          int             `json:"rank"`
	AttributeData []attributeData `json:"attribute_data,omitempty"`
}

type ontologyData struct {
	Name                string              `json:"name"`
	ImageType           OntologyImageType   `json:"image_type,omitempty"`
	PcdType             OntologyPcdType     `json:"pcd_type,omitempty"`
	OntologyClassesData []ontologyClassData `json:"ontology_classes_data,omitempty"`
}

type projectTagData struct {
	AttributeData []attributeData `json:"attribute_data,omitempty"`
}

func attributesToData(attrs []Attribute) ([]attributeData, error) {
	var out []attributeData
	for _, attr := range attrs {
		data := attributeData{Name: attr.Name, Type: attr.Type}
		if attr.Type == AttributeTypeOption {
			if len(attr.Options) == 0 {
				return nil, fmt.Errorf("attribute %q: option attributes need at least one option", attr.Name)
			}
			for _, opt := range attr.Options {
				data.OptionData = append(data.OptionData, opt.Value)
			}
		}
		out = append(out, data)
	}
	return out, nil
}

func ontologyToData(ont Ontology) (*ontologyData, error) {
	data := &ontologyData{
		Name:      ont.Name,
		ImageType: ont.ImageType,
		PcdType:   ont.PcdType,
	}
	// Auto-assigned ranks count up from 1 but skip ranks the caller
	// assigned explicitly, so a mix of ranked and unranked classes
	// never collides.
	used := map[int]bool{}
	for _, cls := range ont.Classes {
		if cls.Rank != 0 {
			used[cls.Rank] = true
		}
	}
	rank := 1
	for _, cls := range ont.Classes {
		if err := checkClassColor(cls.Color); err != nil {
			return nil, fmt.Errorf("class %q: %w", cls.Name, err)
		}
		clsData := ontologyClassData{Name: cls.Name, Color: cls.Color, Rank: cls.Rank}
		if clsData.Rank == 0 {
			for used[rank] {
				rank++
			}
			clsData.Rank = rank
			rank++
		}
		attrData, err := attributesToData(cls.Attributes)
		if err != nil {
			return nil, fmt.Errorf("class %q: %w", cls.Name, err)
		}
		clsData.AttributeData = attrData
		data.OntologyClassesData = append(data.OntologyClassesData, clsData)
	}
	return data, nil
}

// CreateProjectOptions are the arguments to CreateProject.
type CreateProjectOptions struct {
	Name        string
	Ontology    Ontology
	Sensors     []Sensor
	ProjectTag  *ProjectTag
	Description string
}

// CreateProject creates a project from the given ontology and
// sensors, and returns the server's project record.
//
// Client-side ids in the ontology are ignored; the server assigns its
// own. Classes without an explicit rank are ranked sequentially
// starting at 1, skipping any ranks assigned explicitly.
func (c *Client) CreateProject(ctx context.Context, opts CreateProjectOptions) (Project, error) {
	var project Project
	ontData, err := ontologyToData(opts.Ontology)
	if err != nil {
		return project, fmt.Errorf("invalid ontology: %w", err)
	}
	tagData := &projectTagData{}
	if opts.ProjectTag != nil {
		attrData, err := attributesToData(opts.ProjectTag.Attributes)
		if err != nil {
			return project, fmt.Errorf("invalid project tag: %w", err)
		}
		tagData.AttributeData = attrData
	}
	err = c.RequestAndDecodeContext(ctx, &project, "POST", "api/projects/", nil, map[string]interface{}{
		"name":             opts.Name,
		"ontology_data":    ontData,
		"sensor_data":      opts.Sensors,
		"project_tag_data": tagData,
		"description":      opts.Description,
	})
	return project, err
}

// GetProject returns the project record with the given id.
func (c *Client) GetProject(ctx context.Context, projectID int) (Project, error) {
	var project Project
	err := c.RequestAndDecodeContext(ctx, &project, "GET", fmt.Sprintf("api/projects/%d/", projectID), nil, nil)
	return project, err
}

// ListProjectsOptions restrict the results of ListProjects.
type ListProjectsOptions struct {
	// Only list projects belonging to the current user.
	CurrentUser bool
	// Exclude projects that use the given sensor type.
	ExcludeSensorType SensorType
	// Only list projects whose ontology has the given image type.
	ImageType OntologyImageType
}

// ListProjects lists projects visible to the current credentials,
// subject to the given filters.
func (c *Client) ListProjects(ctx context.Context, opts ListProjectsOptions) ([]Project, error) {
	query := url.Values{}
	if opts.CurrentUser {
		query.Set("current_user", "true")
	}
	if opts.ExcludeSensorType != "" {
		query.Set("exclude_sensor_type", string(opts.ExcludeSensorType))
	}
	if opts.ImageType != "" {
		query.Set("ontology__image_type", string(opts.ImageType))
	}
	var resp struct {
		Results []Project `json:"results"`
	}
	err := c.RequestAndDecodeContext(ctx, &resp, "GET", "api/projects/", query, nil)
	return resp.Results, err
}

// EditProjectOptions are the fields EditProject can change. Nil/empty
// fields are left untouched on the server.
type EditProjectOptions struct {
	Name        string
	Description string
	Ontology    *Ontology
	ProjectTag  *ProjectTag
}

// EditProject updates the given fields of an existing project.
func (c *Client) EditProject(ctx context.Context, projectID int, opts EditProjectOptions) (Project, error) {
	var project Project
	payload := map[string]interface{}{}
	if opts.Name != "" {
		payload["name"] = opts.Name
	}
	if opts.Description != "" {
		payload["description"] = opts.Description
	}
	if opts.Ontology != nil {
		ontData, err := ontologyToData(*opts.Ontology)
		if err != nil {
			return project, fmt.Errorf("invalid ontology: %w", err)
		}
		payload["ontology_data"] = ontData
	}
	if opts.ProjectTag != nil {
		attrData, err := attributesToData(opts.ProjectTag.Attributes)
		if err != nil {
			return project, fmt.Errorf("invalid project tag: %w", err)
		}
		payload["project_tag_data"] = &projectTagData{AttributeData: attrData}
	}
	err := c.RequestAndDecodeContext(ctx, &project, "PATCH", fmt.Sprintf("api/projects/%d/", projectID), nil, payload)
	return project, err
}

// OntologyClassAlias maps an ontology class to alternate names.
type OntologyClassAlias struct {
	ClassID int      `json:"id"`
	Aliases []string `json:"aliases"`
}

// UpdateAliases upserts alternate names for the project's ontology
// classes in bulk.
func (c *Client) UpdateAliases(ctx context.Context, projectID int, aliases []OntologyClassAlias) error {
	return c.RequestAndDecodeContext(ctx, nil, "POST", fmt.Sprintf("api/projects/%d/bulk-upsert-alias/", projectID), nil, aliases)
}

// VQAQuestion is one question/answer pair in a visual question
// answering ontology.
type VQAQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

// CreateVQAProjectOptions are the arguments to CreateVQAProject.
type CreateVQAProjectOptions struct {
	Name           string        `json:"name"`
	SensorName     string        `json:"sensor_name"`
	OntologyName   string        `json:"ontology_name"`
	QuestionAnswer []VQAQuestion `json:"question_answer"`
	Description    string        `json:"description,omitempty"`
}

// CreateVQAProject creates a visual-question-answering project.
func (c *Client) CreateVQAProject(ctx context.Context, opts CreateVQAProjectOptions) (Project, error) {
	var project Project
	err := c.RequestAndDecodeContext(ctx, &project, "POST", "api/projects/vqa/", nil, opts)
	return project, err
}

// EditVQAOntologyOptions are the arguments to EditVQAOntology.
type EditVQAOntologyOptions struct {
	QuestionAnswer []VQAQuestion `json:"question_answer"`
}

// EditVQAOntology updates (or creates) the VQA ontology of an
// existing VQA project.
func (c *Client) EditVQAOntology(ctx context.Context, projectID int, opts EditVQAOntologyOptions) (Project, error) {
	var project Project
	err := c.RequestAndDecodeContext(ctx, &project, "POST", fmt.Sprintf("api/projects/%d/update-or-create-vqa-ontology/", projectID), nil, opts)
	return project, err
}

// cachedProject returns the project record with the given id,
// consulting/filling a small in-process cache. Dataset and model
// lookups hydrate their project reference through here so that
// fetching many records from one project costs one project request.
func (c *Client) cachedProject(ctx context.Context, projectID int) (Project, error) {
	c.projectsOnce.Do(func() {
		c.projects, _ = lru.New(64)
	})
	key := strconv.Itoa(projectID)
	if cached, ok := c.projects.Get(key); ok {
		return cached.(Project), nil
	}
	project, err := c.GetProject(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	c.projects.Add(key, project)
	return project, nil
}
