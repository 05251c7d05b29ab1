// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&ProjectSuite{})

type ProjectSuite struct{}

func (s *ProjectSuite) TestCreateProject(c *check.C) {
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.Method, check.Equals, "POST")
		c.Check(r.URL.Path, check.Equals, "/api/projects/")
		c.Check(json.NewDecoder(r.Body).Decode(&gotBody), check.IsNil)
		w.Write([]byte(`{"id":42,"name":"roadside"}`))
	}))
	defer srv.Close()
	client := newTestClient(srv)

	project, err := client.CreateProject(context.Background(), CreateProjectOptions{
		Name: "roadside",
		Ontology: Ontology{
			Name:      "roadside objects",
			ImageType: ImageType2DBoundingBox,
			Classes: []OntologyClass{
				{Name: "person", Color: "#ff0000"},
				{Name: "truck", Color: "#00ff00", Rank: 9, Attributes: []Attribute{
					{Name: "kind", Type: AttributeTypeOption, Options: []AttributeOption{
						{Value: "fire engine"}, {Value: "ambulance"},
					}},
				}},
				{Name: "car", Color: "#0000ff"},
			},
		},
		Sensors: []Sensor{{Name: "camera 1", Type: SensorTypeCamera}},
	})
	c.Assert(err, check.IsNil)
	c.Check(project.ID, check.Equals, 42)

	var ont ontologyData
	c.Assert(json.Unmarshal(gotBody["ontology_data"], &ont), check.IsNil)
	c.Assert(ont.OntologyClassesData, check.HasLen, 3)
	// Explicit ranks are kept, unranked classes are numbered
	// sequentially from 1.
	c.Check(ont.OntologyClassesData[0].Rank, check.Equals, 1)
	c.Check(ont.OntologyClassesData[1].Rank, check.Equals, 9)
	c.Check(ont.OntologyClassesData[2].Rank, check.Equals, 2)
	c.Check(ont.OntologyClassesData[1].AttributeData, check.HasLen, 1)
	c.Check(ont.OntologyClassesData[1].AttributeData[0].OptionData, check.DeepEquals, []interface{}{"fire engine", "ambulance"})
}

func (s *ProjectSuite) TestAutoRankSkipsExplicitRanks(c *check.C) {
	data, err := ontologyToData(Ontology{Classes: []OntologyClass{
		{Name: "person", Color: "#ff0000"},
		{Name: "car", Color: "#00ff00", Rank: 1},
	}})
	c.Assert(err, check.IsNil)
	c.Assert(data.OntologyClassesData, check.HasLen, 2)
	// The unranked class must not collide with the explicit rank.
	c.Check(data.OntologyClassesData[0].Rank, check.Equals, 2)
	c.Check(data.OntologyClassesData[1].Rank, check.Equals, 1)
}

func (s *ProjectSuite) TestCreateProjectInvalidColor(c *check.C) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Error("request should not reach the server")
	}))
	defer srv.Close()
	client := newTestClient(srv)
	_, err := client.CreateProject(context.Background(), CreateProjectOptions{
		Name: "bad",
		Ontology: Ontology{Classes: []OntologyClass{
			{Name: "person", Color: "red"},
		}},
	})
	c.Check(err, check.ErrorMatches, `invalid ontology: class "person": color must start with "#".*`)
}

func (s *ProjectSuite) TestCreateProjectEmptyOptionAttribute(c *check.C) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Error("request should not reach the server")
	}))
	defer srv.Close()
	client := newTestClient(srv)
	_, err := client.CreateProject(context.Background(), CreateProjectOptions{
		Ontology: Ontology{Classes: []OntologyClass{
			{Name: "person", Color: "#ff0000", Attributes: []Attribute{
				{Name: "pose", Type: AttributeTypeOption},
			}},
		}},
	})
	c.Check(err, check.ErrorMatches, `.*attribute "pose": option attributes need at least one option`)
}

func (s *ProjectSuite) TestListProjects(c *check.C) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"results":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}`))
	}))
	defer srv.Close()
	client := newTestClient(srv)

	projects, err := client.ListProjects(context.Background(), ListProjectsOptions{
		CurrentUser: true,
		ImageType:   ImageTypeClassification,
	})
	c.Assert(err, check.IsNil)
	c.Assert(projects, check.HasLen, 2)
	c.Check(projects[1].Name, check.Equals, "b")
	c.Check(gotQuery["current_user"], check.DeepEquals, []string{"true"})
	c.Check(gotQuery["ontology__image_type"], check.DeepEquals, []string{"classification"})
}

func (s *ProjectSuite) TestEditProjectPartialPayload(c *check.C) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.Method, check.Equals, "PATCH")
		c.Check(r.URL.Path, check.Equals, "/api/projects/7/")
		c.Check(json.NewDecoder(r.Body).Decode(&gotBody), check.IsNil)
		w.Write([]byte(`{"id":7,"name":"renamed"}`))
	}))
	defer srv.Close()
	client := newTestClient(srv)

	project, err := client.EditProject(context.Background(), 7, EditProjectOptions{Name: "renamed"})
	c.Assert(err, check.IsNil)
	c.Check(project.Name, check.Equals, "renamed")
	// Unset fields stay out of the payload.
	c.Check(gotBody, check.DeepEquals, map[string]interface{}{"name": "renamed"})
}

func (s *ProjectSuite) TestUpdateAliases(c *check.C) {
	var gotBody []OntologyClassAlias
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.URL.Path, check.Equals, "/api/projects/7/bulk-upsert-alias/")
		c.Check(json.NewDecoder(r.Body).Decode(&gotBody), check.IsNil)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	client := newTestClient(srv)

	err := client.UpdateAliases(context.Background(), 7, []OntologyClassAlias{
		{ClassID: 3, Aliases: []string{"pedestrian", "walker"}},
	})
	c.Assert(err, check.IsNil)
	c.Assert(gotBody, check.HasLen, 1)
	c.Check(gotBody[0].Aliases, check.DeepEquals, []string{"pedestrian", "walker"})
}

func (s *ProjectSuite) TestCreateVQAProject(c *check.C) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.URL.Path, check.Equals, "/api/projects/vqa/")
		var body CreateVQAProjectOptions
		c.Check(json.NewDecoder(r.Body).Decode(&body), check.IsNil)
		c.Check(body.QuestionAnswer, check.HasLen, 1)
		c.Check(body.QuestionAnswer[0].Question, check.Equals, "is the road wet?")
		w.Write([]byte(`{"id":11,"name":"vqa"}`))
	}))
	defer srv.Close()
	client := newTestClient(srv)

	project, err := client.CreateVQAProject(context.Background(), CreateVQAProjectOptions{
		Name:           "vqa",
		SensorName:     "camera 1",
		OntologyName:   "road conditions",
		QuestionAnswer: []VQAQuestion{{Question: "is the road wet?"}},
	})
	c.Assert(err, check.IsNil)
	c.Check(project.ID, check.Equals, 11)
}

func (s *ProjectSuite) TestCachedProject(c *check.C) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"id":7,"name":"cached"}`))
	}))
	defer srv.Close()
	client := newTestClient(srv)

	for i := 0; i < 3; i++ {
		project, err := client.cachedProject(context.Background(), 7)
		c.Assert(err, check.IsNil)
		c.Check(project.Name, check.Equals, "cached")
	}
	c.Check(calls, check.Equals, 1)
}
