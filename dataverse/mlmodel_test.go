// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&MLModelSuite{})

type MLModelSuite struct{}

func modelTestServer(c *check.C) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ml_models/", func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.URL.Query().Get("project"), check.Equals, "7")
		c.Check(r.URL.Query().Get("type"), check.Equals, "trained")
		w.Write([]byte(`{"results":[{"id":3,"name":"detector"}]}`))
	})
	mux.HandleFunc("/api/ml_models/3/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":3,"name":"detector","project":{"id":7},
			"classes":[{"id":21},{"id":23}],
			"convert_record":{"id":99,"status":"done"}}`))
	})
	mux.HandleFunc("/api/ml_models/4/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":4,"name":"unconverted","project":{"id":7},"classes":[{"id":21}]}`))
	})
	mux.HandleFunc("/api/projects/7/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":7,"name":"roadside","ontology":{"id":1,"name":"ont","classes":[
			{"id":21,"name":"person","color":"#ff0000","rank":1},
			{"id":22,"name":"truck","color":"#00ff00","rank":2},
			{"id":23,"name":"car","color":"#0000ff","rank":3}]}}`))
	})
	mux.HandleFunc("/api/convert_record/99/label/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("person\ncar\n"))
	})
	mux.HandleFunc("/api/convert_record/99/model-observ/", func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.URL.Query().Get("triton"), check.Equals, "true")
		w.Write([]byte("triton package bytes"))
	})
	return httptest.NewServer(mux)
}

func (s *MLModelSuite) TestListMLModels(c *check.C) {
	srv := modelTestServer(c)
	defer srv.Close()
	client := newTestClient(srv)

	models, err := client.ListMLModels(context.Background(), 7)
	c.Assert(err, check.IsNil)
	c.Assert(models, check.HasLen, 1)
	c.Check(models[0].Name, check.Equals, "detector")
}

func (s *MLModelSuite) TestGetMLModelResolvesClasses(c *check.C) {
	srv := modelTestServer(c)
	defer srv.Close()
	client := newTestClient(srv)

	model, err := client.GetMLModel(context.Background(), 3)
	c.Assert(err, check.IsNil)
	c.Check(model.Project.Name, check.Equals, "roadside")
	// The model's bare class ids are replaced with the matching
	// ontology records.
	c.Assert(model.Classes, check.HasLen, 2)
	c.Check(model.Classes[0].Name, check.Equals, "person")
	c.Check(model.Classes[0].Color, check.Equals, "#ff0000")
	c.Check(model.Classes[1].Name, check.Equals, "car")
}

func (s *MLModelSuite) TestGetLabelFile(c *check.C) {
	srv := modelTestServer(c)
	defer srv.Close()
	client := newTestClient(srv)

	body, err := client.GetLabelFile(context.Background(), 3)
	c.Assert(err, check.IsNil)
	defer body.Close()
	buf, err := io.ReadAll(body)
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, "person\ncar\n")
}

func (s *MLModelSuite) TestGetTritonModelFile(c *check.C) {
	srv := modelTestServer(c)
	defer srv.Close()
	client := newTestClient(srv)

	body, err := client.GetTritonModelFile(context.Background(), 3)
	c.Assert(err, check.IsNil)
	defer body.Close()
	buf, err := io.ReadAll(body)
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, "triton package bytes")
}

func (s *MLModelSuite) TestArtifactsWithoutConvertRecord(c *check.C) {
	srv := modelTestServer(c)
	defer srv.Close()
	client := newTestClient(srv)

	_, err := client.GetLabelFile(context.Background(), 4)
	c.Check(err, check.ErrorMatches, "model has no convert record")
	_, err = client.GetTritonModelFile(context.Background(), 4)
	c.Check(err, check.ErrorMatches, "model has no convert record")
}
