// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&DatasetSuite{})

type DatasetSuite struct{}

func (s *DatasetSuite) TestCreateDatasetValidation(c *check.C) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Error("request should not reach the server")
	}))
	defer srv.Close()
	client := newTestClient(srv)
	ctx := context.Background()

	_, err := client.CreateDataset(ctx, CreateDatasetOptions{
		Name:       "bad",
		DataSource: "ftp",
	})
	c.Check(err, check.ErrorMatches, `data source "ftp" is not supported`)

	_, err = client.CreateDataset(ctx, CreateDatasetOptions{
		Name:       "bad",
		DataSource: DataSourceAWS,
		Type:       DatasetTypeAnnotated,
	})
	c.Check(err, check.ErrorMatches, `annotated data needs at least one annotation folder name.*`)

	_, err = client.CreateDataset(ctx, CreateDatasetOptions{
		Name:        "bad",
		DataSource:  DataSourceAWS,
		Type:        DatasetTypeRaw,
		AccessKeyID: "AKIA...",
	})
	c.Check(err, check.ErrorMatches, `need to assign both access_key_id and secret_access_key`)
}

func (s *DatasetSuite) TestCreateCloudDataset(c *check.C) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A cloud-source import runs server side: creating the
		// record is the only request.
		c.Check(r.Method, check.Equals, "POST")
		c.Check(r.URL.Path, check.Equals, "/api/datasets/")
		c.Check(json.NewDecoder(r.Body).Decode(&gotBody), check.IsNil)
		w.Write([]byte(`{"id":9,"name":"dashcam","status":"processing"}`))
	}))
	defer srv.Close()
	client := newTestClient(srv)

	ds, err := client.CreateDataset(context.Background(), CreateDatasetOptions{
		Name:             "dashcam",
		DataSource:       DataSourceAWS,
		Project:          Project{ID: 7},
		Sensors:          []Sensor{{ID: 3, Name: "camera 1", Type: SensorTypeCamera}},
		Type:             DatasetTypeAnnotated,
		AnnotationFormat: AnnotationFormatVisionAI,
		StorageURL:       "https://bucket.s3.us-east-1.amazonaws.com",
		DataFolder:       "dashcam/2026",
		Annotations:      []string{GroundTruthAnnotationName},
		AccessKeyID:      "AKIAEXAMPLE",
		SecretAccessKey:  "secret",
	})
	c.Assert(err, check.IsNil)
	c.Check(ds.ID, check.Equals, 9)
	c.Check(ds.Project.ID, check.Equals, 7)
	c.Check(ds.Sensors, check.HasLen, 1)

	c.Check(gotBody["project_id"], check.Equals, float64(7))
	c.Check(gotBody["sensor_ids"], check.DeepEquals, []interface{}{float64(3)})
	c.Check(gotBody["annotations"], check.DeepEquals, []interface{}{"groundtruth"})
	c.Check(gotBody["access_key_id"], check.Equals, "AKIAEXAMPLE")
	c.Check(gotBody["secret_access_key"], check.Equals, "secret")
	_, hasUUID := gotBody["create_dataset_uuid"]
	c.Check(hasUUID, check.Equals, false)
}

func (s *DatasetSuite) TestCreateLocalDataset(c *check.C) {
	dir := c.MkDir()
	datadir := filepath.Join(dir, "data")
	c.Assert(os.MkdirAll(filepath.Join(datadir, "sub"), 0777), check.IsNil)
	for _, name := range []string{"a.jpg", "b.jpg", filepath.Join("sub", "c.jpg")} {
		err := os.WriteFile(filepath.Join(datadir, name), []byte("image "+name), 0666)
		c.Assert(err, check.IsNil)
	}

	type uploadRequest struct {
		containerName string
		finished      bool
		files         []string
	}
	var uploads []uploadRequest
	var createBody map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/datasets/", func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.Method, check.Equals, "POST")
		c.Check(json.NewDecoder(r.Body).Decode(&createBody), check.IsNil)
		w.Write([]byte(`{"id":9,"name":"local"}`))
	})
	mux.HandleFunc("/api/datasets/9/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":9,"name":"local","client_container_name":"container-xyz"}`))
	})
	mux.HandleFunc("/api/datasets/9/upload-files/", func(w http.ResponseWriter, r *http.Request) {
		c.Assert(r.ParseMultipartForm(1<<20), check.IsNil)
		up := uploadRequest{
			containerName: r.FormValue("container_name"),
			finished:      r.FormValue("is_finished") == "true",
		}
		if r.MultipartForm != nil {
			for _, fh := range r.MultipartForm.File["files"] {
				up.files = append(up.files, fh.Filename)
			}
		}
		uploads = append(uploads, up)
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client := newTestClient(srv)

	ds, err := client.CreateDataset(context.Background(), CreateDatasetOptions{
		Name:             "local",
		DataSource:       DataSourceLocal,
		Project:          Project{ID: 7},
		Type:             DatasetTypeRaw,
		AnnotationFormat: AnnotationFormatVisionAI,
		DataFolder:       datadir,
	})
	c.Assert(err, check.IsNil)
	c.Check(ds.ClientContainerName, check.Equals, "container-xyz")

	// A local source gets a generated correlation uuid.
	uuid, _ := createBody["create_dataset_uuid"].(string)
	c.Check(uuid, check.Not(check.Equals), "")

	// One file batch plus the finishing request.
	c.Assert(uploads, check.HasLen, 2)
	c.Check(uploads[0].containerName, check.Equals, "container-xyz")
	c.Check(uploads[0].finished, check.Equals, false)
	// The multipart reader strips the file parts' path components,
	// so only the base names are visible on the receiving side.
	sort.Strings(uploads[0].files)
	c.Check(uploads[0].files, check.DeepEquals, []string{"a.jpg", "b.jpg", "c.jpg"})
	c.Check(uploads[1].finished, check.Equals, true)
	c.Check(uploads[1].files, check.HasLen, 0)
}

func (s *DatasetSuite) TestGetDatasetHydratesProject(c *check.C) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/datasets/9/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":9,"name":"dashcam","project":{"id":7}}`))
	})
	mux.HandleFunc("/api/projects/7/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":7,"name":"roadside","sensors":[{"id":3,"name":"camera 1","type":"camera"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client := newTestClient(srv)

	ds, err := client.GetDataset(context.Background(), 9)
	c.Assert(err, check.IsNil)
	c.Assert(ds.Project, check.NotNil)
	c.Check(ds.Project.Name, check.Equals, "roadside")
	c.Check(ds.Project.Sensors, check.HasLen, 1)
}

func (s *DatasetSuite) TestUpdateDataset(c *check.C) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.Method, check.Equals, "PATCH")
		c.Check(json.NewDecoder(r.Body).Decode(&gotBody), check.IsNil)
		w.Write([]byte(`{"id":9,"name":"renamed"}`))
	}))
	defer srv.Close()
	client := newTestClient(srv)

	ds, err := client.UpdateDataset(context.Background(), 9, UpdateDatasetOptions{Name: "renamed"})
	c.Assert(err, check.IsNil)
	c.Check(ds.Name, check.Equals, "renamed")
	c.Check(gotBody, check.DeepEquals, map[string]interface{}{"name": "renamed"})
}

func (s *DatasetSuite) TestGeneratePresignedURLs(c *check.C) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.URL.Path, check.Equals, "/api/datasets/upload-file-information/")
		c.Check(json.NewDecoder(r.Body).Decode(&gotBody), check.IsNil)
		w.Write([]byte(`{"url_info":[
			{"filename":"a.jpg","url":"https://storage.example/a.jpg?sig=1"},
			{"filename":"b.jpg","url":"https://storage.example/b.jpg?sig=2"}]}`))
	}))
	defer srv.Close()
	client := newTestClient(srv)

	info, err := client.GeneratePresignedURLs(context.Background(), []string{"a.jpg", "b.jpg"}, "uuid-1", DataSourceAzure)
	c.Assert(err, check.IsNil)
	c.Assert(info, check.HasLen, 2)
	c.Check(info[0].Filename, check.Equals, "a.jpg")
	c.Check(info[1].URL, check.Equals, "https://storage.example/b.jpg?sig=2")
	c.Check(gotBody["filenames"], check.DeepEquals, []interface{}{"a.jpg", "b.jpg"})
	c.Check(gotBody["create_dataset_uuid"], check.Equals, "uuid-1")
	c.Check(gotBody["data_source"], check.Equals, "azure")
}
