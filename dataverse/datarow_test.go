// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&DatarowSuite{})

type DatarowSuite struct{}

func (s *DatarowSuite) TestStringInt(c *check.C) {
	var d Datarow
	err := json.Unmarshal([]byte(`{"id":1,"frame_id":"000012"}`), &d)
	c.Assert(err, check.IsNil)
	c.Check(int(d.FrameID), check.Equals, 12)

	err = json.Unmarshal([]byte(`{"id":1,"frame_id":3}`), &d)
	c.Assert(err, check.IsNil)
	c.Check(int(d.FrameID), check.Equals, 3)

	err = json.Unmarshal([]byte(`{"id":1,"frame_id":null}`), &d)
	c.Assert(err, check.IsNil)
	c.Check(int(d.FrameID), check.Equals, 0)

	err = json.Unmarshal([]byte(`{"id":1,"frame_id":"twelve"}`), &d)
	c.Check(err, check.ErrorMatches, `invalid integer "twelve".*`)

	buf, err := json.Marshal(StringInt(7))
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, "7")
}

// pagedHandler serves rows with ids 1..nrows using id__gt cursor
// pagination, recording each request's query.
func pagedHandler(c *check.C, nrows int, queries *[]map[string][]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*queries = append(*queries, r.URL.Query())
		idGt, err := strconv.Atoi(r.URL.Query().Get("id__gt"))
		c.Assert(err, check.IsNil)
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		c.Assert(err, check.IsNil)
		c.Check(r.URL.Query().Get("order_by"), check.Equals, "id")
		var rows []map[string]interface{}
		for id := idGt + 1; id <= nrows && len(rows) < limit; id++ {
			rows = append(rows, map[string]interface{}{"id": id})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"results": rows})
	}
}

func (s *DatarowSuite) TestEachDatarowPage(c *check.C) {
	var queries []map[string][]string
	srv := httptest.NewServer(pagedHandler(c, 5, &queries))
	defer srv.Close()
	client := newTestClient(srv)

	var got []int
	var pages int
	err := client.EachDatarowPage(context.Background(), ListDatarowsOptions{
		DatasliceIDs: []int{42},
		Fields:       "id,items",
		BatchSize:    2,
	}, func(rows []Datarow) error {
		pages++
		for _, row := range rows {
			got = append(got, row.ID)
		}
		return nil
	})
	c.Assert(err, check.IsNil)
	c.Check(got, check.DeepEquals, []int{1, 2, 3, 4, 5})
	c.Check(pages, check.Equals, 3)
	// 3 full/partial pages plus the empty page that ends the walk.
	c.Assert(queries, check.HasLen, 4)
	c.Check(queries[0]["dataslice_set"], check.DeepEquals, []string{"42"})
	c.Check(queries[0]["fields"], check.DeepEquals, []string{"id,items"})
	c.Check(queries[0]["id__gt"], check.DeepEquals, []string{"0"})
	c.Check(queries[1]["id__gt"], check.DeepEquals, []string{"2"})
	c.Check(queries[2]["id__gt"], check.DeepEquals, []string{"4"})
}

func (s *DatarowSuite) TestEachDatarowPageByIDs(c *check.C) {
	var idSets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idSet := r.URL.Query().Get("id_set")
		if r.URL.Query().Get("id__gt") != "0" {
			w.Write([]byte(`{"results":[]}`))
			return
		}
		idSets = append(idSets, idSet)
		var rows []map[string]interface{}
		for _, s := range strings.Split(idSet, ",") {
			id, err := strconv.Atoi(s)
			c.Assert(err, check.IsNil)
			rows = append(rows, map[string]interface{}{"id": id})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"results": rows})
	}))
	defer srv.Close()
	client := newTestClient(srv)

	err := client.EachDatarowPage(context.Background(), ListDatarowsOptions{
		IDs:       []int{1, 2, 3, 4, 5},
		BatchSize: 2,
	}, func(rows []Datarow) error { return nil })
	c.Assert(err, check.IsNil)
	// The id list is chunked into batch-sized id_set queries.
	c.Check(idSets, check.DeepEquals, []string{"1,2", "3,4", "5"})
}

func (s *DatarowSuite) TestEachDatarowPageCallbackError(c *check.C) {
	var queries []map[string][]string
	srv := httptest.NewServer(pagedHandler(c, 10, &queries))
	defer srv.Close()
	client := newTestClient(srv)

	err := client.EachDatarowPage(context.Background(), ListDatarowsOptions{
		DatasliceIDs: []int{42},
		BatchSize:    3,
	}, func(rows []Datarow) error {
		return fmt.Errorf("stop here")
	})
	c.Check(err, check.ErrorMatches, "stop here")
	c.Check(queries, check.HasLen, 1)
}

func (s *DatarowSuite) TestEachFlatParentPage(c *check.C) {
	var queries []map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.URL.Path, check.Equals, "/api/datarows/flat-parent/")
		pagedHandler(c, 2, &queries)(w, r)
	}))
	defer srv.Close()
	client := newTestClient(srv)

	var got []int
	err := client.EachFlatParentPage(context.Background(), ListFlatParentOptions{
		DatasliceID: 42,
		Type:        "image",
		Fields:      "id,sequence_datarow_id,frame_datarow_id",
	}, func(rows []Datarow) error {
		for _, row := range rows {
			got = append(got, row.ID)
		}
		return nil
	})
	c.Assert(err, check.IsNil)
	c.Check(got, check.DeepEquals, []int{1, 2})
	c.Assert(len(queries) > 0, check.Equals, true)
	c.Check(queries[0]["dataslice_id"], check.DeepEquals, []string{"42"})
	c.Check(queries[0]["type"], check.DeepEquals, []string{"image"})
	c.Check(queries[0]["fields"], check.DeepEquals, []string{"id,sequence_datarow_id,frame_datarow_id"})
}
