// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&AzureContainerSuite{})

type AzureContainerSuite struct{}

func (s *AzureContainerSuite) TestNewAzureContainer(c *check.C) {
	ac, err := NewAzureContainer("devaccount", "a2V5", "media")
	c.Assert(err, check.IsNil)
	c.Check(ac.Container, check.Equals, "media")
	c.Check(ac.container, check.NotNil)
	c.Check(ac.container.Name, check.Equals, "media")
}

func (s *AzureContainerSuite) TestNewAzureContainerBadKey(c *check.C) {
	_, err := NewAzureContainer("devaccount", "not base64!", "media")
	c.Check(err, check.ErrorMatches, `connect to azure account "devaccount".*`)
}

func (s *AzureContainerSuite) TestNewAzureContainerSAS(c *check.C) {
	ac, err := NewAzureContainerSAS("https://devaccount.blob.core.windows.net", "sv=2020-08-04&sig=abc", "exports")
	c.Assert(err, check.IsNil)
	c.Check(ac.Container, check.Equals, "exports")
	c.Check(ac.container.Name, check.Equals, "exports")
}
