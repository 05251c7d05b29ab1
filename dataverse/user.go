// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dataverse

import "context"

// User is a dataverse#user record.
type User struct {
	ID    int    `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// CurrentUser returns the User record corresponding to this client's
// credentials.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	err := c.RequestAndDecodeContext(ctx, &u, "GET", "auth/users/me/", nil, nil)
	return u, err
}
