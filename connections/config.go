// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package connections

import (
	"context"
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/linkervision/dataverse-sdk-go/dataverse"
)

// A Profile holds the connection settings for one backend, as they
// appear in a profiles file.
type Profile struct {
	Host        string `json:"Host"`
	Email       string `json:"Email"`
	Password    string `json:"Password"`
	AccessToken string `json:"AccessToken"`
	ServiceID   string `json:"ServiceID"`
	Insecure    bool   `json:"Insecure"`
}

// Client builds a client from the profile. If the profile has no
// access token but does have credentials, Client logs in to obtain
// one.
func (p Profile) Client(ctx context.Context) (*dataverse.Client, error) {
	client, err := dataverse.NewClient(p.Host)
	if err != nil {
		return nil, err
	}
	client.Email = p.Email
	client.Password = p.Password
	client.AuthToken = p.AccessToken
	client.ServiceID = p.ServiceID
	client.Insecure = p.Insecure
	if client.AuthToken == "" && client.Email != "" {
		if err := client.Login(ctx); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// LoadProfiles reads a YAML mapping of alias to Profile.
func LoadProfiles(path string) (map[string]Profile, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var profiles map[string]Profile
	if err := yaml.Unmarshal(buf, &profiles); err != nil {
		return nil, fmt.Errorf("load profiles from %s: %w", path, err)
	}
	return profiles, nil
}

// RegisterProfiles loads a profiles file and registers a client for
// each profile in the package-level registry, replacing any existing
// registrations with the same aliases.
func RegisterProfiles(ctx context.Context, path string) error {
	profiles, err := LoadProfiles(path)
	if err != nil {
		return err
	}
	for alias, profile := range profiles {
		client, err := profile.Client(ctx)
		if err != nil {
			return fmt.Errorf("profile %q: %w", alias, err)
		}
		Replace(alias, client)
	}
	return nil
}
