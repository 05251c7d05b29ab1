// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package connections maintains a process-wide registry of named
// Dataverse clients, so application code can refer to a configured
// backend by alias instead of passing *dataverse.Client around.
package connections

import (
	"errors"
	"fmt"
	"sync"

	"github.com/linkervision/dataverse-sdk-go/dataverse"
)

// DefaultAlias is the alias used when callers do not specify one.
const DefaultAlias = "default"

var ErrAliasExists = errors.New("connection alias already exists")

// A Registry maps aliases to configured clients. It is safe for
// concurrent use.
type Registry struct {
	mtx     sync.Mutex
	clients map[string]*dataverse.Client
}

// Add registers client under alias. If the alias is already
// registered, Add returns ErrAliasExists and leaves the existing
// client in place.
func (r *Registry) Add(alias string, client *dataverse.Client) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.clients == nil {
		r.clients = map[string]*dataverse.Client{}
	}
	if _, ok := r.clients[alias]; ok {
		return fmt.Errorf("%w: %q", ErrAliasExists, alias)
	}
	r.clients[alias] = client
	return nil
}

// Replace registers client under alias, overwriting any existing
// registration.
func (r *Registry) Replace(alias string, client *dataverse.Client) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.clients == nil {
		r.clients = map[string]*dataverse.Client{}
	}
	r.clients[alias] = client
}

// Get returns the client registered under alias.
func (r *Registry) Get(alias string) (*dataverse.Client, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	client, ok := r.clients[alias]
	if !ok {
		return nil, fmt.Errorf("no connection with alias %q: create the connection in advance", alias)
	}
	return client, nil
}

// Remove deletes the registration for alias, if any.
func (r *Registry) Remove(alias string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	delete(r.clients, alias)
}

// Aliases returns the registered aliases in unspecified order.
func (r *Registry) Aliases() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var aliases []string
	for alias := range r.clients {
		aliases = append(aliases, alias)
	}
	return aliases
}

var defaultRegistry Registry

// Add registers client in the package-level registry.
func Add(alias string, client *dataverse.Client) error {
	return defaultRegistry.Add(alias, client)
}

// Replace registers client in the package-level registry, overwriting
// any existing registration.
func Replace(alias string, client *dataverse.Client) {
	defaultRegistry.Replace(alias, client)
}

// Get returns the client registered in the package-level registry.
func Get(alias string) (*dataverse.Client, error) {
	return defaultRegistry.Get(alias)
}

// Remove deletes alias from the package-level registry.
func Remove(alias string) {
	defaultRegistry.Remove(alias)
}

// Default returns the client registered under DefaultAlias.
func Default() (*dataverse.Client, error) {
	return defaultRegistry.Get(DefaultAlias)
}
