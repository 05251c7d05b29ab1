// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/linkervision/dataverse-sdk-go/lib/cmd"
)

var handler = cmd.Multi(map[string]cmd.RunFunc{
	"version":   cmd.VersionCommand,
	"-version":  cmd.VersionCommand,
	"--version": cmd.VersionCommand,

	"login":      loginCommand,
	"whoami":     whoamiCommand,
	"projects":   projectsCommand,
	"datasets":   datasetsCommand,
	"dataslices": dataslicesCommand,
	"models":     modelsCommand,
	"export":     exportCommand,
	"import":     importCommand,
})

func main() {
	os.Exit(handler(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
