// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// package cmd defines a RunFunc type, representing a process that can
// be invoked from a command line.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"
)

// Version is the released version string. It is set at build time
// with -ldflags "-X github.com/linkervision/dataverse-sdk-go/lib/cmd.Version=...".
var Version = "dev"

// A RunFunc runs a command with the given args, and returns an exit
// code.
type RunFunc func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int

// Multi returns a RunFunc that looks up its first argument in m, and
// invokes the resulting RunFunc with the remaining args.
//
// Example:
//
//	os.Exit(Multi(map[string]RunFunc{
//	        "foobar": func(prog string, args []string) int {
//	                fmt.Println(args[0])
//	                return 2
//	        },
//	})("/usr/bin/multi", []string{"foobar", "baz"}))
//
// ...prints "baz" and exits 2.
func Multi(m map[string]RunFunc) RunFunc {
	return func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		if len(args) < 1 {
			fmt.Fprintf(stderr, "usage: %s command [args]\n", prog)
			multiUsage(stderr, m)
			return 2
		}
		if cmd, ok := m[args[0]]; !ok {
			fmt.Fprintf(stderr, "unrecognized command %q\n", args[0])
			multiUsage(stderr, m)
			return 2
		} else {
			return cmd(prog+" "+args[0], args[1:], stdin, stdout, stderr)
		}
	}
}

func multiUsage(stderr io.Writer, m map[string]RunFunc) {
	var subcommands []string
	for sc := range m {
		if strings.HasPrefix(sc, "-") {
			// Some subcommands have alternate versions
			// like "--version" for compatibility. Don't
			// clutter the subcommand summary with those.
			continue
		}
		subcommands = append(subcommands, sc)
	}
	sort.Strings(subcommands)
	fmt.Fprintf(stderr, "\nAvailable commands:\n")
	for _, sc := range subcommands {
		fmt.Fprintf(stderr, "    %s\n", sc)
	}
}

// VersionCommand is a RunFunc that prints the build version and go
// runtime version.
func VersionCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	prog = strings.TrimSuffix(prog, " version")
	fmt.Fprintf(stdout, "%s %s (%s)\n", prog, Version, runtime.Version())
	return 0
}

// A FlagSet is the part of flag.FlagSet that ParseFlags needs.
type FlagSet interface {
	Init(string, flag.ErrorHandling)
	Args() []string
	NArg() int
	Parse([]string) error
	SetOutput(io.Writer)
	PrintDefaults()
}
