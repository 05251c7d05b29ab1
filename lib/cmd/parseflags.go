// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"flag"
	"fmt"
	"io"
)

// ParseFlags parses args with f, writing usage and error messages to
// stderr.
//
// positional describes the positional arguments the caller accepts,
// for the "Usage: {prog} [options] {positional}" line. Pass "" if the
// caller accepts none; any leftover args are then a usage error.
//
// ok reports whether the caller should proceed. When ok is false,
// exitCode is the status to exit with: 0 after -help, 2 on a usage
// error.
func ParseFlags(f FlagSet, prog string, args []string, positional string, stderr io.Writer) (ok bool, exitCode int) {
	f.Init(prog, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	switch err := f.Parse(args); {
	case err == flag.ErrHelp:
		fmt.Fprintf(stderr, "Usage: %s [options] %s\n", prog, positional)
		f.SetOutput(stderr)
		f.PrintDefaults()
		return false, 0
	case err != nil:
		fmt.Fprintf(stderr, "error parsing command line arguments: %s (try -help)\n", err)
		return false, 2
	case f.NArg() > 0 && positional == "":
		fmt.Fprintf(stderr, "unrecognized command line arguments: %v (try -help)\n", f.Args())
		return false, 2
	default:
		return true, 0
	}
}
