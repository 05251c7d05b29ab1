// Copyright (C) LinkerVision. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package ctxlog attaches a structured logger to a context.Context
// and retrieves it in lower layers, so request-scoped fields follow
// the work they describe.
package ctxlog

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

var (
	loggerCtxKey = new(int)
	rootLogger   = logrus.New()
)

const rfc3339NanoFixed = "2006-01-02T15:04:05.000000000Z07:00"

// Context returns a new child context such that FromContext(child)
// returns the given logger.
func Context(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

// FromContext returns the logger attached to the given context, if
// any, otherwise the package-level logger with no fields.
func FromContext(ctx context.Context) logrus.FieldLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerCtxKey).(logrus.FieldLogger); ok {
			return logger
		}
	}
	return rootLogger.WithFields(nil)
}

// New returns a logger with the given output, format ("json" or
// "text"), and level.
func New(out io.Writer, format, level string) *logrus.Logger {
	logger := logrus.New()
	logger.Out = out
	setFormat(logger, format)
	setLevel(logger, level)
	return logger
}

// SetLevel sets the level of the package-level logger. See logrus
// for level names.
func SetLevel(level string) {
	setLevel(rootLogger, level)
}

// SetFormat sets the format of the package-level logger to "json" or
// "text".
func SetFormat(format string) {
	setFormat(rootLogger, format)
}

func setLevel(logger *logrus.Logger, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Fatal(err)
	}
	logger.Level = lvl
}

func setFormat(logger *logrus.Logger, format string) {
	switch format {
	case "text":
		logger.Formatter = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: rfc3339NanoFixed,
		}
	case "json", "":
		logger.Formatter = &logrus.JSONFormatter{
			TimestampFormat: rfc3339NanoFixed,
		}
	default:
		logrus.WithField("LogFormat", format).Fatal("unknown log format")
	}
}

// TestLogger returns a logger suitable for tests: text format, debug
// level, writing to out.
func TestLogger(out io.Writer) *logrus.Logger {
	return New(out, "text", "debug")
}
