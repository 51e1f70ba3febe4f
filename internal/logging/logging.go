// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the console logger shared by every stage. Lines are
// written as "DD.MM.YYYY HH:MM:SS LEVEL: message" followed by any structured
// fields as key=value.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// TimeFormat is the timestamp layout at the start of every line.
const TimeFormat = "02.01.2006 15:04:05"

// New returns a logger writing to w. Verbose enables debug output; otherwise
// the level is info.
func New(w io.Writer, verbose bool) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:        zerolog.SyncWriter(w),
		NoColor:    true,
		TimeFormat: TimeFormat,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.MessageFieldName,
		},
		FormatLevel: formatLevel,
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// formatLevel renders "warn" as "WARNING:" and every other level in upper
// case followed by a colon.
func formatLevel(i interface{}) string {
	level := fmt.Sprintf("%s", i)
	if level == zerolog.LevelWarnValue {
		level = "warning"
	}
	return strings.ToUpper(level) + ":"
}
