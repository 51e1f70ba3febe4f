// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// DefaultFormat is the document extension used when calibre.format is unset.
const DefaultFormat = "mobi"

// CalibreConfig holds the [calibre] section: where the calibre tools live
// and how the digest is produced.
type CalibreConfig struct {
	// TempDownloadDir is the directory the digest document is written to.
	TempDownloadDir string `json:"temp_download_dir" yaml:"temp_download_dir"`

	// Path is the calibre installation directory containing ebook-convert
	// and calibre-smtp.
	Path string `json:"path" yaml:"path"`

	// Recipe is the calibre recipe (file or builtin name) passed to ebook-convert.
	Recipe string `json:"recipe" yaml:"recipe"`

	// KeepFile keeps the digest on disk after sending (keepMobiFile).
	KeepFile bool `json:"keep_file" yaml:"keep_file"`

	// Format is the output extension, which also selects the calibre output
	// plugin (default "mobi").
	Format string `json:"format" yaml:"format"`

	// Timeout bounds each external tool invocation. Zero means no limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// MailServerConfig holds the [mailserver] section used by calibre-smtp.
type MailServerConfig struct {
	Host     string `json:"host" yaml:"host"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"-" yaml:"-"`
	Port     int    `json:"port" yaml:"port"`
}

// KindleConfig holds the [kindle] section.
type KindleConfig struct {
	// Recipients are the delivery addresses in configured order.
	Recipients []string `json:"recipients" yaml:"recipients"`

	// Workers is the number of concurrent calibre-smtp invocations (default 1).
	Workers int `json:"workers" yaml:"workers"`
}

// HistoryConfig holds the optional [history] section.
type HistoryConfig struct {
	// Database is the SQLite file runs are recorded in. Empty disables history.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// Config is the validated configuration for one run. It is built once at
// startup and never modified afterwards.
type Config struct {
	Calibre    CalibreConfig    `json:"calibre" yaml:"calibre"`
	MailServer MailServerConfig `json:"mailserver" yaml:"mailserver"`
	Kindle     KindleConfig     `json:"kindle" yaml:"kindle"`
	History    HistoryConfig    `json:"history" yaml:"history"`
}
