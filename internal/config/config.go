// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads the INI configuration file into a validated
// types.Config. Values come from, in increasing precedence: the INI file,
// MORNING_PAPER_* environment variables (optionally seeded from a .env
// file), and the secrets directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/encoding/ini"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/pdiddy/morning-paper/internal/secrets"
	"github.com/pdiddy/morning-paper/pkg/types"
)

// DefaultPath is the configuration file read when --config is not given.
const DefaultPath = "kindleMorningPaper.cfg"

// EnvPrefix prefixes environment overrides, e.g. MORNING_PAPER_MAILSERVER_PASSWORD.
const EnvPrefix = "MORNING_PAPER"

// ErrConfiguration marks every failure to produce a usable configuration.
var ErrConfiguration = errors.New("configuration error")

// Options selects where configuration values are read from.
type Options struct {
	// Path is the INI file. It must exist.
	Path string

	// EnvFile is a dotenv file loaded into the environment when present.
	EnvFile string

	// SecretsDir is a directory of one-file-per-key secrets.
	SecretsDir string
}

const (
	keyTempDir   = "calibre.tempDownloadDir"
	keyPath      = "calibre.path"
	keyRecipe    = "calibre.recipe"
	keyKeepFile  = "calibre.keepMobiFile"
	keyFormat    = "calibre.format"
	keyTimeout   = "calibre.timeout"
	keyHost      = "mailserver.host"
	keyUsername  = "mailserver.username"
	keyPassword  = "mailserver.password"
	keyPort      = "mailserver.port"
	keyMail      = "kindle.mail"
	keyWorkers   = "kindle.workers"
	keyHistoryDB = "history.database"
)

var requiredKeys = []string{
	keyTempDir, keyPath, keyRecipe, keyKeepFile,
	keyHost, keyUsername, keyPassword, keyPort,
	keyMail,
}

// Load reads and validates the configuration. All problems found are
// reported together; the returned error wraps ErrConfiguration.
func Load(opts Options, log zerolog.Logger) (types.Config, error) {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return types.Config{}, fmt.Errorf("%w: loading env file %s: %v", ErrConfiguration, opts.EnvFile, err)
		}
	}

	v, err := newViper()
	if err != nil {
		return types.Config{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	v.SetConfigFile(opts.Path)
	if err := v.ReadInConfig(); err != nil {
		return types.Config{}, fmt.Errorf("%w: config file does not exist or is unreadable: %s: %v", ErrConfiguration, opts.Path, err)
	}
	log.Debug().Str("config", opts.Path).Msg("Initializing morning paper")

	if opts.SecretsDir != "" {
		s, err := secrets.Load(opts.SecretsDir, log)
		if err != nil {
			return types.Config{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if pw, ok := s[secrets.MailPassword]; ok {
			v.Set(keyPassword, pw)
		}
	}

	return decode(v)
}

func newViper() (*viper.Viper, error) {
	registry := viper.NewCodecRegistry()
	if err := registry.RegisterCodec("ini", ini.Codec{
		// Only " #" and " ;" start a comment, so passwords and paths may
		// contain either character.
		LoadOptions: ini.LoadOptions{SpaceBeforeInlineComment: true},
	}); err != nil {
		return nil, fmt.Errorf("registering ini codec: %w", err)
	}

	v := viper.NewWithOptions(viper.WithCodecRegistry(registry))
	v.SetConfigType("ini")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// decode converts the raw settings into a types.Config, collecting every
// missing or malformed key.
func decode(v *viper.Viper) (types.Config, error) {
	var problems []error
	for _, key := range requiredKeys {
		if !v.IsSet(key) || strings.TrimSpace(v.GetString(key)) == "" {
			problems = append(problems, fmt.Errorf("missing required key %s", key))
		}
	}

	cfg := types.Config{
		Calibre: types.CalibreConfig{
			TempDownloadDir: v.GetString(keyTempDir),
			Path:            v.GetString(keyPath),
			Recipe:          v.GetString(keyRecipe),
			Format:          strings.TrimPrefix(strings.TrimSpace(v.GetString(keyFormat)), "."),
		},
		MailServer: types.MailServerConfig{
			Host:     v.GetString(keyHost),
			Username: v.GetString(keyUsername),
			Password: v.GetString(keyPassword),
		},
		Kindle: types.KindleConfig{
			Recipients: ParseRecipients(v.GetString(keyMail)),
			Workers:    1,
		},
		History: types.HistoryConfig{
			Database: strings.TrimSpace(v.GetString(keyHistoryDB)),
		},
	}
	if cfg.Calibre.Format == "" {
		cfg.Calibre.Format = types.DefaultFormat
	}

	if raw := v.GetString(keyKeepFile); raw != "" {
		keep, err := ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", keyKeepFile, err))
		}
		cfg.Calibre.KeepFile = keep
	}

	if raw := strings.TrimSpace(v.GetString(keyPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			problems = append(problems, fmt.Errorf("%s: %q is not a valid port", keyPort, raw))
		}
		cfg.MailServer.Port = port
	}

	if raw := strings.TrimSpace(v.GetString(keyTimeout)); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			problems = append(problems, fmt.Errorf("%s: %q is not a valid duration", keyTimeout, raw))
		}
		cfg.Calibre.Timeout = d
	}

	if raw := strings.TrimSpace(v.GetString(keyWorkers)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			problems = append(problems, fmt.Errorf("%s: %q must be a positive integer", keyWorkers, raw))
		}
		cfg.Kindle.Workers = n
	}

	if v.GetString(keyMail) != "" && len(cfg.Kindle.Recipients) == 0 {
		problems = append(problems, fmt.Errorf("%s: no recipient addresses", keyMail))
	}

	if len(problems) > 0 {
		return types.Config{}, fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(problems...))
	}
	return cfg, nil
}

// ParseRecipients splits a comma-separated address list, trimming spaces
// and dropping empty entries. Order is preserved.
func ParseRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// ParseBool accepts the INI boolean spellings 1/yes/true/on and
// 0/no/false/off, case-insensitively.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "true", "on":
		return true, nil
	case "0", "no", "false", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}
