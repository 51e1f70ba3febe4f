// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// Each file holds one secret: the filename is the key and the trimmed file
// contents are the value. This keeps the SMTP password out of the INI file,
// which is usually world-readable next to the crontab.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// MailPassword is the key whose value replaces mailserver.password.
const MailPassword = "mailserver-password"

// Load reads all regular files in dir and returns a map of filename to
// trimmed contents. A missing directory is not an error. Dotfiles, empty
// files and subdirectories are skipped; unreadable files are logged and
// skipped.
func Load(dir string, log zerolog.Logger) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn().Err(err).Str("secret", name).Msg("could not read secret")
			continue
		}

		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}

	if len(secrets) > 0 {
		log.Debug().Int("count", len(secrets)).Str("dir", dir).Msg("loaded secrets")
	}
	return secrets, nil
}
