package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture is a fake calibre installation plus a configuration file. The
// fake binaries append their arguments to calls.log.
type fixture struct {
	dir        string
	calibreDir string
	downloads  string
	configPath string
	callsLog   string
}

type fixtureOpts struct {
	recipients  string
	keep        bool
	convertExit int
	failFor     string
	extra       string
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake calibre binaries are POSIX shell scripts")
	}

	dir := t.TempDir()
	f := &fixture{
		dir:        dir,
		calibreDir: filepath.Join(dir, "calibre"),
		downloads:  filepath.Join(dir, "downloads"),
		configPath: filepath.Join(dir, "kindleMorningPaper.cfg"),
		callsLog:   filepath.Join(dir, "calls.log"),
	}
	require.NoError(t, os.MkdirAll(f.calibreDir, 0o755))

	convert := fmt.Sprintf(`#!/bin/sh
echo "ebook-convert $1 $2" >> %q
if [ %d -ne 0 ]; then
  echo "Failed to download recipe" >&2
  exit %d
fi
echo "mobi" > "$2"
echo "Output saved to $2"
`, f.callsLog, opts.convertExit, opts.convertExit)

	smtp := fmt.Sprintf(`#!/bin/sh
echo "calibre-smtp ${14}" >> %q
if [ "${14}" = %q ]; then
  echo "SMTP error" >&2
  exit 1
fi
[ -f "${12}" ] || exit 2
`, f.callsLog, opts.failFor)

	require.NoError(t, os.WriteFile(filepath.Join(f.calibreDir, "ebook-convert"), []byte(convert), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.calibreDir, "calibre-smtp"), []byte(smtp), 0o755))

	keep := "False"
	if opts.keep {
		keep = "True"
	}
	cfg := fmt.Sprintf(`[calibre]
tempDownloadDir = %s
path = %s
recipe = news.recipe
keepMobiFile = %s

[mailserver]
host = smtp.example.com
username = paper@example.com
password = topsecret
port = 587

[kindle]
mail = %s
%s`, f.downloads, f.calibreDir, keep, opts.recipients, opts.extra)
	require.NoError(t, os.WriteFile(f.configPath, []byte(cfg), 0o600))
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	base := []string{
		"--config", f.configPath,
		"--secrets-dir", filepath.Join(f.dir, "no-secrets"),
		"--env-file", filepath.Join(f.dir, "no.env"),
	}
	code := execute(context.Background(), newApp(&stdout, &stderr), append(base, args...))
	return code, stdout.String(), stderr.String()
}

func (f *fixture) calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.callsLog)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func (f *fixture) outputs(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.downloads, "morningPaper_*.mobi"))
	require.NoError(t, err)
	return matches
}

func TestMissingConfigExitsOne(t *testing.T) {
	f := newFixture(t, fixtureOpts{recipients: "a@x.com"})
	f.configPath = filepath.Join(f.dir, "missing.cfg")

	code, _, stderr := f.run(t)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "ERROR:")
	assert.Contains(t, stderr, "config file does not exist")
	assert.Empty(t, f.calls(t), "no external tool may run without configuration")
}

func TestDeliverTwoRecipients(t *testing.T) {
	f := newFixture(t, fixtureOpts{recipients: "a@x.com, b@y.com"})

	code, _, stderr := f.run(t, "-v")
	require.Equal(t, 0, code, stderr)

	calls := f.calls(t)
	require.Len(t, calls, 3)
	assert.True(t, strings.HasPrefix(calls[0], "ebook-convert news.recipe "+filepath.Join(f.downloads, "morningPaper_")), calls[0])
	assert.Equal(t, []string{"calibre-smtp a@x.com", "calibre-smtp b@y.com"}, calls[1:])
	assert.Empty(t, f.outputs(t), "output file is removed when keepMobiFile is false")
	assert.Equal(t, 2, strings.Count(stderr, "successfully sent"))
	assert.Equal(t, 1, strings.Count(stderr, "INFO: Morning papers sent"))
	assert.NotContains(t, stderr, "topsecret")
}

func TestConversionFailureExitsOne(t *testing.T) {
	f := newFixture(t, fixtureOpts{recipients: "a@x.com", convertExit: 1})

	code, _, stderr := f.run(t)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Couldn't download RSS feeds")
	assert.Equal(t, 1, strings.Count(stderr, "ERROR:"), "the failure is logged once")

	calls := f.calls(t)
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0], "ebook-convert"))
}

func TestFailedRecipientDoesNotAbort(t *testing.T) {
	f := newFixture(t, fixtureOpts{recipients: "a@x.com, b@y.com, c@z.com", failFor: "b@y.com"})

	code, _, stderr := f.run(t)
	assert.Equal(t, 0, code, "partial delivery failures do not change the exit status")
	assert.Equal(t, []string{"calibre-smtp a@x.com", "calibre-smtp b@y.com", "calibre-smtp c@z.com"}, f.calls(t)[1:])
	assert.Contains(t, stderr, "ERROR: Error sending the paper to b@y.com")
	assert.Contains(t, stderr, "INFO: Morning papers sent")
	assert.Empty(t, f.outputs(t))
}

func TestKeepMobiFile(t *testing.T) {
	f := newFixture(t, fixtureOpts{recipients: "a@x.com", keep: true})

	code, _, stderr := f.run(t)
	require.Equal(t, 0, code, stderr)
	assert.Len(t, f.outputs(t), 1)
}

func TestHistoryRecordsRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	f := newFixture(t, fixtureOpts{
		recipients: "a@x.com, b@y.com",
		failFor:    "b@y.com",
		extra:      "\n[history]\ndatabase = " + db + "\n",
	})

	code, _, stderr := f.run(t)
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := f.run(t, "history")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "1/2 delivered")
	assert.Contains(t, stdout, "failed: b@y.com")

	code, stdout, stderr = f.run(t, "history", "--yaml")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "outcome: sent")
	assert.Contains(t, stdout, "recipient: a@x.com")
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, fixtureOpts{recipients: "a@x.com"})

	code, _, stderr := f.run(t, "history")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "run history is not enabled")
}

func TestCheck(t *testing.T) {
	f := newFixture(t, fixtureOpts{recipients: "a@x.com, b@y.com"})

	code, stdout, stderr := f.run(t, "check")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, filepath.Join(f.calibreDir, "ebook-convert"))
	assert.Contains(t, stdout, "recipients:    a@x.com, b@y.com")
	assert.NotContains(t, stdout, "topsecret")
	assert.Empty(t, f.calls(t), "check never runs calibre")
}

func TestVersion(t *testing.T) {
	f := newFixture(t, fixtureOpts{recipients: "a@x.com"})

	code, stdout, _ := f.run(t, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "morning-paper dev\n", stdout)
}

func TestUnknownArgument(t *testing.T) {
	f := newFixture(t, fixtureOpts{recipients: "a@x.com"})

	code, _, _ := f.run(t, "surprise")
	assert.Equal(t, 1, code)
	assert.Empty(t, f.calls(t))
}
