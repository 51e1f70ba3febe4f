// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package calibre

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/morning-paper/pkg/types"
)

// fakeExit mimics *exec.ExitError.
type fakeExit struct{ code int }

func (e fakeExit) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e fakeExit) ExitCode() int { return e.code }

type call struct {
	name string
	args []string
}

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	calls  []call
	stdout string
	stderr string
	err    error
}

func (m *mockExecutor) Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	m.calls = append(m.calls, call{name: name, args: args})
	_, _ = io.WriteString(stdout, m.stdout)
	_, _ = io.WriteString(stderr, m.stderr)
	return m.err
}

func testConfig() types.Config {
	return types.Config{
		Calibre: types.CalibreConfig{Path: "/opt/calibre"},
		MailServer: types.MailServerConfig{
			Host:     "smtp.example.com",
			Username: "paper@example.com",
			Password: "pw",
			Port:     587,
		},
	}
}

func TestConvertInvocation(t *testing.T) {
	m := &mockExecutor{stdout: "Output saved to /tmp/out.mobi\n"}
	c := newCLI(testConfig(), m)

	res, err := c.Convert(context.Background(), "news.recipe", "/tmp/out.mobi")
	require.NoError(t, err)

	require.Len(t, m.calls, 1)
	assert.Equal(t, "/opt/calibre/ebook-convert", m.calls[0].name)
	assert.Equal(t, []string{"news.recipe", "/tmp/out.mobi"}, m.calls[0].args)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "Output saved")
}

func TestSendInvocation(t *testing.T) {
	m := &mockExecutor{}
	c := newCLI(testConfig(), m)

	_, err := c.Send(context.Background(), "/tmp/out.mobi", "kindle@example.com")
	require.NoError(t, err)

	require.Len(t, m.calls, 1)
	assert.Equal(t, "/opt/calibre/calibre-smtp", m.calls[0].name)
	assert.Equal(t, []string{
		"-r", "smtp.example.com",
		"-p", "pw",
		"-e", "TLS",
		"-u", "paper@example.com",
		"--port", "587",
		"-a", "/tmp/out.mobi",
		"paper@example.com",
		"kindle@example.com",
		"",
	}, m.calls[0].args)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		stderr   string
		wantCode int
		wantExit bool
		wantMsg  string
	}{
		{
			name:     "non-zero exit",
			err:      fakeExit{code: 2},
			stderr:   "Traceback...\nValueError: recipe not found\n",
			wantCode: 2,
			wantExit: true,
			wantMsg:  "ebook-convert exited with status 2: ValueError: recipe not found",
		},
		{
			name:     "binary missing",
			err:      errors.New("fork/exec /opt/calibre/ebook-convert: no such file or directory"),
			wantCode: -1,
			wantMsg:  "running ebook-convert",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockExecutor{err: tt.err, stderr: tt.stderr}
			c := newCLI(testConfig(), m)

			res, err := c.Convert(context.Background(), "r", "o")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, res.ExitCode)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var exitErr *ExitError
			assert.Equal(t, tt.wantExit, errors.As(err, &exitErr))
		})
	}
}

func TestRunCancelledContext(t *testing.T) {
	m := &mockExecutor{err: fakeExit{code: -1}}
	c := newCLI(testConfig(), m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Send(ctx, "o", "r@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, -1, res.ExitCode)
}

func TestOSExecutorRunsRealBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture requires a POSIX shell")
	}
	dir := t.TempDir()
	script := "#!/bin/sh\necho \"converted $1\" > \"$2\"\necho done\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ebook-convert"), []byte(script), 0o755))

	cfg := testConfig()
	cfg.Calibre.Path = dir
	out := filepath.Join(dir, "paper.mobi")

	res, err := New(cfg).Convert(context.Background(), "news.recipe", out)
	require.NoError(t, err)
	assert.Equal(t, "done\n", res.Stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "converted news.recipe\n", string(data))
}

func TestOSExecutorExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture requires a POSIX shell")
	}
	dir := t.TempDir()
	script := "#!/bin/sh\necho 'SMTP auth failed' >&2\nexit 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calibre-smtp"), []byte(script), 0o755))

	cfg := testConfig()
	cfg.Calibre.Path = dir

	res, err := New(cfg).Send(context.Background(), "paper.mobi", "k@example.com")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, exitErr.Error(), "SMTP auth failed")
}

func TestOSExecutorTimeoutKillsWorkers(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture requires a POSIX shell")
	}
	dir := t.TempDir()
	script := "#!/bin/sh\nsleep 8 &\nsleep 8\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ebook-convert"), []byte(script), 0o755))

	cfg := testConfig()
	cfg.Calibre.Path = dir

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := New(cfg).Convert(ctx, "news.recipe", filepath.Join(dir, "out.mobi"))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, elapsed, 4*time.Second, "background workers must not hold the call open")
}
