// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package calibre invokes the two calibre command-line tools the delivery
// pipeline depends on: ebook-convert, which downloads the feeds described by
// a recipe and writes the digest document, and calibre-smtp, which mails a
// file to a single address over TLS.
package calibre

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/morning-paper/pkg/types"
)

const (
	binConvert = "ebook-convert"
	binSMTP    = "calibre-smtp"

	// encryptionTLS is the only encryption mode the mail tool is run with.
	encryptionTLS = "TLS"
)

// Tools runs the calibre binaries.
type Tools interface {
	// Convert runs ebook-convert to fetch recipe and write outputPath.
	Convert(ctx context.Context, recipe, outputPath string) (Result, error)

	// Send runs calibre-smtp to mail attachment to recipient.
	Send(ctx context.Context, attachment, recipient string) (Result, error)
}

// Result is the captured outcome of one tool invocation.
type Result struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError reports a tool that ran but exited non-zero.
type ExitError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	if s := lastLine(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// executor abstracts command execution for testing.
type executor interface {
	Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error
}

// waitDelay bounds how long Run waits for stdout/stderr to close after the
// tool was killed. ebook-convert leaves worker processes holding the pipes.
const waitDelay = 5 * time.Second

// exitCoder is satisfied by *exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (osExecutor) Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureProcess(cmd)
	cmd.Cancel = func() error {
		killProcess(cmd)
		return nil
	}
	cmd.WaitDelay = waitDelay
	err := cmd.Run()
	if errors.Is(err, exec.ErrWaitDelay) && ctx.Err() == nil {
		// The tool itself exited successfully; only a stray worker kept the pipes open.
		return nil
	}
	return err
}

// CLI implements Tools against a calibre installation directory.
type CLI struct {
	dir  string
	mail types.MailServerConfig
	exec executor
}

// New returns Tools that run the binaries under cfg.Calibre.Path and send
// through cfg.MailServer.
func New(cfg types.Config) *CLI {
	return newCLI(cfg, osExecutor{})
}

func newCLI(cfg types.Config, exec executor) *CLI {
	return &CLI{
		dir:  cfg.Calibre.Path,
		mail: cfg.MailServer,
		exec: exec,
	}
}

// ConvertPath returns the absolute location of ebook-convert.
func (c *CLI) ConvertPath() string { return filepath.Join(c.dir, binConvert) }

// SMTPPath returns the absolute location of calibre-smtp.
func (c *CLI) SMTPPath() string { return filepath.Join(c.dir, binSMTP) }

// ConvertArgs returns the ebook-convert arguments for recipe and outputPath.
func ConvertArgs(recipe, outputPath string) []string {
	return []string{recipe, outputPath}
}

// SendArgs returns the calibre-smtp arguments mailing attachment to
// recipient. The trailing empty argument is the message body.
func SendArgs(mail types.MailServerConfig, attachment, recipient string) []string {
	return []string{
		"-r", mail.Host,
		"-p", mail.Password,
		"-e", encryptionTLS,
		"-u", mail.Username,
		"--port", strconv.Itoa(mail.Port),
		"-a", attachment,
		mail.Username,
		recipient,
		"",
	}
}

func (c *CLI) Convert(ctx context.Context, recipe, outputPath string) (Result, error) {
	return c.run(ctx, c.ConvertPath(), ConvertArgs(recipe, outputPath))
}

func (c *CLI) Send(ctx context.Context, attachment, recipient string) (Result, error) {
	return c.run(ctx, c.SMTPPath(), SendArgs(c.mail, attachment, recipient))
}

// run executes bin and captures both streams. A non-zero exit yields an
// *ExitError; failing to start or a cancelled context yields a wrapped error
// with ExitCode -1.
func (c *CLI) run(ctx context.Context, bin string, args []string) (Result, error) {
	var stdout, stderr bytes.Buffer
	err := c.exec.Run(ctx, bin, args, &stdout, &stderr)

	res := Result{
		Args:   args,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return res, nil
	}

	name := filepath.Base(bin)
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("running %s: %w", name, ctxErr)
	}

	var exitErr exitCoder
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Tool: name, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	res.ExitCode = -1
	return res, fmt.Errorf("running %s: %w", name, err)
}

// lastLine returns the final non-empty line of s, which is where calibre
// prints its error summary.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
