// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package paper orchestrates one morning paper delivery: derive the output
// path, have ebook-convert produce the digest, mail it to every recipient
// with calibre-smtp, then remove the file unless configured to keep it.
//
// A conversion failure ends the run. A delivery failure is logged for that
// recipient and the remaining recipients are still attempted.
package paper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/morning-paper/internal/calibre"
	"github.com/pdiddy/morning-paper/pkg/types"
)

// TimestampFormat is the layout of the timestamp embedded in output names.
const TimestampFormat = "2006-01-02:15:04:05"

const filePrefix = "morningPaper_"

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, rec types.RunRecord) error
}

// Run identifies one delivery. It is created once and never modified.
type Run struct {
	ID         string
	StartedAt  time.Time
	Timestamp  string
	OutputPath string
}

// OutputPath returns <dir>/morningPaper_<timestamp>.<format>.
func OutputPath(dir, timestamp, format string) string {
	return filepath.Join(dir, filePrefix+timestamp+"."+format)
}

// Orchestrator runs deliveries for one configuration.
type Orchestrator struct {
	cfg      types.Config
	tools    calibre.Tools
	log      zerolog.Logger
	recorder Recorder
	now      func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder records every finished run with r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New returns an Orchestrator for cfg that invokes tools and logs to log.
func New(cfg types.Config, tools calibre.Tools, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:   cfg,
		tools: tools,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewRun stamps a new run and derives its output path.
func (o *Orchestrator) NewRun() Run {
	started := o.now()
	ts := started.Format(TimestampFormat)
	return Run{
		ID:         uuid.NewString(),
		StartedAt:  started,
		Timestamp:  ts,
		OutputPath: OutputPath(o.cfg.Calibre.TempDownloadDir, ts, o.cfg.Calibre.Format),
	}
}

// Deliver performs a complete run. The returned record is valid even when
// the error is non-nil. The only error returned is a *ConversionError;
// delivery failures are reported in the record.
func (o *Orchestrator) Deliver(ctx context.Context) (types.RunRecord, error) {
	run := o.NewRun()
	rec := types.RunRecord{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		Recipe:     o.cfg.Calibre.Recipe,
		OutputPath: run.OutputPath,
		Kept:       o.cfg.Calibre.KeepFile,
	}

	if err := o.Convert(ctx, run); err != nil {
		if !o.cfg.Calibre.KeepFile {
			o.remove(run.OutputPath)
		}
		rec.Outcome = types.OutcomeConversionFailed
		o.record(ctx, &rec)
		return rec, err
	}

	rec.Deliveries = o.Send(ctx, run)
	rec.Outcome = types.OutcomeSent
	rec.Kept = o.Cleanup(run)
	o.record(ctx, &rec)
	return rec, nil
}

// Convert runs ebook-convert for the configured recipe, writing the digest
// to run.OutputPath.
func (o *Orchestrator) Convert(ctx context.Context, run Run) error {
	recipe := o.cfg.Calibre.Recipe
	o.log.Info().Msg("Downloading RSS feeds")

	if err := os.MkdirAll(filepath.Dir(run.OutputPath), 0o755); err != nil {
		o.log.Error().Err(err).Msg("Couldn't download RSS feeds")
		return &ConversionError{Recipe: recipe, ExitCode: -1, Err: fmt.Errorf("creating download directory: %w", err)}
	}

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	o.log.Debug().Strs("args", calibre.ConvertArgs(recipe, run.OutputPath)).Msg("ebook-convert")
	res, err := o.tools.Convert(ctx, recipe, run.OutputPath)
	o.logStreams(res)
	if err != nil {
		o.log.Error().Err(err).Int("exit_code", res.ExitCode).Msg("Couldn't download RSS feeds")
		return &ConversionError{Recipe: recipe, ExitCode: res.ExitCode, Err: err}
	}

	o.log.Info().Msg("Finished downloading RSS feeds")
	return nil
}

// Send mails run.OutputPath to every recipient and returns one Delivery per
// recipient in configured order. With more than one worker, deliveries run
// concurrently; Send returns only after all of them have finished.
func (o *Orchestrator) Send(ctx context.Context, run Run) []types.Delivery {
	recipients := o.cfg.Kindle.Recipients
	deliveries := make([]types.Delivery, len(recipients))

	o.log.Info().Msg("Sending papers")

	var g errgroup.Group
	g.SetLimit(max(o.cfg.Kindle.Workers, 1))
	for i, recipient := range recipients {
		i, recipient := i, recipient
		g.Go(func() error {
			deliveries[i] = o.sendOne(ctx, run, recipient)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, d := range deliveries {
		if !d.OK {
			failed++
		}
	}
	o.log.Info().Int("recipients", len(deliveries)).Int("failed", failed).Msg("Morning papers sent")
	return deliveries
}

func (o *Orchestrator) sendOne(ctx context.Context, run Run, recipient string) types.Delivery {
	o.log.Debug().Msg("Sending paper to: " + recipient)

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	o.log.Debug().Strs("args", maskPassword(calibre.SendArgs(o.cfg.MailServer, run.OutputPath, recipient), o.cfg.MailServer.Password)).Msg("calibre-smtp")
	res, err := o.tools.Send(ctx, run.OutputPath, recipient)
	o.logStreams(res)
	if err != nil {
		sendErr := &SendError{Recipient: recipient, ExitCode: res.ExitCode, Err: err}
		o.log.Error().Err(err).Int("exit_code", res.ExitCode).Msg("Error sending the paper to " + recipient)
		return types.Delivery{Recipient: recipient, ExitCode: res.ExitCode, Error: sendErr.Error()}
	}

	o.log.Debug().Msg("Morning paper to " + recipient + " successfully sent")
	return types.Delivery{Recipient: recipient, OK: true}
}

// Cleanup removes the output file unless the configuration keeps it. It
// reports whether the file was kept.
func (o *Orchestrator) Cleanup(run Run) bool {
	if o.cfg.Calibre.KeepFile {
		o.log.Debug().Str("path", run.OutputPath).Msg("Keeping output file")
		return true
	}
	o.remove(run.OutputPath)
	return false
}

// remove deletes path. A file that is already gone is not an error; any
// other failure is logged and otherwise ignored.
func (o *Orchestrator) remove(path string) {
	err := os.Remove(path)
	switch {
	case err == nil:
		o.log.Debug().Msg("Removed output file: " + path)
	case errors.Is(err, os.ErrNotExist):
		o.log.Debug().Str("path", path).Msg("Output file already absent")
	default:
		o.log.Warn().Err(err).Str("path", path).Msg("Could not remove output file")
	}
}

func (o *Orchestrator) record(ctx context.Context, rec *types.RunRecord) {
	rec.FinishedAt = o.now()
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, *rec); err != nil {
		o.log.Warn().Err(err).Str("run", rec.ID).Msg("Could not record run history")
	}
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := o.cfg.Calibre.Timeout; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) logStreams(res calibre.Result) {
	if s := strings.TrimSpace(res.Stdout); s != "" {
		o.log.Debug().Str("stream", "stdout").Msg(s)
	}
	if s := strings.TrimSpace(res.Stderr); s != "" {
		o.log.Debug().Str("stream", "stderr").Msg(s)
	}
}

func maskPassword(args []string, password string) []string {
	if password == "" {
		return args
	}
	out := make([]string, len(args))
	for i, a := range args {
		if a == password {
			a = "********"
		}
		out[i] = a
	}
	return out
}
