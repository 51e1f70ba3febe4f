// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the morning-paper CLI. Running it with
// no subcommand performs one delivery: fetch the feeds of a calibre recipe
// with ebook-convert and mail the resulting document to every configured
// Kindle address with calibre-smtp.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pdiddy/morning-paper/internal/calibre"
	"github.com/pdiddy/morning-paper/internal/config"
	"github.com/pdiddy/morning-paper/internal/history"
	"github.com/pdiddy/morning-paper/internal/logging"
	"github.com/pdiddy/morning-paper/internal/paper"
	"github.com/pdiddy/morning-paper/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// app carries the state shared by all subcommands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	secretsDir string
	envFile    string
	verbose    int

	log      zerolog.Logger
	newTools func(types.Config) calibre.Tools
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:   stdout,
		stderr:   stderr,
		log:      logging.New(stderr, false),
		newTools: defaultTools,
	}
}

func defaultTools(cfg types.Config) calibre.Tools {
	return calibre.New(cfg)
}

func (a *app) loadConfig() (types.Config, error) {
	return config.Load(config.Options{
		Path:       a.configPath,
		EnvFile:    a.envFile,
		SecretsDir: a.secretsDir,
	}, a.log)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "morning-paper",
		Short: "Mail a calibre RSS digest to Kindle addresses",
		Long: `morning-paper downloads the feeds described by a calibre recipe with
ebook-convert, mails the resulting document to each configured Kindle
address with calibre-smtp, and removes the document afterwards unless
keepMobiFile is set.

A failed download exits with status 1. A failed delivery to one address is
logged and the remaining addresses are still attempted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = logging.New(a.stderr, a.verbose > 0)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.deliver(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", config.DefaultPath, "configuration file")
	flags.CountVarP(&a.verbose, "verbose", "v", "enable debug logging")
	flags.StringVar(&a.secretsDir, "secrets-dir", ".secrets/", "directory of one-file-per-key secrets")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.AddCommand(newCheckCmd(a), newHistoryCmd(a), newVersionCmd(a))
	return root
}

func (a *app) deliver(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	var opts []paper.Option
	if cfg.History.Database != "" {
		store, err := history.Open(cfg.History.Database)
		if err != nil {
			a.log.Warn().Err(err).Msg("Run history disabled")
		} else {
			defer store.Close()
			opts = append(opts, paper.WithRecorder(store))
		}
	}

	_, err = paper.New(cfg, a.newTools(cfg), a.log, opts...).Deliver(ctx)
	return err
}

// execute runs the CLI and returns the process exit status.
func execute(ctx context.Context, a *app, args []string) int {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		// Conversion failures are logged where they happen.
		var convErr *paper.ConversionError
		if !errors.As(err, &convErr) {
			a.log.Error().Msg(err.Error())
		}
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, newApp(os.Stdout, os.Stderr), os.Args[1:])
	stop()
	os.Exit(code)
}
