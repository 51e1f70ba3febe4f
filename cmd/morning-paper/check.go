package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/morning-paper/internal/calibre"
	"github.com/pdiddy/morning-paper/internal/paper"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration without running calibre",
		Long: `Check loads and validates the configuration file, environment overrides
and secrets, then prints the resolved settings. No feeds are downloaded and
no mail is sent. The mail password is never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			cli := calibre.New(cfg)
			w := a.stdout

			fmt.Fprintf(w, "ebook-convert: %s\n", cli.ConvertPath())
			fmt.Fprintf(w, "calibre-smtp:  %s\n", cli.SMTPPath())
			fmt.Fprintf(w, "recipe:        %s\n", cfg.Calibre.Recipe)
			fmt.Fprintf(w, "output:        %s\n", paper.OutputPath(cfg.Calibre.TempDownloadDir, time.Now().Format(paper.TimestampFormat), cfg.Calibre.Format))
			fmt.Fprintf(w, "keep file:     %t\n", cfg.Calibre.KeepFile)
			fmt.Fprintf(w, "mail server:   %s@%s:%d (TLS)\n", cfg.MailServer.Username, cfg.MailServer.Host, cfg.MailServer.Port)
			fmt.Fprintf(w, "recipients:    %s\n", strings.Join(cfg.Kindle.Recipients, ", "))
			if cfg.Kindle.Workers > 1 {
				fmt.Fprintf(w, "workers:       %d\n", cfg.Kindle.Workers)
			}
			if cfg.Calibre.Timeout > 0 {
				fmt.Fprintf(w, "timeout:       %s\n", cfg.Calibre.Timeout)
			}
			if cfg.History.Database != "" {
				fmt.Fprintf(w, "history:       %s\n", cfg.History.Database)
			}
			return nil
		},
	}
}
