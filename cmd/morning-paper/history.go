package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/morning-paper/internal/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		asYAML bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent delivery runs",
		Long: `History prints the most recent runs recorded in the database named by
[history] database, newest first, with any failed deliveries listed under
their run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if cfg.History.Database == "" {
				return fmt.Errorf("run history is not enabled: set [history] database in %s", a.configPath)
			}

			store, err := history.Open(cfg.History.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asYAML {
				return history.WriteYAML(a.stdout, runs)
			}
			history.WriteText(a.stdout, runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print runs as YAML")
	return cmd
}
