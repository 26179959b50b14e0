package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jonathan/quick-resume/internal/archive"
	"github.com/jonathan/quick-resume/internal/db"
	"github.com/jonathan/quick-resume/internal/observability"
)

var (
	archiveHistory   bool
	archiveEmployers bool
	archiveEmployer  string
	archiveState     string
	archiveLimit     int
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "List exported documents or the recorded request history",
	Long: `Archive lists the documents in the output directory, grouped by base name.

With --history it lists recorded requests from the history database instead,
and with --employers it prints the employers that already have a resume.`,
	RunE: runArchive,
}

func init() {
	addOutputFlags(archiveCmd)
	archiveCmd.Flags().BoolVar(&archiveHistory, "history", false, "List recorded requests (requires a database)")
	archiveCmd.Flags().BoolVar(&archiveEmployers, "employers", false, "Print employers with an exported resume")
	archiveCmd.Flags().StringVar(&archiveEmployer, "employer", "", "Filter history by employer")
	archiveCmd.Flags().StringVar(&archiveState, "state", "", "Filter history by request state")
	archiveCmd.Flags().IntVar(&archiveLimit, "limit", db.DefaultListLimit, "Maximum history records to list")
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()
	printer := observability.NewPrinter(cmd.OutOrStdout())

	if archiveHistory || (archiveEmployers && cfg.DatabaseURL != "") {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("--history requires --db-url or DATABASE_URL")
		}
		history, err := openHistory(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer history.Close()

		if archiveEmployers {
			employers, err := history.ExportedEmployers(ctx)
			if err != nil {
				return err
			}
			printEmployers(cmd, employers)
			return nil
		}

		records, err := history.ListRequests(ctx, db.RequestFilters{
			Employer: archiveEmployer,
			State:    archiveState,
			Limit:    archiveLimit,
		})
		if err != nil {
			return err
		}
		printer.PrintHistory(records)
		return nil
	}

	if cfg.OutputDir == "" {
		return fmt.Errorf("output directory is not defined: set output_dir or --output-dir")
	}
	scanner := archive.NewScanner()

	if archiveEmployers {
		found, err := scanner.Employers(cfg.OutputDir)
		if err != nil {
			return err
		}
		employers := make([]string, 0, len(found))
		for employer := range found {
			employers = append(employers, employer)
		}
		sort.Strings(employers)
		printEmployers(cmd, employers)
		return nil
	}

	entries, err := scanner.List(cfg.OutputDir)
	if err != nil {
		return err
	}
	printer.PrintArchive(entries)
	return nil
}

func printEmployers(cmd *cobra.Command, employers []string) {
	for _, employer := range employers {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), employer)
	}
}
