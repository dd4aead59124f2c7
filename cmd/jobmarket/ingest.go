package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobmarket/internal/config"
	"jobmarket/internal/ingest"
	"jobmarket/internal/report"
)

func (a *app) ingestCmd() *cobra.Command {
	var (
		cfgPath  string
		validate bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load the postings CSV into the store, replacing the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			p := config.Default()
			if cfgPath != "" {
				var err error
				if p, err = config.Load(cfgPath); err != nil {
					return err
				}
			}
			issues := config.ValidatePipeline(p)
			if validate || len(issues) > 0 {
				if err := report.WriteIssues(out, issues); err != nil {
					return err
				}
			}
			if config.HasErrors(issues) {
				return fmt.Errorf("pipeline %s is invalid", pipelineName(cfgPath))
			}
			if validate {
				return nil
			}

			ctx := cmd.Context()
			c := a.openCache(ctx, p)
			defer c.Close()

			r := &ingest.Runner{Logger: a.log, Cache: c}
			res, err := r.Run(ctx, p)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "loaded %s rows into %s (run %s, fingerprint %.12s)\nskipped records: %s  non-numeric values stored as NULL: %s\n",
				report.Number(res.Run.Rows), res.Table, res.Run.RunID, res.Run.Fingerprint,
				report.Number(res.ParseErrors), report.Number(res.CoerceFailures))
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "pipeline file (.json, .yaml or .yml); empty uses the defaults")
	cmd.Flags().BoolVar(&validate, "validate", false, "validate the pipeline and exit")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var (
		cfgPath string
		rows    int
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Read back the loaded table: row count, last ingest and sample rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadPipeline(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			repo, err := openRepo(ctx, p)
			if err != nil {
				return err
			}
			defer repo.Close()

			v, err := ingest.Verify(ctx, repo, p.Storage.Table, rows)
			if err != nil {
				return err
			}
			if v.Run == nil {
				a.log.Warn("table has no ingest run log", "table", p.Storage.Table)
			}
			return report.WriteVerification(cmd.OutOrStdout(), p.Storage.Table, v)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "pipeline file; empty uses the defaults")
	cmd.Flags().IntVar(&rows, "rows", ingest.DefaultVerifyRows, "sample rows to print")
	return cmd
}
