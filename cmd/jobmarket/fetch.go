package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"jobmarket/internal/config"
	"jobmarket/internal/datasource"
	"jobmarket/internal/probe"
	"jobmarket/internal/report"
)

func (a *app) fetchCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the postings dataset to a local file",
		Long:  "fetch copies a dataset from a local path, an http(s) URL or an s3://bucket/key URI to a local file. The destination is replaced only after the copy completes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := datasource.ParseURI(from)
			if err != nil {
				return err
			}
			n, err := datasource.Fetch(cmd.Context(), src, to)
			if err != nil {
				return err
			}
			a.log.Info("fetch ok", "source", datasource.Name(src), "dest", to, "bytes", n)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "fetched %s bytes from %s to %s\n", report.Number(n), datasource.Name(src), to)
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source: local path, http(s) URL or s3://bucket/key")
	cmd.Flags().StringVar(&to, "to", config.DefaultSourcePath, "destination file")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func (a *app) probeCmd() *cobra.Command {
	var (
		in         string
		maxRows    int
		topValues  int
		emitConfig string
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Inspect a CSV: normalized headers, inferred types and common values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := datasource.ParseURI(in)
			if err != nil {
				return err
			}
			rep, err := probe.Probe(cmd.Context(), src, probe.Options{MaxRows: maxRows, TopValues: topValues})
			if err != nil {
				return err
			}
			a.log.Debug("probe ok", "source", rep.Source, "rows", rep.Rows, "skipped", rep.Skipped)
			if err := report.WriteProbe(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if emitConfig == "" {
				return nil
			}
			if err := writePipeline(emitConfig, rep.Pipeline(src)); err != nil {
				return err
			}
			a.log.Info("pipeline written", "path", emitConfig)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", config.DefaultSourcePath, "CSV to inspect: local path, http(s) URL or s3://bucket/key")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "stop after this many records (0 reads everything)")
	cmd.Flags().IntVar(&topValues, "top", 0, "most common values shown per column (default 5)")
	cmd.Flags().StringVar(&emitConfig, "emit-config", "", "write a suggested pipeline file (.json, .yaml or .yml)")
	return cmd
}

// writePipeline encodes p as YAML or JSON depending on the extension of
// path.
func writePipeline(path string, p config.Pipeline) error {
	var (
		b   []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(p)
	default:
		b, err = json.MarshalIndent(p, "", "  ")
		b = append(b, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}
