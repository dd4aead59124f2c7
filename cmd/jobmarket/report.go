package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"jobmarket/internal/analytics"
	"jobmarket/internal/report"
	"jobmarket/internal/schema"
)

type filterFlags struct {
	titles     []string
	levels     []string
	entryLevel bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.titles, "title", nil, "only these job titles (repeatable or comma separated)")
	cmd.Flags().StringSliceVar(&f.levels, "experience", nil, "only these experience levels, e.g. EN,MI (repeatable)")
	cmd.Flags().BoolVar(&f.entryLevel, "entry-level", false, "only entry-level postings under any accepted spelling")
}

// filter builds the analytics filter. Experience values are mapped to
// their codes, so "Entry-level" and "EN" select the same postings.
// --entry-level narrows the levels to the entry-level spellings, the same
// set the catalog queries are restricted to; combined with --experience
// it must keep at least one level.
func (f *filterFlags) filter() (analytics.Filter, error) {
	var levels []string
	wantsEntry := false
	for _, raw := range f.levels {
		code, _ := schema.CanonicalExperience(raw)
		wantsEntry = wantsEntry || code == schema.ExperienceEntry
		for _, v := range []string{code, strings.TrimSpace(raw)} {
			if v != "" && !slices.Contains(levels, v) {
				levels = append(levels, v)
			}
		}
	}
	if f.entryLevel {
		if len(levels) > 0 && !wantsEntry {
			return analytics.Filter{}, fmt.Errorf("--entry-level excludes every --experience level given (%s)", strings.Join(f.levels, ","))
		}
		levels = slices.Clone(schema.EntryLevelSynonyms)
	}
	return analytics.Filter{JobTitles: f.titles, ExperienceLevels: levels}, nil
}

// selectSpecs returns the catalog entries named in names, in catalog
// order, or the whole catalog when names is empty.
func selectSpecs(names []string, entryLevel bool) ([]analytics.QuerySpec, error) {
	specs := analytics.Catalog()
	if len(names) > 0 {
		specs = specs[:0:0]
		for _, n := range names {
			spec, ok := analytics.Lookup(n)
			if !ok {
				return nil, fmt.Errorf("unknown query %q", n)
			}
			specs = append(specs, spec)
		}
	}
	if entryLevel {
		for i := range specs {
			specs[i] = analytics.EntryLevel(specs[i])
		}
	}
	return specs, nil
}

func (a *app) reportCmd() *cobra.Command {
	var (
		cfgPath string
		queries []string
		ff      filterFlags
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the market summary, the query catalog and the career insights",
		Long:  "report prints the KPIs, every catalog query, the experience by company size crosstab, salary ranges by experience and the manager premium. A query that fails prints a warning and the rest still run. The manager premium always covers the whole table.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := selectSpecs(queries, ff.entryLevel)
			if err != nil {
				return err
			}
			f, err := ff.filter()
			if err != nil {
				return err
			}
			p, err := loadPipeline(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			eng, closeEngine, err := a.openEngine(ctx, p)
			if err != nil {
				return err
			}
			defer closeEngine()

			out := cmd.OutOrStdout()
			if len(queries) > 0 {
				return report.WriteOutcomes(out, eng.RunAll(ctx, specs, f))
			}

			frame, err := eng.LoadFrame(ctx, f)
			if err != nil {
				warnSection(out, a, "summary", err)
			} else if err := report.WriteSummary(out, analytics.Summarize(frame)); err != nil {
				return err
			}

			if err := report.WriteOutcomes(out, eng.RunAll(ctx, specs, f)); err != nil {
				return err
			}

			if ct, err := eng.Crosstab(ctx, f); err != nil {
				warnSection(out, a, "crosstab", err)
			} else if err := report.WriteCrosstab(out, "Hiring Hotspots (experience by company size)", ct); err != nil {
				return err
			}

			if frame != nil {
				if err := report.WriteBoxes(out, analytics.BoxStats(frame)); err != nil {
					return err
				}
			}

			all, err := eng.LoadFrame(ctx, analytics.Filter{})
			if err != nil {
				warnSection(out, a, "premium", err)
				return nil
			}
			prem, perr := analytics.ManagerPremium(all)
			return report.WritePremium(out, prem, perr)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "pipeline file; empty uses the defaults")
	cmd.Flags().StringSliceVar(&queries, "query", nil, "print only these catalog queries, by name")
	ff.register(cmd)
	return cmd
}

func warnSection(w io.Writer, a *app, section string, err error) {
	a.log.Warn("report section failed", "section", section, "error", err)
	fmt.Fprintf(w, "\nwarning: could not build %s: %v\n", section, err)
}

func (a *app) dashboardCmd() *cobra.Command {
	var (
		cfgPath       string
		out           string
		pageTitle     string
		defaultTitles bool
		previewRows   int
		bins          int
		ff            filterFlags
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Render the market dashboard as a self-contained HTML page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			p, err := loadPipeline(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			eng, closeEngine, err := a.openEngine(ctx, p)
			if err != nil {
				return err
			}
			defer closeEngine()

			d := report.BuildDashboard(ctx, eng, report.DashboardOptions{
				Title:         pageTitle,
				Filter:        f,
				DefaultTitles: defaultTitles && len(ff.titles) == 0,
				PreviewRows:   previewRows,
				HistogramBins: bins,
				Logger:        a.log,
			})

			if out == "-" {
				return report.RenderHTML(cmd.OutOrStdout(), d)
			}
			if err := writeFileAtomic(out, func(w io.Writer) error { return report.RenderHTML(w, d) }); err != nil {
				return err
			}
			a.log.Info("dashboard written", "path", out, "warnings", len(d.Warnings))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "pipeline file; empty uses the defaults")
	cmd.Flags().StringVarP(&out, "out", "o", "dashboard.html", "output file, - for stdout")
	cmd.Flags().StringVar(&pageTitle, "page-title", report.DefaultTitle, "page heading")
	cmd.Flags().BoolVar(&defaultTitles, "default-titles", true, "without --title, show the five most frequent titles")
	cmd.Flags().IntVar(&previewRows, "preview-rows", analytics.DefaultPreviewRows, "raw data rows shown")
	cmd.Flags().IntVar(&bins, "bins", report.DefaultHistogramBins, "salary histogram bins")
	ff.register(cmd)
	return cmd
}

// writeFileAtomic renders into a temp file next to path and renames it
// into place, so a failed render leaves the previous file untouched.
func writeFileAtomic(path string, render func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".render-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if err := render(tmp); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("render %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
