package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"jobmarket/internal/analytics"
	"jobmarket/internal/config"
	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/ingest"
	"jobmarket/internal/probe"
	"jobmarket/internal/storage"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetBorder(true)
	t.SetHeader(header)
	return t
}

func headers(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = Header(c)
	}
	return out
}

func writeTitle(w io.Writer, title string) error {
	_, err := fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
	return err
}

// WriteResult prints res as a titled table. An empty result prints
// "(no rows)".
func WriteResult(w io.Writer, res *analytics.Result) error {
	if err := writeTitle(w, res.Title); err != nil {
		return err
	}
	if len(res.Rows) == 0 {
		_, err := fmt.Fprintln(w, "(no rows)")
		return err
	}
	t := newTable(w, headers(res.Columns))
	for _, rec := range res.Rows {
		t.Append(cells(res.Columns, rec))
	}
	t.Render()
	return nil
}

// WriteSummary prints the headline KPIs.
func WriteSummary(w io.Writer, s analytics.Summary) error {
	if err := writeTitle(w, "Market Summary"); err != nil {
		return err
	}
	avg := Missing
	if s.SalariedJobs > 0 {
		avg = Money(s.AvgSalary)
	}
	t := newTable(w, []string{"Total Jobs", "Avg Salary", "Remote Jobs", "Leadership Roles"})
	t.Append([]string{Number(int64(s.TotalJobs)), avg, Number(int64(s.RemoteJobs)), Number(int64(s.LeadershipRoles))})
	t.Render()
	return nil
}

// WriteOutcomes prints every outcome in order. A failed query prints a
// warning in place of its table and does not stop the rest.
func WriteOutcomes(w io.Writer, outcomes []analytics.Outcome) error {
	for _, o := range outcomes {
		if o.Err != nil {
			if err := writeTitle(w, o.Spec.Title); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "warning: could not run query: %v\n", o.Err); err != nil {
				return err
			}
			continue
		}
		if err := WriteResult(w, o.Result); err != nil {
			return err
		}
	}
	return nil
}

// WritePremium prints the mean salary per role category and the premium
// line. err is the error returned by analytics.ManagerPremium;
// insufficient data prints a warning instead of a percentage.
func WritePremium(w io.Writer, p analytics.Premium, err error) error {
	if werr := writeTitle(w, "Manager Premium"); werr != nil {
		return werr
	}
	if len(p.Roles) > 0 {
		t := newTable(w, []string{"Role Category", "Jobs", "Avg Salary"})
		for _, r := range p.Roles {
			t.Append([]string{string(r.Category), Number(int64(r.Count)), Money(r.AvgSalary)})
		}
		t.Render()
	}
	_, werr := fmt.Fprintln(w, PremiumLine(p, err))
	return werr
}

// PremiumLine is the one-sentence premium insight.
func PremiumLine(p analytics.Premium, err error) string {
	switch {
	case apperrors.Is(err, apperrors.KindInsufficientData):
		return "Not enough data to calculate premium."
	case err != nil:
		return "Manager premium unavailable: " + err.Error()
	case p.Percent >= 0:
		return fmt.Sprintf("Leadership roles pay %s more on average.", Percent(p.Percent))
	default:
		return fmt.Sprintf("Leadership roles pay %s less on average.", Percent(-p.Percent))
	}
}

// WriteCrosstab prints the experience × company size counts.
func WriteCrosstab(w io.Writer, title string, ct *analytics.Crosstab) error {
	if err := writeTitle(w, title); err != nil {
		return err
	}
	if len(ct.Rows) == 0 {
		_, err := fmt.Fprintln(w, "(no rows)")
		return err
	}
	t := newTable(w, append([]string{Header(ct.RowKey)}, ct.Cols...))
	for _, r := range ct.Rows {
		line := []string{r}
		for _, c := range ct.Cols {
			line = append(line, Number(ct.Count(r, c)))
		}
		t.Append(line)
	}
	t.Render()
	return nil
}

// WriteBoxes prints the per-level salary box statistics.
func WriteBoxes(w io.Writer, boxes []analytics.Box) error {
	if err := writeTitle(w, "Salary Ranges by Experience"); err != nil {
		return err
	}
	t := newTable(w, []string{"Level", "N", "Min", "Q1", "Median", "Q3", "Max", "Outliers"})
	for _, b := range boxes {
		t.Append([]string{
			b.Label, Number(int64(b.N)),
			Money(b.Min), Money(b.Q1), Money(b.Median), Money(b.Q3), Money(b.Max),
			Number(int64(len(b.Outliers))),
		})
	}
	t.Render()
	return nil
}

// WriteVerification prints the read-back of a loaded table.
func WriteVerification(w io.Writer, table string, v ingest.Verification) error {
	if err := writeTitle(w, "Verify "+table); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "rows: %s\n", Number(v.Total)); err != nil {
		return err
	}
	if v.Run != nil {
		if _, err := fmt.Fprintf(w, "last ingest: %s from %s (run %s)\n",
			v.Run.LoadedAt.Format("2006-01-02 15:04:05 MST"), v.Run.Source, v.Run.RunID); err != nil {
			return err
		}
	}
	writeRows(w, v.Sample)
	return nil
}

func writeRows(w io.Writer, rows storage.Rows) {
	t := newTable(w, rows.Columns)
	for _, v := range rows.Values {
		line := make([]string, len(v))
		for i, x := range v {
			if x == nil {
				line[i] = Missing
				continue
			}
			line[i] = storage.NormalizeKey(x)
		}
		t.Append(line)
	}
	t.Render()
}

// WriteProbe prints a probe report: one line per column plus any missing
// required columns.
func WriteProbe(w io.Writer, rep probe.Report) error {
	if err := writeTitle(w, "Probe "+rep.Source); err != nil {
		return err
	}
	status := fmt.Sprintf("rows: %s  skipped: %s", Number(int64(rep.Rows)), Number(int64(rep.Skipped)))
	if rep.Truncated {
		status += "  (truncated)"
	}
	if _, err := fmt.Fprintln(w, status); err != nil {
		return err
	}

	t := newTable(w, []string{"Header", "Column", "Type", "Filled", "Distinct", "Top Values"})
	for _, c := range rep.Columns {
		distinct := Number(int64(c.Distinct))
		if c.Capped {
			distinct = ">=" + distinct
		}
		top := make([]string, len(c.Top))
		for i, v := range c.Top {
			top[i] = fmt.Sprintf("%s (%d)", v.Value, v.Count)
		}
		t.Append([]string{c.Header, c.Name, c.Type, Number(int64(c.Filled)), distinct, strings.Join(top, ", ")})
	}
	t.Render()

	if len(rep.Missing) > 0 {
		_, err := fmt.Fprintf(w, "missing required columns: %s\n", strings.Join(rep.Missing, ", "))
		return err
	}
	return nil
}

// WriteIssues prints pipeline validation issues, one per line.
func WriteIssues(w io.Writer, issues []config.Issue) error {
	if len(issues) == 0 {
		_, err := fmt.Fprintln(w, "pipeline ok")
		return err
	}
	for _, is := range issues {
		if _, err := fmt.Fprintln(w, is.String()); err != nil {
			return err
		}
	}
	return nil
}
