package report

import (
	"context"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"math"
	"strconv"
	"time"

	"jobmarket/internal/analytics"
	apperrors "jobmarket/internal/errors"
)

// Panel ids. A panel with an entry in Dashboard.Warnings renders the
// warning instead of its content.
const (
	PanelFilters   = "filters"
	PanelSummary   = "summary"
	PanelHistogram = "histogram"
	PanelTrend     = "trend"
	PanelBoxes     = "boxes"
	PanelPremium   = "premium"
	PanelCrosstab  = "crosstab"
	PanelPreview   = "preview"
)

const (
	DefaultTitle         = "Data Science Job Market Dashboard"
	DefaultHistogramBins = 20
)

//go:embed templates/dashboard.html.tmpl
var templateFS embed.FS

var dashboardTmpl = template.Must(template.New("dashboard.html.tmpl").
	Funcs(template.FuncMap{
		"money":   Money,
		"number":  func(n any) string { return Cell("", n) },
		"percent": Percent,
		"header":  Header,
		"cell":    Cell,
		"pct":     pct,
		"heat":    heat,
	}).
	ParseFS(templateFS, "templates/dashboard.html.tmpl"))

type DashboardOptions struct {
	Title string
	// Filter applies to every panel except the manager premium and the
	// catalog, which always cover the whole table.
	Filter analytics.Filter
	// DefaultTitles selects the five most frequent titles when
	// Filter.JobTitles is empty.
	DefaultTitles bool
	PreviewRows   int
	HistogramBins int
	Now           time.Time
	Logger        *slog.Logger
}

// Dashboard is everything the HTML page shows.
type Dashboard struct {
	Title       string
	GeneratedAt time.Time
	Filter      analytics.Filter
	Options     analytics.FilterOptions

	Summary    analytics.Summary
	Histogram  []analytics.Bin
	Trend      *analytics.Result
	Boxes      []analytics.Box
	Premium    analytics.Premium
	PremiumErr error
	Crosstab   *analytics.Crosstab
	Catalog    []analytics.Outcome
	Preview    *analytics.Result

	Warnings map[string]string
}

// Warning returns the message shown in place of panel, or "".
func (d *Dashboard) Warning(panel string) string {
	return d.Warnings[panel]
}

// PremiumLine is the premium insight sentence.
func (d *Dashboard) PremiumLine() string {
	return PremiumLine(d.Premium, d.PremiumErr)
}

func (d *Dashboard) HistogramMax() int {
	m := 0
	for _, b := range d.Histogram {
		m = max(m, b.Count)
	}
	return m
}

func (d *Dashboard) CrosstabMax() int64 {
	var m int64
	if d.Crosstab == nil {
		return 0
	}
	for _, r := range d.Crosstab.Rows {
		for _, c := range d.Crosstab.Cols {
			m = max(m, d.Crosstab.Count(r, c))
		}
	}
	return m
}

func (d *Dashboard) RoleMax() float64 {
	m := 0.0
	for _, r := range d.Premium.Roles {
		m = max(m, r.AvgSalary)
	}
	return m
}

// BuildDashboard runs every panel against eng. A failing panel is logged
// and recorded in Warnings; it never prevents the other panels.
func BuildDashboard(ctx context.Context, eng *analytics.Engine, opt DashboardOptions) *Dashboard {
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opt.Title == "" {
		opt.Title = DefaultTitle
	}
	if opt.HistogramBins <= 0 {
		opt.HistogramBins = DefaultHistogramBins
	}
	if opt.Now.IsZero() {
		opt.Now = time.Now()
	}

	d := &Dashboard{
		Title:       opt.Title,
		GeneratedAt: opt.Now,
		Filter:      opt.Filter,
		Warnings:    map[string]string{},
	}
	warn := func(panel string, err error) {
		log.Warn("dashboard panel failed", "panel", panel, "error", err)
		d.Warnings[panel] = err.Error()
	}

	var err error
	if d.Options, err = eng.FilterOptions(ctx); err != nil {
		warn(PanelFilters, err)
	}
	if opt.DefaultTitles && len(d.Filter.JobTitles) == 0 {
		d.Filter.JobTitles = d.Options.DefaultJobTitles
	}
	f := d.Filter

	frame, err := eng.LoadFrame(ctx, f)
	switch {
	case err != nil:
		warn(PanelSummary, err)
		warn(PanelHistogram, err)
		warn(PanelBoxes, err)
	case len(frame) == 0:
		d.Warnings[PanelHistogram] = "No postings match the current filters."
		d.Warnings[PanelBoxes] = "No postings match the current filters."
	default:
		d.Summary = analytics.Summarize(frame)
		d.Histogram = analytics.Histogram(analytics.Salaries(frame), opt.HistogramBins)
		d.Boxes = analytics.BoxStats(frame)
	}

	if spec, ok := analytics.Lookup("yearly_trend"); ok {
		if d.Trend, err = eng.Run(ctx, spec, f); err != nil {
			warn(PanelTrend, err)
		}
	}

	all, err := eng.LoadFrame(ctx, analytics.Filter{})
	if err != nil {
		warn(PanelPremium, err)
	} else {
		d.Premium, d.PremiumErr = analytics.ManagerPremium(all)
		if d.PremiumErr != nil && !apperrors.Is(d.PremiumErr, apperrors.KindInsufficientData) {
			warn(PanelPremium, d.PremiumErr)
		}
	}

	if d.Crosstab, err = eng.Crosstab(ctx, f); err != nil {
		warn(PanelCrosstab, err)
	}

	d.Catalog = eng.RunAll(ctx, analytics.Catalog(), analytics.Filter{})
	for _, o := range d.Catalog {
		if o.Err != nil {
			log.Warn("dashboard query failed", "query", o.Spec.Name, "error", o.Err)
		}
	}

	if d.Preview, err = eng.Preview(ctx, f, opt.PreviewRows); err != nil {
		warn(PanelPreview, err)
	}
	return d
}

// RenderHTML writes d as a self-contained HTML page.
func RenderHTML(w io.Writer, d *Dashboard) error {
	return dashboardTmpl.Execute(w, d)
}

// pct returns n as a percentage of total, formatted for a CSS width.
func pct(n, total any) string {
	a, b := toFloat(n), toFloat(total)
	if b <= 0 {
		return "0"
	}
	return strconv.FormatFloat(a/b*100, 'f', 1, 64)
}

// heat buckets n/total into 0..4 for the heatmap cell classes; only
// empty cells get 0.
func heat(n, total int64) int {
	if total <= 0 || n <= 0 {
		return 0
	}
	return min(4, int(math.Ceil(float64(n)/float64(total)*4)))
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}
