package dashboard

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gait.report/internal/httputil"
)

const (
	defaultConfidencePoints = 200
	maxConfidencePoints     = 5000
)

// handleSummaryChart renders the service summary and the local session
// counters as a bar chart.
func (s *Server) handleSummaryChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	v := s.view()

	subtitle := "no summary yet"
	if v.Summary.FetchedAt != nil {
		subtitle = "fetched " + v.Summary.FetchedAt.Format("15:04:05")
	}

	times := charts.NewBar()
	times.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gait Summary", Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Activity time (s)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	times.SetXAxis([]string{"Walking", "Running", "Session"}).
		AddSeries("seconds", []opts.BarData{
			{Value: v.Summary.WalkingTime},
			{Value: v.Summary.RunningTime},
			{Value: v.Summary.SessionDuration},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	counts := charts.NewBar()
	counts.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Sessions"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	counts.SetXAxis([]string{"Walking", "Running", "Irregular"}).
		AddSeries("service", []opts.BarData{
			{Value: v.Summary.WalkingSessions},
			{Value: v.Summary.RunningSessions},
			{Value: v.Summary.IrregularMovements},
		}).
		AddSeries("local", []opts.BarData{
			{Value: v.WalkingSessionsCompleted},
			{Value: v.RunningSessionsCompleted},
			{Value: v.ConsecutiveUnknownCount},
		})

	page := components.NewPage()
	page.SetPageTitle("Gait Summary")
	page.AddCharts(times, counts)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleConfidencePlot renders the most recent classification confidences
// from the journal as a PNG line plot. Query params:
//   - n (optional; default 200) number of classifications to plot
func (s *Server) handleConfidencePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	n := defaultConfidencePoints
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 || v > maxConfidencePoints {
			httputil.WriteJSONError(w, http.StatusBadRequest, "Invalid 'n' parameter")
			return
		}
		n = v
	}

	confidences, err := s.b.RecentConfidences(r.Context(), n)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read confidences: %v", err))
		return
	}

	p, err := confidencePlot(confidences)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("plot error: %v", err))
		return
	}
	wt, err := p.WriterTo(8*vg.Inch, 3*vg.Inch, "png")
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("plot error: %v", err))
		return
	}

	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("plot error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

func confidencePlot(confidences []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Classification confidence"
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Max probability"
	p.Y.Min = 0
	p.Y.Max = 1

	if len(confidences) == 0 {
		p.X.Min = 0
		p.X.Max = 1
		return p, nil
	}

	pts := make(plotter.XYs, len(confidences))
	for i, c := range confidences {
		pts[i] = plotter.XY{X: float64(i), Y: c}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1)
	p.Add(line)
	return p, nil
}
