package dashboard

import (
	"context"
	"embed"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/gait.report/internal/app"
	"github.com/banshee-data/gait.report/internal/health"
	"github.com/banshee-data/gait.report/internal/httputil"
	"github.com/banshee-data/gait.report/internal/session"
	"github.com/banshee-data/gait.report/internal/summary"
	"github.com/banshee-data/gait.report/internal/version"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

//go:embed templates/*
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

// Backend is what the dashboard reads and commands. *app.App satisfies it.
type Backend interface {
	Snapshot() session.State
	Summary() (summary.Snapshot, bool)
	Stats() app.Stats
	Health() (health.Status, bool)
	RecentConfidences(ctx context.Context, n int) ([]float64, error)
	Subscribe() (string, <-chan struct{})
	Unsubscribe(id string)
	Start(ctx context.Context) error
	End(ctx context.Context) error
	Reset(ctx context.Context) error
}

type Server struct {
	b Backend
}

func NewServer(b Backend) *Server {
	return &Server{b: b}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration. The event stream
// is skipped since it stays open for the life of the page.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/events" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) view() View {
	snap, ok := s.b.Summary()
	return Project(s.b.Snapshot(), snap, ok)
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.showIndex)
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/events", s.streamEvents)
	mux.HandleFunc("/api/session/start", s.command("start", s.b.Start))
	mux.HandleFunc("/api/session/end", s.command("end", s.b.End))
	mux.HandleFunc("/api/session/reset", s.command("reset", s.b.Reset))
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/charts/summary", s.handleSummaryChart)
	mux.HandleFunc("/charts/confidence.png", s.handleConfidencePlot)
	return mux
}

func (s *Server) showIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, s.view()); err != nil {
		log.Printf("failed to render dashboard: %v", err)
	}
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.view())
}

type statsResponse struct {
	Pipeline app.Stats      `json:"pipeline"`
	Health   *health.Status `json:"health,omitempty"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statsResponse{Pipeline: s.b.Stats()}
	if st, ok := s.b.Health(); ok {
		resp.Health = &st
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// command wraps a session command. The response carries the resulting view
// even when the command failed, since reset clears local state regardless.
func (s *Server) command(name string, fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		if err := fn(r.Context()); err != nil {
			log.Printf("session %s failed: %v", name, err)
			httputil.WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error": err.Error(),
				"view":  s.view(),
			})
			return
		}
		httputil.WriteJSONOK(w, s.view())
	}
}

// streamEvents sends the current view, then a fresh view on every change,
// until the client goes away.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, changes := s.b.Subscribe()
	defer s.b.Unsubscribe(id)

	if err := httputil.WriteSSE(w, "view", s.view()); err != nil {
		return
	}
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := httputil.WriteSSE(w, "view", s.view()); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
