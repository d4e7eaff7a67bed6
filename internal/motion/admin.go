package motion

import (
	"embed"
	"html/template"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/gait.report/internal/httputil"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var tailTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/motion-tail.html.tmpl"))

// AttachAdminRoutes mounts the live sample tail and counters on the tsweb
// debug mux. These routes are only reachable from localhost or over Tailscale.
func (m *Mux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("motion", "live accelerometer samples", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tailTemplate.Execute(w, m.Counters()); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("motion-stats", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, m.Counters())
	})

	debug.HandleSilentFunc("motion-tail", func(w http.ResponseWriter, r *http.Request) {
		serveTail(w, r, m)
	})
}

// serveTail streams every sample from src as a server-sent event until the
// client goes away or the source closes.
func serveTail(w http.ResponseWriter, r *http.Request, src Source) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, c := src.Subscribe()
	defer src.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	for {
		select {
		case sample, ok := <-c:
			if !ok {
				return
			}
			if err := httputil.WriteSSE(w, "sample", sample); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
