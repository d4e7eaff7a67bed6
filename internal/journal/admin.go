package journal

import (
	"log"
	"net/http"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/gait.report/internal/httputil"
)

// AttachAdminRoutes mounts tailsql over the journal and a JSON dump of runs
// and confidence statistics on the tsweb debug mux.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Printf("failed to create tailsql server, skipping SQL debug route: %v", err)
	} else {
		tsql.SetDB("sqlite://journal", j.db, &tailsql.DBOptions{
			Label: "Session journal (in memory)",
		})
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	}

	debug.HandleFunc("journal", "session journal runs and confidence statistics", func(w http.ResponseWriter, r *http.Request) {
		n := 200
		if v := r.URL.Query().Get("n"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				httputil.WriteJSONError(w, http.StatusBadRequest, "n must be a positive integer")
				return
			}
			n = parsed
		}

		runs, err := j.Runs(r.Context())
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		stats, err := j.ConfidenceStats(r.Context(), n)
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		version, dirty, err := j.SchemaVersion()
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}

		httputil.WriteJSONOK(w, map[string]any{
			"current_run":    j.CurrentRun(),
			"runs":           runs,
			"confidence":     stats,
			"schema_version": version,
			"schema_dirty":   dirty,
		})
	})
}
