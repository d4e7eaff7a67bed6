// Package testutil provides shared test helpers for the HTTP surfaces: the
// tsweb debug routes and the server-sent event streams.
package testutil

import (
	"bufio"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/gait.report/internal/monitoring"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// LocalRequest creates a test request that appears to come from localhost,
// so tsweb allows access to /debug/ routes.
func LocalRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// QuietLogs mutes the standard logger and the component loggers for the
// duration of the test.
func QuietLogs(t testing.TB) {
	t.Helper()
	prev := log.Writer()
	log.SetOutput(io.Discard)
	monitoring.SetLogger(nil)
	t.Cleanup(func() {
		log.SetOutput(prev)
		monitoring.SetLogger(log.Printf)
	})
}

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// ReadEvent reads the next event carrying data from an event stream. Comment
// lines such as ": ping" are skipped.
func ReadEvent(t testing.TB, r *bufio.Reader) Event {
	t.Helper()
	var ev Event
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.Data != "":
			return ev
		}
	}
}
