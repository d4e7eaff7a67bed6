package motion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDisabledSource(t *testing.T) {
	var src Source = NewDisabledSource()

	id, ch := src.Subscribe()
	select {
	case <-ch:
		t.Fatal("disabled source should not produce samples")
	default:
	}
	src.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := src.Monitor(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Monitor() = %v, want deadline exceeded", err)
	}

	_, ch = src.Subscribe()
	if err := src.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	_, ch = src.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
}

func TestDisabledSource_AdminRoute(t *testing.T) {
	mux := http.NewServeMux()
	NewDisabledSource().AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/motion-disabled", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "accelerometer disabled" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}
