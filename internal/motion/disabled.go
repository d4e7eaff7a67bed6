package motion

import (
	"context"
	"net/http"
	"sync"
)

// DisabledSource is used when no accelerometer is attached. It never produces
// samples, so the session tracker stays idle, but subscribers are tracked so
// their channels close deterministically on Unsubscribe or Close.
type DisabledSource struct {
	mu          sync.Mutex
	subscribers map[string]chan Sample
	closing     bool
}

func NewDisabledSource() *DisabledSource {
	return &DisabledSource{
		subscribers: make(map[string]chan Sample),
	}
}

func (d *DisabledSource) Subscribe() (string, chan Sample) {
	id := randomID()
	ch := make(chan Sample)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSource) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledSource) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledSource) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/motion-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("accelerometer disabled"))
	})
}
