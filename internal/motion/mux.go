package motion

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/gait.report/internal/monitoring"
	"github.com/banshee-data/gait.report/internal/timeutil"
)

var logf = monitoring.Component("motion")

// subscriberBuffer is how many samples a slow subscriber may fall behind
// before samples are dropped for it.
const subscriberBuffer = 16

// Porter is the minimal interface of an accelerometer port. Real serial ports
// and test doubles both satisfy it.
type Porter interface {
	io.Reader
	io.Closer
}

// Source produces acceleration samples.
type Source interface {
	// Subscribe creates a channel receiving every parsed sample. The ID is used
	// to unsubscribe.
	Subscribe() (string, chan Sample)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(string)
	// Monitor reads from the device until ctx is done or the device ends.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the device.
	Close() error
	// AttachAdminRoutes mounts debugging endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Counters are running totals of the lines read from the device.
type Counters struct {
	Lines    uint64 `json:"lines"`
	Samples  uint64 `json:"samples"`
	Rejected uint64 `json:"rejected"`
	Dropped  uint64 `json:"dropped"`
}

// Mux reads lines from a single port, parses each into a Sample and fans it
// out to all subscribers without blocking on slow ones.
type Mux[T Porter] struct {
	port  T
	clock timeutil.Clock

	subscribers  map[string]chan Sample
	subscriberMu sync.Mutex
	closing      bool

	lines, samples, rejected, dropped atomic.Uint64
}

// NewMux wraps port.
func NewMux[T Porter](port T) *Mux[T] {
	return &Mux[T]{
		port:        port,
		clock:       timeutil.RealClock{},
		subscribers: make(map[string]chan Sample),
	}
}

// SetClock replaces the clock used to stamp received samples.
func (m *Mux[T]) SetClock(c timeutil.Clock) {
	m.clock = c
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (m *Mux[T]) Subscribe() (string, chan Sample) {
	id := randomID()
	ch := make(chan Sample, subscriberBuffer)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.closing {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

func (m *Mux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Counters returns the totals so far.
func (m *Mux[T]) Counters() Counters {
	return Counters{
		Lines:    m.lines.Load(),
		Samples:  m.samples.Load(),
		Rejected: m.rejected.Load(),
		Dropped:  m.dropped.Load(),
	}
}

// Monitor reads the port line by line. Lines that do not parse are logged and
// skipped. It returns nil when the port reaches EOF.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs in its own goroutine so the loop below can
	// still notice cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			m.lines.Add(1)

			sample, err := ParseSample(line)
			if err == ErrEmptyLine {
				continue
			}
			if err != nil {
				m.rejected.Add(1)
				logf("dropping line: %v", err)
				continue
			}
			sample.Received = m.clock.Now()
			m.samples.Add(1)

			if !m.publish(sample) {
				return nil
			}
		}
	}
}

// publish reports false once the mux is closing.
func (m *Mux[T]) publish(s Sample) bool {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.closing {
		return false
	}
	for _, ch := range m.subscribers {
		select {
		case ch <- s:
		default:
			m.dropped.Add(1)
		}
	}
	return true
}

func (m *Mux[T]) Close() error {
	m.subscriberMu.Lock()
	if m.closing {
		m.subscriberMu.Unlock()
		return nil
	}
	m.closing = true
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()
	return m.port.Close()
}
