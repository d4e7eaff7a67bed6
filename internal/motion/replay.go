package motion

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/gait.report/internal/timeutil"
)

// ReplayPort plays recorded device lines back at a fixed interval, looping
// until closed. It stands in for the accelerometer in dev mode.
type ReplayPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewReplaySource returns a Mux fed by lines replayed every interval. When
// loop is false the port reaches EOF after the last line.
func NewReplaySource(lines []string, interval time.Duration, loop bool, clock timeutil.Clock) (*Mux[*ReplayPort], error) {
	if len(lines) == 0 {
		return nil, errors.New("replay fixture has no lines")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("invalid replay interval %v", interval)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	r, w := io.Pipe()
	p := &ReplayPort{
		r:    r,
		w:    w,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.play(lines, interval, loop, clock)

	m := NewMux(p)
	m.SetClock(clock)
	return m, nil
}

func (p *ReplayPort) play(lines []string, interval time.Duration, loop bool, clock timeutil.Clock) {
	defer close(p.done)
	defer p.w.Close()

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		if i == len(lines) {
			if !loop {
				return
			}
			i = 0
		}
		select {
		case <-p.stop:
			return
		case <-ticker.C():
		}
		if _, err := io.WriteString(p.w, lines[i]+"\n"); err != nil {
			return
		}
	}
}

func (p *ReplayPort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

// Close stops playback and unblocks any pending Read.
func (p *ReplayPort) Close() error {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.r.Close()
	})
	<-p.done
	return nil
}

// LoadFixture reads replay lines from path. Blank lines and lines starting
// with '#' are skipped.
func LoadFixture(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()

	var lines []string
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixture %s has no sample lines", path)
	}
	return lines, nil
}
