package motion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gait.report/internal/timeutil"
)

func TestLoadFixture(t *testing.T) {
	lines, err := LoadFixture(filepath.Join("testdata", "mixed.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0.12,-9.79,0.33",
		`{"x": 1.5, "y": -9.6, "z": 0.2}`,
		"not a sample",
		`{"accelerationIncludingGravity": {"x": 2.25, "y": null, "z": -0.5}}`,
		"3.0,,1.0",
	}, lines)

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n\n"), 0o644))
	_, err = LoadFixture(empty)
	assert.Error(t, err)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestDemoFixtureParses(t *testing.T) {
	lines, err := LoadFixture(filepath.Join("..", "..", "config", "fixtures", "demo.csv"))
	require.NoError(t, err)
	for _, line := range lines {
		_, err := ParseSample(line)
		require.NoError(t, err, line)
	}
}

func TestReplaySource_PlaysOnTicks(t *testing.T) {
	quietLogs(t)
	lines, err := LoadFixture(filepath.Join("testdata", "mixed.txt"))
	require.NoError(t, err)

	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	src, err := NewReplaySource(lines, 100*time.Millisecond, false, clock)
	require.NoError(t, err)
	defer src.Close()

	_, ch := src.Subscribe()
	done := make(chan error, 1)
	go func() { done <- src.Monitor(context.Background()) }()

	require.Eventually(t, func() bool { return clock.ActiveTickers() == 1 }, time.Second, time.Millisecond)

	var got [][3]float64
	for len(got) < 4 {
		clock.Advance(100 * time.Millisecond)
		select {
		case s := <-ch:
			got = append(got, s.Features())
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.Equal(t, [][3]float64{
		{0.12, -9.79, 0.33},
		{1.5, -9.6, 0.2},
		{2.25, 0, -0.5},
		{3, 0, 1},
	}, got)

	select {
	case err := <-done:
		assert.NoError(t, err, "non-looping replay ends with EOF")
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after the last line")
	}
	assert.Equal(t, uint64(1), src.Counters().Rejected)
}

func TestReplaySource_CloseStopsLoop(t *testing.T) {
	quietLogs(t)
	src, err := NewReplaySource([]string{"1,1,1"}, time.Millisecond, true, nil)
	require.NoError(t, err)

	_, ch := src.Subscribe()
	go src.Monitor(context.Background())

	receive(t, ch)
	receive(t, ch)
	require.NoError(t, src.Close())
}

func TestNewReplaySource_Invalid(t *testing.T) {
	_, err := NewReplaySource(nil, time.Second, true, nil)
	assert.Error(t, err)
	_, err = NewReplaySource([]string{"1,2,3"}, 0, true, nil)
	assert.Error(t, err)
}
