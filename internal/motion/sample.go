// Package motion reads 3-axis acceleration samples from a line-oriented
// accelerometer feed and fans them out to subscribers.
package motion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyLine     = errors.New("empty sample line")
	ErrInvalidSample = errors.New("invalid sample line")
)

// Sample is one acceleration reading in m/s².
type Sample struct {
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Z        float64   `json:"z"`
	Received time.Time `json:"received"`
}

// Features returns the sample in the order the classification service expects.
func (s Sample) Features() [3]float64 {
	return [3]float64{s.X, s.Y, s.Z}
}

type axes struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

type jsonSample struct {
	axes
	AccelerationIncludingGravity *axes `json:"accelerationIncludingGravity"`
	Acceleration                 *axes `json:"acceleration"`
}

// ParseSample decodes one line from the device. Accepted shapes are CSV
// "x,y,z", a flat JSON object {"x":..,"y":..,"z":..}, or a DeviceMotion event
// with accelerationIncludingGravity (preferred) or acceleration. Missing, null
// or empty axes read as zero.
func ParseSample(line string) (Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Sample{}, ErrEmptyLine
	}

	var (
		s   Sample
		err error
	)
	if strings.HasPrefix(line, "{") {
		s, err = parseJSON(line)
	} else {
		s, err = parseCSV(line)
	}
	if err != nil {
		return Sample{}, err
	}
	for _, v := range s.Features() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, fmt.Errorf("%w: non-finite axis in %q", ErrInvalidSample, line)
		}
	}
	return s, nil
}

func parseJSON(line string) (Sample, error) {
	var js jsonSample
	if err := json.Unmarshal([]byte(line), &js); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	a := js.axes
	switch {
	case js.AccelerationIncludingGravity != nil:
		a = *js.AccelerationIncludingGravity
	case js.Acceleration != nil:
		a = *js.Acceleration
	}
	return Sample{X: orZero(a.X), Y: orZero(a.Y), Z: orZero(a.Z)}, nil
}

func parseCSV(line string) (Sample, error) {
	fields := strings.Split(line, ",")
	if len(fields) > 3 {
		return Sample{}, fmt.Errorf("%w: %d fields in %q", ErrInvalidSample, len(fields), line)
	}
	var v [3]float64
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || strings.EqualFold(f, "null") {
			continue
		}
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: axis %d: %v", ErrInvalidSample, i, err)
		}
		v[i] = n
	}
	return Sample{X: v[0], Y: v[1], Z: v[2]}, nil
}

func orZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
