package motion

import (
	"errors"
	"testing"
)

func TestParseSample(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    [3]float64
		wantErr error
	}{
		{name: "csv", line: "0.12,-9.79,0.33", want: [3]float64{0.12, -9.79, 0.33}},
		{name: "csv with spaces", line: " 1 , 2 , 3 ", want: [3]float64{1, 2, 3}},
		{name: "csv empty axis", line: "3.0,,1.0", want: [3]float64{3, 0, 1}},
		{name: "csv null axis", line: "null,2,3", want: [3]float64{0, 2, 3}},
		{name: "csv missing trailing axes", line: "4.5", want: [3]float64{4.5, 0, 0}},
		{name: "json", line: `{"x": 1.5, "y": -9.6, "z": 0.2}`, want: [3]float64{1.5, -9.6, 0.2}},
		{name: "json missing axis", line: `{"x": 1}`, want: [3]float64{1, 0, 0}},
		{name: "json null axes", line: `{"x": null, "y": null, "z": null}`, want: [3]float64{}},
		{
			name: "device motion with gravity",
			line: `{"accelerationIncludingGravity": {"x": 2.25, "y": null, "z": -0.5}}`,
			want: [3]float64{2.25, 0, -0.5},
		},
		{
			name: "device motion prefers gravity reading",
			line: `{"acceleration": {"x": 9}, "accelerationIncludingGravity": {"x": 1}}`,
			want: [3]float64{1, 0, 0},
		},
		{name: "device motion acceleration only", line: `{"acceleration": {"z": 7}}`, want: [3]float64{0, 0, 7}},
		{name: "empty", line: "   ", wantErr: ErrEmptyLine},
		{name: "text", line: "not a sample", wantErr: ErrInvalidSample},
		{name: "too many fields", line: "1,2,3,4", wantErr: ErrInvalidSample},
		{name: "broken json", line: `{"x": 1`, wantErr: ErrInvalidSample},
		{name: "json wrong type", line: `{"x": "fast"}`, wantErr: ErrInvalidSample},
		{name: "nan", line: "NaN,0,0", wantErr: ErrInvalidSample},
		{name: "inf", line: "0,+Inf,0", wantErr: ErrInvalidSample},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSample(tc.line)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ParseSample(%q) error = %v, want %v", tc.line, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSample(%q) unexpected error: %v", tc.line, err)
			}
			if got.Features() != tc.want {
				t.Errorf("ParseSample(%q) = %v, want %v", tc.line, got.Features(), tc.want)
			}
		})
	}
}
