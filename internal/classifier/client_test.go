package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gait.report/internal/httputil"
)

func TestParseMovementType(t *testing.T) {
	tests := map[string]MovementType{
		"Walking":          MovementWalking,
		"Running":          MovementRunning,
		"Irregular":        MovementIrregular,
		"Unknown":          MovementUnknown,
		"Unknown Movement": MovementUnknown,
		" Walking ":        MovementWalking,
		"Jogging":          MovementOther,
		"Stair Climbing":   MovementOther,
		"":                 MovementOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseMovementType(in), "ParseMovementType(%q)", in)
	}
}

func TestResult_Confidence(t *testing.T) {
	assert.InDelta(t, 0.7, Result{Probabilities: []float64{0.1, 0.7, 0.2}}.Confidence(), 1e-9)
	assert.Zero(t, Result{}.Confidence())
}

func TestPredict_DecodesResponse(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"prediction": 1, "movement_type": "Walking", "probabilities": [0.8, 0.1, 0.1], "unknown_movement_count": 0, "warning": null}`)

	c := NewClient("http://svc/", mock, time.Second)
	res, err := c.Predict(context.Background(), [3]float64{0.5, -9.8, 1.25})
	require.NoError(t, err)

	assert.Equal(t, "1", res.Label)
	assert.Equal(t, MovementWalking, res.Movement)
	assert.Equal(t, "Walking", res.MovementRaw)
	assert.Equal(t, []float64{0.8, 0.1, 0.1}, res.Probabilities)
	assert.Empty(t, res.Warning)

	req, body := mock.Request(0)
	require.NotNil(t, req)
	assert.Equal(t, "http://svc/predict", req.URL.String())

	var sent struct {
		Features []float64 `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &sent))
	assert.Equal(t, []float64{0.5, -9.8, 1.25}, sent.Features)
}

func TestPredict_WarningAndStringLabel(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"prediction": "walk", "movement_type": "Unknown Movement", "probabilities": [0.5, 0.5], "warning": "Are you okay?"}`)

	res, err := NewClient("http://svc", mock, 0).Predict(context.Background(), [3]float64{})
	require.NoError(t, err)
	assert.Equal(t, "walk", res.Label)
	assert.Equal(t, MovementUnknown, res.Movement)
	assert.Equal(t, "Are you okay?", res.Warning)
}

func TestPredict_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		err     error
		wantErr error
	}{
		{name: "transport", err: errors.New("connection refused"), wantErr: ErrUnavailable},
		{name: "server error", status: 500, body: `{"error":"boom"}`, wantErr: ErrUnavailable},
		{name: "bad request", status: 400, body: `{"error":"Missing 'features' in request"}`, wantErr: ErrRejected},
		{name: "not json", status: 200, body: `<html>`, wantErr: ErrMalformed},
		{name: "missing movement type", status: 200, body: `{"prediction":1,"probabilities":[1]}`, wantErr: ErrMalformed},
		{name: "empty probabilities", status: 200, body: `{"movement_type":"Walking","probabilities":[]}`, wantErr: ErrMalformed},
		{name: "probability out of range", status: 200, body: `{"movement_type":"Walking","probabilities":[1.5,-0.5]}`, wantErr: ErrMalformed},
		{name: "probabilities do not sum to one", status: 200, body: `{"movement_type":"Walking","probabilities":[0.2,0.2]}`, wantErr: ErrMalformed},
		{name: "error field in 200", status: 200, body: `{"error":"model missing","movement_type":"Walking","probabilities":[1]}`, wantErr: ErrMalformed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := httputil.NewMockHTTPClient()
			if tc.err != nil {
				mock.AddErrorResponse(tc.err)
			} else {
				mock.AddResponse(tc.status, tc.body)
			}

			res, err := NewClient("http://svc", mock, 0).Predict(context.Background(), [3]float64{1, 2, 3})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, Result{}, res, "no default result on failure")
		})
	}
}

func TestSummary(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"total_walking_time": 61.5, "total_running_time": 0, "total_irregular_movements": 3, "session_duration": 120.25, "total_walking_sessions": 1, "total_running_sessions": 0}`)

	c := NewClient("http://svc", mock, 0)
	s, err := c.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{
		TotalWalkingTime:        61.5,
		TotalIrregularMovements: 3,
		SessionDuration:         120.25,
		TotalWalkingSessions:    1,
	}, s)

	req, _ := mock.Request(0)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/session_summary", req.URL.Path)
}

func TestSummary_RejectsNegativeFields(t *testing.T) {
	for _, field := range []string{
		"total_walking_time",
		"total_running_time",
		"total_irregular_movements",
		"session_duration",
		"total_walking_sessions",
		"total_running_sessions",
	} {
		t.Run(field, func(t *testing.T) {
			mock := httputil.NewMockHTTPClient()
			mock.AddResponse(http.StatusOK, `{"`+field+`": -1}`)

			s, err := NewClient("http://svc", mock, 0).Summary(context.Background())
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Equal(t, Summary{}, s)
		})
	}
}

func TestReset(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"message":"Session data reset successfully!"}`)
	mock.AddResponse(http.StatusServiceUnavailable, ``)

	c := NewClient("http://svc", mock, 0)
	require.NoError(t, c.Reset(context.Background()))
	req, _ := mock.Request(0)
	assert.Equal(t, "/reset_session", req.URL.Path)

	assert.ErrorIs(t, c.Reset(context.Background()), ErrUnavailable)
}

func TestClient_TimeoutAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, httputil.NewStandardClient(srv.Client()), 20*time.Millisecond)
	_, err := c.Predict(context.Background(), [3]float64{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
