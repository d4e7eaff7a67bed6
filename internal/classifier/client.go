package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/gait.report/internal/httputil"
)

var (
	// ErrUnavailable covers transport failures and 5xx answers.
	ErrUnavailable = errors.New("classification service unavailable")
	// ErrRejected covers 4xx answers: the service refused the request.
	ErrRejected = errors.New("classification service rejected request")
	// ErrMalformed covers responses that could not be decoded or validated.
	ErrMalformed = errors.New("malformed classification service response")
)

// probabilitySumTolerance is how far the class probabilities may drift from 1.
const probabilitySumTolerance = 0.05

// Client talks to the classification service over HTTP/JSON.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
	timeout time.Duration
}

// NewClient returns a Client for the service rooted at baseURL. A zero timeout
// leaves request deadlines to the caller's context.
func NewClient(baseURL string, c httputil.HTTPClient, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    c,
		timeout: timeout,
	}
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

// predictResponse keeps every field as raw JSON so that "prediction" can be a
// number or a string and a missing movement_type can be told apart from "".
type predictResponse struct {
	Prediction    json.RawMessage `json:"prediction"`
	MovementType  *string         `json:"movement_type"`
	Probabilities []float64       `json:"probabilities"`
	Warning       *string         `json:"warning"`
	UnknownCount  int             `json:"unknown_movement_count"`
	Error         string          `json:"error"`
}

// Predict classifies one acceleration sample. It never returns a partial or
// default Result: on failure the error wraps ErrUnavailable, ErrRejected or
// ErrMalformed.
func (c *Client) Predict(ctx context.Context, features [3]float64) (Result, error) {
	var resp predictResponse
	if err := c.post(ctx, "/predict", predictRequest{Features: features[:]}, &resp); err != nil {
		return Result{}, err
	}
	return resp.result()
}

func (r predictResponse) result() (Result, error) {
	if r.Error != "" {
		return Result{}, fmt.Errorf("%w: service error %q", ErrMalformed, r.Error)
	}
	if r.MovementType == nil {
		return Result{}, fmt.Errorf("%w: missing movement_type", ErrMalformed)
	}
	if len(r.Probabilities) == 0 {
		return Result{}, fmt.Errorf("%w: empty probabilities", ErrMalformed)
	}
	for i, p := range r.Probabilities {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return Result{}, fmt.Errorf("%w: probability[%d]=%v outside [0,1]", ErrMalformed, i, p)
		}
	}
	if sum := floats.Sum(r.Probabilities); math.Abs(sum-1) > probabilitySumTolerance {
		return Result{}, fmt.Errorf("%w: probabilities sum to %.3f", ErrMalformed, sum)
	}

	res := Result{
		Label:         predictionLabel(r.Prediction),
		Movement:      ParseMovementType(*r.MovementType),
		MovementRaw:   *r.MovementType,
		Probabilities: append([]float64(nil), r.Probabilities...),
		UnknownCount:  r.UnknownCount,
	}
	if r.Warning != nil {
		res.Warning = *r.Warning
	}
	return res, nil
}

func predictionLabel(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return string(raw)
}

// Summary fetches the aggregate session metrics.
func (c *Client) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	if err := c.post(ctx, "/session_summary", nil, &s); err != nil {
		return Summary{}, err
	}
	if s.TotalWalkingTime < 0 || s.TotalRunningTime < 0 || s.SessionDuration < 0 ||
		s.TotalIrregularMovements < 0 || s.TotalWalkingSessions < 0 || s.TotalRunningSessions < 0 {
		return Summary{}, fmt.Errorf("%w: negative summary field", ErrMalformed)
	}
	return s, nil
}

// Reset asks the service to drop its session data. The acknowledgement body is
// ignored.
func (c *Client) Reset(ctx context.Context) error {
	return c.post(ctx, "/reset_session", nil, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	data, err := httputil.PostJSON(ctx, c.http, c.baseURL+path, in)
	if err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return nil
}
