package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStandardClient_Wraps(t *testing.T) {
	customClient := &http.Client{}
	client := NewStandardClient(customClient)

	if client.Client != customClient {
		t.Error("expected custom client to be wrapped")
	}
	if NewStandardClient(nil).Client != http.DefaultClient {
		t.Error("expected nil client to fall back to http.DefaultClient")
	}
}

func TestPostJSON_EncodesBodyAndReturnsResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"ok":true}`)

	data, err := PostJSON(context.Background(), mock, "http://svc/predict", map[string]any{"features": []float64{1, 2, 3}})
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("got body %q", data)
	}

	req, body := mock.Request(0)
	if req == nil {
		t.Fatal("expected request to be recorded")
	}
	if req.Method != http.MethodPost {
		t.Errorf("got method %s, want POST", req.Method)
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("got Content-Type %q", req.Header.Get("Content-Type"))
	}
	if body != `{"features":[1,2,3]}` {
		t.Errorf("got request body %q", body)
	}
}

func TestPostJSON_NilBody(t *testing.T) {
	mock := NewMockHTTPClient()
	if _, err := PostJSON(context.Background(), mock, "http://svc/reset_session", nil); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if _, body := mock.Request(0); body != "" {
		t.Errorf("expected empty body, got %q", body)
	}
}

func TestPostJSON_StatusError(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusInternalServerError, `{"error":"model not loaded"}`)

	_, err := PostJSON(context.Background(), mock, "http://svc/predict", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", se.StatusCode)
	}
}

func TestPostJSON_TransportError(t *testing.T) {
	mock := NewMockHTTPClient()
	refused := errors.New("connection refused")
	mock.AddErrorResponse(refused)

	_, err := PostJSON(context.Background(), mock, "http://svc/predict", nil)
	if !errors.Is(err, refused) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestPostJSON_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))
	defer srv.Close()

	data, err := PostJSON(context.Background(), NewStandardClient(srv.Client()), srv.URL, []int{4, 5})
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if string(data) != "[4,5]" {
		t.Errorf("echo = %q", data)
	}
}

func TestMockHTTPClient_DefaultResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	req, _ := http.NewRequest(http.MethodPost, "http://svc/x", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("default status = %d", resp.StatusCode)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("RequestCount() = %d", mock.RequestCount())
	}
	if r, _ := mock.Request(5); r != nil {
		t.Error("out-of-range Request should return nil")
	}
}
