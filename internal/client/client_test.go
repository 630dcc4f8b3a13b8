package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/groblegark/tempo/internal/model"
)

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/status" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"state":"tracking","session_secs":300,"version":"1.0.0"}`))
	}))
	defer srv.Close()

	st, err := New(srv.URL).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != model.StateTracking || st.SessionSecs != 300 || st.Version != "1.0.0" {
		t.Errorf("status = %+v", st)
	}
}

func TestControlEndpoints(t *testing.T) {
	var gotPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotPaths = append(gotPaths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()
	calls := []func() (*ControlResponse, error){
		func() (*ControlResponse, error) { return c.Start(ctx) },
		func() (*ControlResponse, error) { return c.Pause(ctx) },
		func() (*ControlResponse, error) { return c.Resume(ctx) },
		func() (*ControlResponse, error) { return c.Stop(ctx) },
	}
	for i, call := range calls {
		out, err := call()
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !out.Success {
			t.Errorf("call %d success = false", i)
		}
	}
	want := []string{"/v1/start", "/v1/pause", "/v1/resume", "/v1/stop"}
	for i, p := range want {
		if gotPaths[i] != p {
			t.Errorf("path %d = %s, want %s", i, gotPaths[i], p)
		}
	}
}

func TestControlConflictSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"message":"already tracking"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Start(context.Background())
	if err == nil {
		t.Fatal("expected error on 409")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "already tracking" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestSetIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/issue" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["issue_key"] != "PROJ-1" {
			t.Errorf("issue_key = %q", body["issue_key"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"issue override set to PROJ-1"}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL).SetIssue(context.Background(), "PROJ-1")
	if err != nil {
		t.Fatalf("SetIssue: %v", err)
	}
	if !out.Success {
		t.Error("success = false")
	}
}

func TestSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q, want 5", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sessions":[{"id":"ts-2","started_at":"2026-08-28T09:00:00Z","state":"stopped"}]}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL).Sessions(context.Background(), 5)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(out.Sessions) != 1 || out.Sessions[0].ID != "ts-2" {
		t.Errorf("sessions = %+v", out.Sessions)
	}
}

func TestExport(t *testing.T) {
	const csv = "Timestamp,Duration (seconds)\n\"2026-08-28T09:00:00Z\",60\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "csv" {
			t.Errorf("format = %q", got)
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(csv))
	}))
	defer srv.Close()

	body, err := New(srv.URL).Export(context.Background(), "csv")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if string(body) != csv {
		t.Errorf("body = %q", body)
	}
}

func TestExport_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no active session found"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Export(context.Background(), "csv")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "no active session") {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if err := New(srv.URL).Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestHealth_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := New(srv.URL).Health(context.Background()); err == nil {
		t.Fatal("expected error when daemon is down")
	}
}
