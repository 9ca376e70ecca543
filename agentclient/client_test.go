package agentclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchsignal/orchestrator/ratelimit"
)

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			t.Errorf("path = %s, want /execute", r.URL.Path)
		}
		if got := r.Header.Get("X-Tenant-ID"); got != "tenant-1" {
			t.Errorf("X-Tenant-ID = %s", got)
		}
		var req ExecuteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Action != "GENERATE_CONTENT" {
			t.Errorf("action = %s", req.Action)
		}
		json.NewEncoder(w).Encode(ExecuteResponse{
			Success: true,
			Result:  map[string]interface{}{"content_id": "c-42"},
		})
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, nil)
	result, err := c.Execute(context.Background(), srv.URL, &ExecuteRequest{
		Action:   "GENERATE_CONTENT",
		TenantID: "tenant-1",
		Params:   map[string]interface{}{"topic": "launch"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result["content_id"] != "c-42" {
		t.Errorf("result = %v", result)
	}
}

func TestExecuteAgentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ExecuteResponse{Success: false, Error: "model unavailable"})
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, nil)
	_, err := c.Execute(context.Background(), srv.URL, &ExecuteRequest{Action: "CREATE_VIDEO", TenantID: "t"})
	if err == nil {
		t.Fatal("expected error for unsuccessful response")
	}
}

func TestExecuteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, nil)
	_, err := c.Execute(context.Background(), srv.URL, &ExecuteRequest{Action: "X", TenantID: "t"})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestExecuteRateLimited(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(ExecuteResponse{Success: true})
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, ratelimit.New(1, 0, time.Minute))
	ctx := context.Background()
	req := &ExecuteRequest{Action: "X", TenantID: "t"}
	if _, err := c.Execute(ctx, srv.URL, req); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Execute(ctx, srv.URL, req); err != ratelimit.ErrLimited {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("server saw %d calls, want 1 (rejection must be local)", calls)
	}
}
