package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/launchsignal/orchestrator/domain"
)

func TestGeneratePlanSuccess(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	body, _ := json.Marshal(map[string]interface{}{
		"tenant_id":      "tenant-1",
		"session_id":     "sess-1",
		"user_id":        "user-1",
		"trend_analysis": testTrend(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/generate", strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GeneratePlan(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result domain.PlanResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Plan == nil || len(result.Plan.Actions) == 0 {
		t.Fatalf("expected a plan with actions, got %+v", result)
	}
	if result.ConfidenceScore < 0 || result.ConfidenceScore > 1 {
		t.Fatalf("confidence out of range: %f", result.ConfidenceScore)
	}
}

func TestGeneratePlanMissingTenant(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/plans/generate", strings.NewReader(`{"session_id":"s1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GeneratePlan(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestExecutePlanRunsSaga(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	body, _ := json.Marshal(map[string]interface{}{
		"tenant_id":      "tenant-1",
		"session_id":     "sess-1",
		"trend_analysis": testTrend(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/execute", strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ExecutePlan(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Saga *domain.SagaTransaction `json:"saga"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Saga == nil || resp.Saga.Status != domain.SagaStatusCompleted {
		t.Fatalf("expected completed saga, got %+v", resp.Saga)
	}
}
