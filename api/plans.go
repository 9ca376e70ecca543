package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/launchsignal/orchestrator/domain"
)

type planRequest struct {
	TenantID  string               `json:"tenant_id"`
	SessionID string               `json:"session_id"`
	UserID    string               `json:"user_id"`
	Trend     domain.TrendAnalysis `json:"trend_analysis"`
}

// GeneratePlan produces an execution plan for a trend without running it.
// POST /v1/plans/generate
func (h *Handler) GeneratePlan(c echo.Context) error {
	ctx := c.Request().Context()

	var req planRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.TenantID == "" || req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "tenant_id and session_id are required"})
	}
	if err := checkTenant(c, req.TenantID); err != nil {
		return err
	}

	result, err := h.planner.GeneratePlan(ctx, req.TenantID, req.SessionID, req.UserID, req.Trend)
	if err != nil {
		log.Printf("ERROR: failed to generate plan: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to generate plan"})
	}
	return c.JSON(http.StatusOK, result)
}

// ExecutePlan generates a plan and runs it as a saga. Execution is
// synchronous when the saga is short; clients needing progress poll
// GET /v1/sagas/:saga_id.
// POST /v1/plans/execute
func (h *Handler) ExecutePlan(c echo.Context) error {
	ctx := c.Request().Context()

	var req planRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.TenantID == "" || req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "tenant_id and session_id are required"})
	}
	if err := checkTenant(c, req.TenantID); err != nil {
		return err
	}

	result, sagaTx, err := h.meta.ProcessWithPlanning(ctx, req.TenantID, req.SessionID, req.UserID, req.Trend)
	if err != nil {
		log.Printf("ERROR: failed to execute plan: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to execute plan"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"plan": result,
		"saga": sagaTx,
	})
}
