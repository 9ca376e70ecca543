package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/launchsignal/orchestrator/store"
)

// GetSessionTurns returns a session's conversation turns, newest first.
// GET /v1/sessions/:session_id/turns?tenant_id=&limit=
func (h *Handler) GetSessionTurns(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")
	tenantID := c.QueryParam("tenant_id")
	if tenantID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
	}
	if err := checkTenant(c, tenantID); err != nil {
		return err
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 50
	}

	turns, err := h.sessions.GetRecentTurns(ctx, sessionID, tenantID, limit)
	if err != nil {
		log.Printf("ERROR: failed to get turns: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get turns"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"turns": turns,
		"count": len(turns),
	})
}

// GetSessionSummary returns the aggregate view of a session context.
// GET /v1/sessions/:session_id/summary?tenant_id=
func (h *Handler) GetSessionSummary(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")
	tenantID := c.QueryParam("tenant_id")
	if tenantID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
	}
	if err := checkTenant(c, tenantID); err != nil {
		return err
	}

	summary, err := h.sessions.GetSessionSummary(ctx, sessionID, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		log.Printf("ERROR: failed to get session summary: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get session summary"})
	}
	return c.JSON(http.StatusOK, summary)
}

// DeleteSession removes a session context and all of its turns.
// DELETE /v1/sessions/:session_id?tenant_id=
func (h *Handler) DeleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")
	tenantID := c.QueryParam("tenant_id")
	if tenantID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
	}
	if err := checkTenant(c, tenantID); err != nil {
		return err
	}

	if err := h.sessions.DeleteSession(ctx, sessionID, tenantID); err != nil {
		log.Printf("ERROR: failed to delete session: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete session"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
