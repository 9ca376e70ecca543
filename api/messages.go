package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/launchsignal/orchestrator/service"
)

// InteractiveMessage routes a user message through intent detection.
// POST /v1/messages/interactive
func (h *Handler) InteractiveMessage(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.MessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.TenantID == "" || req.SessionID == "" || req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "tenant_id, session_id and text are required"})
	}
	if err := checkTenant(c, req.TenantID); err != nil {
		return err
	}

	resp, err := h.meta.ProcessUserMessage(ctx, &req)
	if err != nil {
		log.Printf("ERROR: failed to process message: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to process message"})
	}
	return c.JSON(http.StatusOK, resp)
}
