package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/launchsignal/orchestrator/saga"
)

// GetSaga returns one saga transaction.
// GET /v1/sagas/:saga_id
func (h *Handler) GetSaga(c echo.Context) error {
	ctx := c.Request().Context()
	sagaID := c.Param("saga_id")

	sagaTx, err := h.sagas.GetSaga(ctx, sagaID)
	if err != nil {
		if errors.Is(err, saga.ErrSagaNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "saga not found"})
		}
		log.Printf("ERROR: failed to get saga: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get saga"})
	}
	if err := checkTenant(c, sagaTx.TenantID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sagaTx)
}

// GetTenantSagas lists a tenant's sagas, newest first.
// GET /v1/sagas/tenant/:tenant_id
func (h *Handler) GetTenantSagas(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := c.Param("tenant_id")

	if err := checkTenant(c, tenantID); err != nil {
		return err
	}

	sagas, err := h.sagas.GetTenantSagas(ctx, tenantID)
	if err != nil {
		log.Printf("ERROR: failed to list sagas: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list sagas"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sagas": sagas,
		"count": len(sagas),
	})
}
