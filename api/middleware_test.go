package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, tenantID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"tenant_id": tenantID})
	s, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func authedRequest(t *testing.T, h *Handler, token, tenantID string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()

	body := `{"tenant_id":"` + tenantID + `","session_id":"s1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/generate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := TenantAuth(testSecret)(h.GeneratePlan)
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestTenantAuthMissingToken(t *testing.T) {
	h := newTestHandler(t)
	rec := authedRequest(t, h, "", "tenant-1")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTenantAuthInvalidToken(t *testing.T) {
	h := newTestHandler(t)
	rec := authedRequest(t, h, "not-a-jwt", "tenant-1")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTenantAuthWrongTenant(t *testing.T) {
	h := newTestHandler(t)
	rec := authedRequest(t, h, signToken(t, "tenant-2"), "tenant-1")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestTenantAuthMatchingTenant(t *testing.T) {
	h := newTestHandler(t)
	rec := authedRequest(t, h, signToken(t, "tenant-1"), "tenant-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
