package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const tenantContextKey = "auth_tenant_id"

// TenantAuth validates a bearer token (HS256) and stores its tenant_id
// claim on the request context. Handlers then reject requests that
// touch any other tenant.
func TenantAuth(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			}
			tokenStr := strings.TrimPrefix(auth, "Bearer ")

			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token claims"})
			}
			tenantID, _ := claims["tenant_id"].(string)
			if tenantID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "token has no tenant_id claim"})
			}

			c.Set(tenantContextKey, tenantID)
			return next(c)
		}
	}
}

// checkTenant rejects a request whose authenticated tenant does not
// match the tenant it is touching. With auth disabled nothing is set
// on the context and every tenant is allowed.
func checkTenant(c echo.Context, tenantID string) error {
	authTenant, _ := c.Get(tenantContextKey).(string)
	if authTenant == "" || authTenant == tenantID {
		return nil
	}
	return c.JSON(http.StatusForbidden, map[string]string{"error": "tenant mismatch"})
}
