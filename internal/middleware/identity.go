package middleware

import (
	"crm-service/internal/scope"
	"crm-service/pkg/database"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// IdentityKey is the context key under which the resolved identity is stored.
const IdentityKey = "identity"

// IdentityMiddleware resolves the authenticated user into a scoped Identity
// (role + tenant) and stores it in the context. Runs after AuthMiddleware.
// A non-organisor account with no Agent row is rejected here rather than
// faulting deeper in a handler.
func IdentityMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		userID, ok := c.Get("user_id").(uint)
		if !ok {
			log.Error("Failed to get user ID from context")
			prometheus.RecordAuthError("missing_user_context")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}

		identity, err := scope.Resolve(database.GetDB(), userID)
		if err != nil {
			if errors.Is(err, scope.ErrForbidden) {
				log.Warn("User has no tenant scope", zap.Uint("user_id", userID))
				prometheus.RecordAuthError("no_tenant_scope")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account is not associated with any organisation"})
			}
			log.Error("Failed to resolve identity", zap.Uint("user_id", userID), zap.Error(err))
			prometheus.RecordAuthError("identity_resolution_failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to resolve identity"})
		}

		c.Set(IdentityKey, identity)
		return next(c)
	}
}
