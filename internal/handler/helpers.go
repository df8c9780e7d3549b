package handler

import (
	"errors"
	"strings"

	"crm-service/internal/middleware"
	"crm-service/internal/scope"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// identityFrom pulls the resolved identity placed in the context by
// IdentityMiddleware.
func identityFrom(c echo.Context) (scope.Identity, bool) {
	identity, ok := c.Get(middleware.IdentityKey).(scope.Identity)
	return identity, ok
}

// notFound reports whether err means the row is missing or outside the
// caller's scope. Both cases answer identically so cross-tenant existence
// never leaks.
func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, scope.ErrNotFound)
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// Matches both the postgres and sqlite message shapes since GORM does not
// translate driver errors by default.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, scope.ErrIntegrity) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
