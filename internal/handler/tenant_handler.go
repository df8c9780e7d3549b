package handler

import (
	"net/http"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/database"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// DeleteTenant removes the organisor's tenant: every Lead, Category and
// Agent of the organisation goes in one transaction, together with the
// agents' user accounts and the UserProfile itself. The organisor's own
// user account survives without a tenant.
func DeleteTenant(c echo.Context) error {
	log := logger.FromContext(c)

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if !identity.Organisor() {
		log.Warn("Agent attempted tenant deletion", zap.Uint("user_id", identity.UserID))
		prometheus.RecordScopeError("tenant", "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only organisors may delete their organisation"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	if result := tx.Where("organisation_id = ?", identity.ProfileID).Delete(&model.Lead{}); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to delete tenant leads", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete organisation"})
	}
	if result := tx.Where("organisation_id = ?", identity.ProfileID).Delete(&model.Category{}); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to delete tenant categories", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete organisation"})
	}

	// Remove agents and their user accounts
	var agents []model.Agent
	if err := tx.Where("organisation_id = ?", identity.ProfileID).Find(&agents).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to load tenant agents", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete organisation"})
	}
	if len(agents) > 0 {
		userIDs := make([]uint, 0, len(agents))
		for _, a := range agents {
			userIDs = append(userIDs, a.UserID)
		}
		if result := tx.Where("organisation_id = ?", identity.ProfileID).Delete(&model.Agent{}); result.Error != nil {
			tx.Rollback()
			log.Error("Failed to delete tenant agents", zap.Error(result.Error))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete organisation"})
		}
		if result := tx.Where("user_id IN ?", userIDs).Delete(&model.UserProfile{}); result.Error != nil {
			tx.Rollback()
			log.Error("Failed to delete agent profiles", zap.Error(result.Error))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete organisation"})
		}
		if result := tx.Delete(&model.User{}, userIDs); result.Error != nil {
			tx.Rollback()
			log.Error("Failed to delete agent users", zap.Error(result.Error))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete organisation"})
		}
	}

	if result := tx.Delete(&model.UserProfile{}, identity.ProfileID); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to delete user profile", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete organisation"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete organisation"})
	}

	log.Info("Tenant deleted",
		zap.Uint("profile_id", identity.ProfileID),
		zap.Int("agents_removed", len(agents)))
	return c.JSON(http.StatusOK, echo.Map{"message": "organisation deleted"})
}
