package handler

import (
	"net/http"
	"strconv"
	"time"

	"crm-service/internal/model"
	"crm-service/internal/scope"
	"crm-service/pkg/database"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ListCategories returns the tenant's pipeline stages and the number of
// tenant leads that have no stage yet. Agents see the whole tenant's
// pipeline, not only stages their own leads occupy.
func ListCategories(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCategoryOperation("list")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var categories []model.Category
	if err := scope.Categories(database.GetDB(), identity).Find(&categories).Error; err != nil {
		log.Error("Failed to list categories", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list categories"})
	}

	var uncategorized int64
	database.GetDB().Model(&model.Lead{}).
		Where("organisation_id = ? AND category_id IS NULL", identity.ProfileID).
		Count(&uncategorized)

	return c.JSON(http.StatusOK, echo.Map{
		"categories":            categories,
		"unassigned_lead_count": uncategorized,
	})
}

// GetCategory returns one category within the requester's tenant.
func GetCategory(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCategoryOperation("get")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid category ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid category ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var category model.Category
	result := scope.Categories(database.GetDB(), identity).Where("categories.id = ?", id).First(&category)
	if result.Error != nil {
		if notFound(result.Error) {
			prometheus.RecordScopeError("category", "not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "category not found"})
		}
		log.Error("Failed to fetch category", zap.Uint64("id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch category"})
	}

	return c.JSON(http.StatusOK, category)
}

// CreateCategory adds a pipeline stage to the requester's tenant.
func CreateCategory(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCategoryOperation("create")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}
	if req.Name == "" {
		prometheus.RecordScopeError("category", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	category := model.Category{
		Name:           req.Name,
		OrganisationID: identity.ProfileID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&category); result.Error != nil {
		log.Error("Failed to create category", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create category"})
	}

	log.Info("Category created",
		zap.Uint("id", category.ID),
		zap.String("name", category.Name),
		zap.Uint("organisation_id", category.OrganisationID))
	return c.JSON(http.StatusCreated, category)
}

// UpdateCategory renames a pipeline stage within the requester's tenant.
func UpdateCategory(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCategoryOperation("update")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid category ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid category ID"})
	}

	var category model.Category
	result := scope.Categories(database.GetDB(), identity).Where("categories.id = ?", id).First(&category)
	if result.Error != nil {
		if notFound(result.Error) {
			prometheus.RecordScopeError("category", "not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "category not found"})
		}
		log.Error("Failed to fetch category", zap.Uint64("id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch category"})
	}

	// Prefill so a request without a name keeps the current one.
	req := struct {
		Name string `json:"name"`
	}{Name: category.Name}
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}
	if req.Name == "" {
		prometheus.RecordScopeError("category", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	category.Name = req.Name

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Save(&category); result.Error != nil {
		log.Error("Failed to update category", zap.Uint("id", category.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update category"})
	}

	log.Info("Category updated", zap.Uint("id", category.ID))
	return c.JSON(http.StatusOK, category)
}

// DeleteCategory removes a pipeline stage. Organisor-only; leads in the
// stage are detached, not deleted.
func DeleteCategory(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCategoryOperation("delete")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if !identity.Organisor() {
		log.Warn("Agent attempted category deletion", zap.Uint("user_id", identity.UserID))
		prometheus.RecordScopeError("category", "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only organisors may delete categories"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid category ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid category ID"})
	}

	var category model.Category
	result := scope.Categories(database.GetDB(), identity).Where("categories.id = ?", id).First(&category)
	if result.Error != nil {
		if notFound(result.Error) {
			prometheus.RecordScopeError("category", "not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "category not found"})
		}
		log.Error("Failed to fetch category", zap.Uint64("id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch category"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	if result := tx.Model(&model.Lead{}).Where("category_id = ?", category.ID).Update("category_id", nil); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to detach leads", zap.Uint("category_id", category.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete category"})
	}
	if result := tx.Delete(&category); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to delete category", zap.Uint("id", category.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete category"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete category"})
	}

	log.Info("Category deleted", zap.Uint("id", category.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "category deleted"})
}
