package handler

import (
	"net/http"
	"strconv"
	"time"

	"crm-service/internal/mailer"
	"crm-service/internal/model"
	"crm-service/internal/scope"
	"crm-service/pkg/database"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AgentRequest defines the structure for agent invitation requests
type AgentRequest struct {
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

// ListAgents returns the tenant's agent roster. Organisor-only.
func ListAgents(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordAgentOperation("list")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	q, err := scope.Agents(database.GetDB(), identity)
	if err != nil {
		log.Warn("Agent attempted roster access", zap.Uint("user_id", identity.UserID))
		prometheus.RecordScopeError("agent", "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only organisors may manage agents"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var agents []model.Agent
	if err := q.Preload("User").Find(&agents).Error; err != nil {
		log.Error("Failed to list agents", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list agents"})
	}

	return c.JSON(http.StatusOK, echo.Map{"agents": agents})
}

// GetAgent returns one agent within the organisor's tenant.
func GetAgent(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordAgentOperation("get")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	q, err := scope.Agents(database.GetDB(), identity)
	if err != nil {
		prometheus.RecordScopeError("agent", "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only organisors may manage agents"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid agent ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid agent ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var agent model.Agent
	result := q.Preload("User").Where("agents.id = ?", id).First(&agent)
	if result.Error != nil {
		if notFound(result.Error) {
			prometheus.RecordScopeError("agent", "not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "agent not found"})
		}
		log.Error("Failed to fetch agent", zap.Uint64("id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch agent"})
	}

	return c.JSON(http.StatusOK, agent)
}

// CreateAgent invites a new agent: a User account and its Agent row bound
// to the organisor's tenant are created in one transaction, then the new
// agent is emailed an invitation.
func CreateAgent(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordAgentOperation("create")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if !identity.Organisor() {
		log.Warn("Agent attempted agent creation", zap.Uint("user_id", identity.UserID))
		prometheus.RecordScopeError("agent", "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only organisors may invite agents"})
	}

	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		prometheus.RecordScopeError("agent", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username, email and password are required"})
	}
	if !model.ValidPhone(req.PhoneNumber) {
		prometheus.RecordScopeError("agent", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid phone number"})
	}

	// Check if user already exists
	var existingUser model.User
	result := database.GetDB().Where("email = ? OR username = ?", req.Email, req.Username).First(&existingUser)
	if result.Error == nil {
		log.Error("User already exists", zap.String("email", req.Email))
		prometheus.RecordScopeError("agent", "integrity")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email or username already registered"})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "agent creation failed"})
	}

	user := model.User{
		Username:    req.Username,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    string(hashedPassword),
		IsOrganisor: false,
		IsAgent:     true,
	}

	// Create user and agent atomically
	defer prometheus.TrackDBOperation("insert")(time.Now())
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	if result := tx.Create(&user); result.Error != nil {
		tx.Rollback()
		if isUniqueViolation(result.Error) {
			prometheus.RecordScopeError("agent", "integrity")
			return c.JSON(http.StatusConflict, echo.Map{"error": "email or username already registered"})
		}
		log.Error("Failed to create agent user", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "agent creation failed"})
	}

	// Every user carries a profile, agents included. The agent's scope still
	// comes from the Agent row, not from this profile.
	profile := model.UserProfile{UserID: user.ID}
	if result := tx.Create(&profile); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create agent profile", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "agent creation failed"})
	}

	agent := model.Agent{
		UserID:         user.ID,
		OrganisationID: identity.ProfileID,
	}
	if result := tx.Create(&agent); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create agent", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "agent creation failed"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "agent creation failed"})
	}

	prometheus.RecordNotification("agent_invite")
	mailer.Notify(log,
		"You are invited to become an agent",
		"You have been added to the CRM system. Log in to start working.",
		user.Email)

	agent.User = user

	log.Info("Agent invited",
		zap.Uint("agent_id", agent.ID),
		zap.String("email", user.Email),
		zap.Uint("organisation_id", agent.OrganisationID))
	return c.JSON(http.StatusCreated, agent)
}

// UpdateAgent updates the contact fields of the wrapped user account.
func UpdateAgent(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordAgentOperation("update")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	q, err := scope.Agents(database.GetDB(), identity)
	if err != nil {
		prometheus.RecordScopeError("agent", "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only organisors may manage agents"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid agent ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid agent ID"})
	}

	var agent model.Agent
	result := q.Preload("User").Where("agents.id = ?", id).First(&agent)
	if result.Error != nil {
		if notFound(result.Error) {
			prometheus.RecordScopeError("agent", "not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "agent not found"})
		}
		log.Error("Failed to fetch agent", zap.Uint64("id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch agent"})
	}

	// Prefill so fields omitted from the request keep their current values.
	req := struct {
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		PhoneNumber string `json:"phone_number"`
	}{
		FirstName:   agent.User.FirstName,
		LastName:    agent.User.LastName,
		PhoneNumber: agent.User.PhoneNumber,
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}
	if !model.ValidPhone(req.PhoneNumber) {
		prometheus.RecordScopeError("agent", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid phone number"})
	}

	agent.User.FirstName = req.FirstName
	agent.User.LastName = req.LastName
	agent.User.PhoneNumber = req.PhoneNumber

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Save(&agent.User); result.Error != nil {
		log.Error("Failed to update agent", zap.Uint("id", agent.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update agent"})
	}

	log.Info("Agent updated", zap.Uint("id", agent.ID))
	return c.JSON(http.StatusOK, agent)
}

// DeleteAgent removes the agent and its user account, first nulling the
// agent reference on any leads still assigned to them.
func DeleteAgent(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordAgentOperation("delete")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	q, err := scope.Agents(database.GetDB(), identity)
	if err != nil {
		prometheus.RecordScopeError("agent", "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only organisors may manage agents"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid agent ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid agent ID"})
	}

	var agent model.Agent
	result := q.Where("agents.id = ?", id).First(&agent)
	if result.Error != nil {
		if notFound(result.Error) {
			prometheus.RecordScopeError("agent", "not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "agent not found"})
		}
		log.Error("Failed to fetch agent", zap.Uint64("id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch agent"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	// Leads keep existing when their agent goes away
	if result := tx.Model(&model.Lead{}).Where("agent_id = ?", agent.ID).Update("agent_id", nil); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to detach leads", zap.Uint("agent_id", agent.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete agent"})
	}
	if result := tx.Delete(&agent); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to delete agent", zap.Uint("id", agent.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete agent"})
	}
	if result := tx.Where("user_id = ?", agent.UserID).Delete(&model.UserProfile{}); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to delete agent profile", zap.Uint("user_id", agent.UserID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete agent"})
	}
	if result := tx.Delete(&model.User{}, agent.UserID); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to delete agent user", zap.Uint("user_id", agent.UserID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete agent"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete agent"})
	}

	log.Info("Agent deleted", zap.Uint("id", agent.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "agent deleted"})
}
