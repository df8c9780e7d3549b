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
	"gorm.io/gorm"
)

// LeadRequest defines the structure for lead creation/update requests
type LeadRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	PhoneNumber    string `json:"phone_number"`
	Phoned         bool   `json:"phoned"`
	Source         string `json:"source"`
	Company        string `json:"company"`
	PhoneCompany   string `json:"phone_company"`
	EmailCompany   string `json:"email_company"`
	AddressCompany string `json:"address_company"`
	ProfilePicture string `json:"profile_picture"`
	SpecialFiles   string `json:"special_files"`
	AgentID        *uint  `json:"agent_id"`
	CategoryID     *uint  `json:"category_id"`
}

// validate returns a human-readable problem with the request, or "".
func (r *LeadRequest) validate() string {
	if r.FirstName == "" || r.LastName == "" {
		return "first_name and last_name are required"
	}
	if !model.ValidSource(r.Source) {
		return "source must be one of YouTube, Yandex, Newsletter"
	}
	if r.EmailCompany == "" {
		return "email_company is required"
	}
	if !model.ValidPhone(r.PhoneNumber) || !model.ValidPhone(r.PhoneCompany) {
		return "invalid phone number"
	}
	return ""
}

// checkTenantRefs verifies that the optional agent and category references
// belong to the identity's tenant. Cross-tenant references are a
// validation error, not a data-layer surprise.
func (r *LeadRequest) checkTenantRefs(db *gorm.DB, identity scope.Identity) string {
	if r.AgentID != nil {
		var count int64
		db.Model(&model.Agent{}).
			Where("id = ? AND organisation_id = ?", *r.AgentID, identity.ProfileID).
			Count(&count)
		if count == 0 {
			return "agent does not belong to your organisation"
		}
	}
	if r.CategoryID != nil {
		var count int64
		db.Model(&model.Category{}).
			Where("id = ? AND organisation_id = ?", *r.CategoryID, identity.ProfileID).
			Count(&count)
		if count == 0 {
			return "category does not belong to your organisation"
		}
	}
	return ""
}

// sameRef reports whether two optional references point at the same row.
func sameRef(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ListLeads returns the leads visible to the requester: assigned leads in
// insertion order, plus the tenant's unassigned leads for organisors.
func ListLeads(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLeadOperation("list")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var leads []model.Lead
	if err := scope.AssignedLeads(database.GetDB(), identity).Find(&leads).Error; err != nil {
		log.Error("Failed to list leads", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list leads"})
	}

	response := echo.Map{"leads": leads}

	if identity.Organisor() {
		var unassigned []model.Lead
		if err := scope.UnassignedLeads(database.GetDB(), identity).Find(&unassigned).Error; err != nil {
			log.Error("Failed to list unassigned leads", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list leads"})
		}
		response["unassigned_leads"] = unassigned
	}

	updateLeadCount(identity.ProfileID)

	return c.JSON(http.StatusOK, response)
}

// GetLead returns one lead within the requester's scope. Rows outside the
// scope are reported as not found, never as forbidden.
func GetLead(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLeadOperation("get")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid lead ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lead ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var lead model.Lead
	result := scope.Leads(database.GetDB(), identity).Where("leads.id = ?", id).First(&lead)
	if result.Error != nil {
		if notFound(result.Error) {
			prometheus.RecordScopeError("lead", "not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "lead not found"})
		}
		log.Error("Failed to fetch lead", zap.Uint64("id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch lead"})
	}

	return c.JSON(http.StatusOK, lead)
}

// CreateLead creates a lead in the requester's tenant and notifies the
// tenant owner, or the assigned agent when the lead arrives pre-assigned.
func CreateLead(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLeadOperation("create")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req LeadRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	if msg := req.validate(); msg != "" {
		log.Warn("Lead validation failed", zap.String("reason", msg))
		prometheus.RecordScopeError("lead", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	if msg := req.checkTenantRefs(database.GetDB(), identity); msg != "" {
		log.Warn("Lead references outside tenant", zap.String("reason", msg))
		prometheus.RecordScopeError("lead", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	lead := model.Lead{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PhoneNumber:    req.PhoneNumber,
		OrganisationID: identity.ProfileID,
		AgentID:        req.AgentID,
		Phoned:         req.Phoned,
		Source:         req.Source,
		Company:        req.Company,
		PhoneCompany:   req.PhoneCompany,
		EmailCompany:   req.EmailCompany,
		AddressCompany: req.AddressCompany,
		ProfilePicture: req.ProfilePicture,
		SpecialFiles:   req.SpecialFiles,
		CategoryID:     req.CategoryID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&lead); result.Error != nil {
		if isUniqueViolation(result.Error) {
			prometheus.RecordScopeError("lead", "integrity")
			return c.JSON(http.StatusConflict, echo.Map{"error": "a lead with this company email already exists"})
		}
		log.Error("Failed to create lead", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create lead"})
	}

	notifyLeadCreated(c, &lead, identity)
	updateLeadCount(identity.ProfileID)

	log.Info("Lead created",
		zap.Uint("id", lead.ID),
		zap.String("first_name", lead.FirstName),
		zap.String("last_name", lead.LastName),
		zap.Uint("organisation_id", lead.OrganisationID))
	return c.JSON(http.StatusCreated, lead)
}

// UpdateLead updates a lead within the requester's scope. Fields omitted
// from the request are left as stored. Agents may only touch their own
// assignments and may not change the owning agent; no notification is sent.
func UpdateLead(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLeadOperation("update")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid lead ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lead ID"})
	}

	var lead model.Lead
	result := scope.Leads(database.GetDB(), identity).Where("leads.id = ?", id).First(&lead)
	if result.Error != nil {
		if notFound(result.Error) {
			prometheus.RecordScopeError("lead", "not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "lead not found"})
		}
		log.Error("Failed to fetch lead", zap.Uint64("id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch lead"})
	}

	// Prefill from the stored row so fields omitted from the request keep
	// their current values.
	req := LeadRequest{
		FirstName:      lead.FirstName,
		LastName:       lead.LastName,
		PhoneNumber:    lead.PhoneNumber,
		Phoned:         lead.Phoned,
		Source:         lead.Source,
		Company:        lead.Company,
		PhoneCompany:   lead.PhoneCompany,
		EmailCompany:   lead.EmailCompany,
		AddressCompany: lead.AddressCompany,
		ProfilePicture: lead.ProfilePicture,
		SpecialFiles:   lead.SpecialFiles,
		AgentID:        lead.AgentID,
		CategoryID:     lead.CategoryID,
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	if identity.Role == scope.RoleAgent && !sameRef(req.AgentID, lead.AgentID) {
		log.Warn("Agent attempted lead reassignment", zap.Uint("user_id", identity.UserID))
		prometheus.RecordScopeError("lead", "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only organisors may assign leads"})
	}

	if msg := req.validate(); msg != "" {
		log.Warn("Lead validation failed", zap.String("reason", msg))
		prometheus.RecordScopeError("lead", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	if msg := req.checkTenantRefs(database.GetDB(), identity); msg != "" {
		log.Warn("Lead references outside tenant", zap.String("reason", msg))
		prometheus.RecordScopeError("lead", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	lead.FirstName = req.FirstName
	lead.LastName = req.LastName
	lead.PhoneNumber = req.PhoneNumber
	lead.Phoned = req.Phoned
	lead.Source = req.Source
	lead.Company = req.Company
	lead.PhoneCompany = req.PhoneCompany
	lead.EmailCompany = req.EmailCompany
	lead.AddressCompany = req.AddressCompany
	lead.ProfilePicture = req.ProfilePicture
	lead.SpecialFiles = req.SpecialFiles
	lead.AgentID = req.AgentID
	lead.CategoryID = req.CategoryID

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Save(&lead); result.Error != nil {
		if isUniqueViolation(result.Error) {
			prometheus.RecordScopeError("lead", "integrity")
			return c.JSON(http.StatusConflict, echo.Map{"error": "a lead with this company email already exists"})
		}
		log.Error("Failed to update lead", zap.Uint("id", lead.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update lead"})
	}

	log.Info("Lead updated", zap.Uint("id", lead.ID))
	return c.JSON(http.StatusOK, lead)
}

// DeleteLead hard-deletes a lead. Organisor-only.
func DeleteLead(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLeadOperation("delete")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if !identity.Organisor() {
		log.Warn("Agent attempted lead deletion", zap.Uint("user_id", identity.UserID))
		prometheus.RecordScopeError("lead", "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only organisors may delete leads"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid lead ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lead ID"})
	}

	var lead model.Lead
	result := scope.Leads(database.GetDB(), identity).Where("leads.id = ?", id).First(&lead)
	if result.Error != nil {
		if notFound(result.Error) {
			prometheus.RecordScopeError("lead", "not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "lead not found"})
		}
		log.Error("Failed to fetch lead", zap.Uint64("id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch lead"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if result := database.GetDB().Delete(&lead); result.Error != nil {
		log.Error("Failed to delete lead", zap.Uint("id", lead.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete lead"})
	}

	updateLeadCount(identity.ProfileID)

	log.Info("Lead deleted", zap.Uint("id", lead.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "lead deleted"})
}

// AssignLead sets the owning agent of a lead. Organisor-only; the target
// agent must belong to the lead's tenant, and the assignment is persisted
// before responding.
func AssignLead(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLeadOperation("assign")

	identity, ok := identityFrom(c)
	if !ok {
		log.Error("Failed to get identity from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if !identity.Organisor() {
		log.Warn("Agent attempted lead assignment", zap.Uint("user_id", identity.UserID))
		prometheus.RecordScopeError("lead", "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only organisors may assign leads"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid lead ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lead ID"})
	}

	var req struct {
		AgentID uint `json:"agent_id"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}
	if req.AgentID == 0 {
		prometheus.RecordScopeError("lead", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "agent_id is required"})
	}

	var lead model.Lead
	result := scope.Leads(database.GetDB(), identity).Where("leads.id = ?", id).First(&lead)
	if result.Error != nil {
		if notFound(result.Error) {
			prometheus.RecordScopeError("lead", "not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "lead not found"})
		}
		log.Error("Failed to fetch lead", zap.Uint64("id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch lead"})
	}

	var agent model.Agent
	result = database.GetDB().
		Where("id = ? AND organisation_id = ?", req.AgentID, lead.OrganisationID).
		First(&agent)
	if result.Error != nil {
		log.Warn("Assignment target outside tenant",
			zap.Uint("agent_id", req.AgentID),
			zap.Uint("organisation_id", lead.OrganisationID))
		prometheus.RecordScopeError("lead", "validation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "agent does not belong to your organisation"})
	}

	lead.AgentID = &agent.ID

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Save(&lead); result.Error != nil {
		log.Error("Failed to persist assignment", zap.Uint("id", lead.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to assign lead"})
	}

	log.Info("Lead assigned",
		zap.Uint("lead_id", lead.ID),
		zap.Uint("agent_id", agent.ID))
	return c.JSON(http.StatusOK, lead)
}

// notifyLeadCreated sends the lead-created notice to the assigned agent,
// falling back to the tenant owner for unassigned leads.
func notifyLeadCreated(c echo.Context, lead *model.Lead, identity scope.Identity) {
	log := logger.FromContext(c)

	var recipient string
	if lead.AgentID != nil {
		var agent model.Agent
		if err := database.GetDB().Preload("User").First(&agent, *lead.AgentID).Error; err == nil {
			recipient = agent.User.Email
		}
	}
	if recipient == "" {
		var profile model.UserProfile
		if err := database.GetDB().Preload("User").First(&profile, identity.ProfileID).Error; err == nil {
			recipient = profile.User.Email
		}
	}
	if recipient == "" {
		log.Warn("No recipient for lead-created notification", zap.Uint("lead_id", lead.ID))
		return
	}

	prometheus.RecordNotification("lead_created")
	mailer.Notify(log,
		"A new lead was created",
		"A new lead, "+lead.FirstName+" "+lead.LastName+", was added to your organisation. Log in to view it.",
		recipient)
}

// updateLeadCount refreshes the leads-per-tenant gauge.
func updateLeadCount(profileID uint) {
	var count int64
	database.GetDB().Model(&model.Lead{}).
		Where("organisation_id = ?", profileID).
		Count(&count)
	prometheus.UpdateLeadsPerTenant(profileID, count)
}
