// Package scope implements the single row-visibility rule for the CRM:
// given a requesting user, which Agent, Lead and Category rows they may
// see and act on. Every handler goes through these queries instead of
// filtering ad hoc.
package scope

import (
	"errors"

	"crm-service/internal/model"

	"gorm.io/gorm"
)

// Role is the closed set of capabilities a user can act with.
type Role string

const (
	RoleOrganisor Role = "organisor"
	RoleAgent     Role = "agent"
)

// Identity is a resolved requesting user: their role and the tenant they
// operate in. For agents, AgentID points at their Agent row.
type Identity struct {
	UserID    uint
	Email     string
	Role      Role
	ProfileID uint
	AgentID   *uint
}

// Organisor reports whether the identity carries tenant-owner capabilities.
func (id Identity) Organisor() bool {
	return id.Role == RoleOrganisor
}

// Resolve loads the user and produces an Identity. The organisor flag wins
// when both role flags are set. A non-organisor without an Agent row gets
// ErrForbidden: such an account has no tenant to operate in.
func Resolve(db *gorm.DB, userID uint) (Identity, error) {
	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, ErrForbidden
		}
		return Identity{}, err
	}

	if user.IsOrganisor {
		var profile model.UserProfile
		if err := db.Where("user_id = ?", user.ID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Identity{}, ErrForbidden
			}
			return Identity{}, err
		}
		return Identity{
			UserID:    user.ID,
			Email:     user.Email,
			Role:      RoleOrganisor,
			ProfileID: profile.ID,
		}, nil
	}

	var agent model.Agent
	if err := db.Where("user_id = ?", user.ID).First(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, ErrForbidden
		}
		return Identity{}, err
	}
	agentID := agent.ID
	return Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      RoleAgent,
		ProfileID: agent.OrganisationID,
		AgentID:   &agentID,
	}, nil
}

// Leads returns the lead query visible to the identity: the whole tenant
// for organisors, only the agent's own assignments for agents.
func Leads(db *gorm.DB, id Identity) *gorm.DB {
	q := db.Model(&model.Lead{}).Where("organisation_id = ?", id.ProfileID)
	if id.Role == RoleAgent {
		q = q.Where("agent_id = ?", *id.AgentID)
	}
	return q.Order("id")
}

// AssignedLeads narrows Leads to rows that have an agent. This is the
// default listing for both roles.
func AssignedLeads(db *gorm.DB, id Identity) *gorm.DB {
	return Leads(db, id).Where("agent_id IS NOT NULL")
}

// UnassignedLeads returns the tenant's agentless leads. Organisor-only
// auxiliary context on the lead listing.
func UnassignedLeads(db *gorm.DB, id Identity) *gorm.DB {
	return db.Model(&model.Lead{}).
		Where("organisation_id = ? AND agent_id IS NULL", id.ProfileID).
		Order("id")
}

// Categories returns the tenant's categories. Agents see the whole
// tenant's pipeline, not just stages their own leads occupy.
func Categories(db *gorm.DB, id Identity) *gorm.DB {
	return db.Model(&model.Category{}).
		Where("organisation_id = ?", id.ProfileID).
		Order("id")
}

// Agents returns the tenant's agent roster. Agent management is an
// organisor capability.
func Agents(db *gorm.DB, id Identity) (*gorm.DB, error) {
	if !id.Organisor() {
		return nil, ErrForbidden
	}
	return db.Model(&model.Agent{}).
		Where("organisation_id = ?", id.ProfileID).
		Order("id"), nil
}
