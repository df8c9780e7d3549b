package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"crm-service/internal/model"
	"crm-service/internal/scope"
)

func TestCreateAgentBindsToCreatorTenant(t *testing.T) {
	db := setupTestDB(t)
	sink := setupSink(t)
	_, profile, org := seedOrganisor(t, db, "org1")
	_, profile2, _ := seedOrganisor(t, db, "org2")

	body := `{"username":"newagent","email":"newagent@example.com","password":"secret","first_name":"New","last_name":"Agent"}`
	c, rec := newContext(t, http.MethodPost, "/api/agents", body, &org)
	if err := CreateAgent(c); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	assertStatus(t, rec, http.StatusCreated)

	var agent model.Agent
	if err := db.Preload("User").Where("organisation_id = ?", profile.ID).First(&agent).Error; err != nil {
		t.Fatalf("load agent: %v", err)
	}
	if agent.OrganisationID != profile.ID {
		t.Fatalf("agent bound to tenant %d, want %d", agent.OrganisationID, profile.ID)
	}
	if !agent.User.IsAgent || agent.User.IsOrganisor {
		t.Fatalf("unexpected role flags: %+v", agent.User)
	}

	// The invited user carries exactly one profile
	var profileCount int64
	db.Model(&model.UserProfile{}).Where("user_id = ?", agent.UserID).Count(&profileCount)
	if profileCount != 1 {
		t.Fatalf("expected one profile for invited user, got %d", profileCount)
	}

	// Invitation went to the new agent's address
	sends := sink.all()
	if len(sends) != 1 {
		t.Fatalf("expected one invitation, got %d", len(sends))
	}
	if len(sends[0].To) != 1 || sends[0].To[0] != "newagent@example.com" {
		t.Fatalf("invitation sent to %v", sends[0].To)
	}

	// The new agent resolves into their tenant and cannot see the other one
	identity, err := scope.Resolve(db, agent.UserID)
	if err != nil {
		t.Fatalf("resolve new agent: %v", err)
	}
	seedLead(t, db, profile2.ID, nil, "foreign@corp.com")
	var visible []model.Lead
	if err := scope.Leads(db, identity).Find(&visible).Error; err != nil {
		t.Fatalf("scoped leads: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("new agent sees foreign leads: %+v", visible)
	}
}

func TestCreateAgentForbiddenForAgents(t *testing.T) {
	db := setupTestDB(t)
	_, profile, _ := seedOrganisor(t, db, "org1")
	_, agentIdentity := seedAgent(t, db, profile.ID, "agent1")

	body := `{"username":"x","email":"x@example.com","password":"secret"}`
	c, rec := newContext(t, http.MethodPost, "/api/agents", body, &agentIdentity)
	if err := CreateAgent(c); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	assertStatus(t, rec, http.StatusForbidden)
}

func TestCreateAgentDuplicateEmailConflicts(t *testing.T) {
	db := setupTestDB(t)
	setupSink(t)
	_, _, org := seedOrganisor(t, db, "org1")

	body := `{"username":"dup","email":"dup@example.com","password":"secret"}`
	c, rec := newContext(t, http.MethodPost, "/api/agents", body, &org)
	if err := CreateAgent(c); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	assertStatus(t, rec, http.StatusCreated)

	c, rec = newContext(t, http.MethodPost, "/api/agents", `{"username":"dup2","email":"dup@example.com","password":"secret"}`, &org)
	if err := CreateAgent(c); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	assertStatus(t, rec, http.StatusConflict)
}

func TestListAgentsScopedToTenant(t *testing.T) {
	db := setupTestDB(t)
	_, profile1, org1 := seedOrganisor(t, db, "org1")
	_, profile2, _ := seedOrganisor(t, db, "org2")
	seedAgent(t, db, profile1.ID, "mine")
	seedAgent(t, db, profile2.ID, "theirs")

	c, rec := newContext(t, http.MethodGet, "/api/agents", "", &org1)
	if err := ListAgents(c); err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	assertStatus(t, rec, http.StatusOK)

	var payload struct {
		Agents []model.Agent `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Agents) != 1 || payload.Agents[0].OrganisationID != profile1.ID {
		t.Fatalf("expected only own tenant's agent, got %+v", payload.Agents)
	}
}

func TestGetAgentCrossTenantIsNotFound(t *testing.T) {
	db := setupTestDB(t)
	_, profile1, _ := seedOrganisor(t, db, "org1")
	_, _, org2 := seedOrganisor(t, db, "org2")
	foreign, _ := seedAgent(t, db, profile1.ID, "agent1")

	c, rec := newContext(t, http.MethodGet, "/api/agents/1", "", &org2)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(foreign.ID))
	if err := GetAgent(c); err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	assertStatus(t, rec, http.StatusNotFound)
}

func TestDeleteAgentDetachesLeads(t *testing.T) {
	db := setupTestDB(t)
	_, profile, org := seedOrganisor(t, db, "org1")
	agent, _ := seedAgent(t, db, profile.ID, "agent1")
	lead := seedLead(t, db, profile.ID, &agent.ID, "x@corp.com")

	c, rec := newContext(t, http.MethodDelete, "/api/agents/1", "", &org)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(agent.ID))
	if err := DeleteAgent(c); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	assertStatus(t, rec, http.StatusOK)

	// Lead survives, reference is nulled
	var reloaded model.Lead
	if err := db.First(&reloaded, lead.ID).Error; err != nil {
		t.Fatalf("reload lead: %v", err)
	}
	if reloaded.AgentID != nil {
		t.Fatalf("expected nulled agent reference, got %v", *reloaded.AgentID)
	}

	// Agent row, its user account and the user's profile are gone
	var agentCount, userCount, profileCount int64
	db.Model(&model.Agent{}).Where("id = ?", agent.ID).Count(&agentCount)
	db.Model(&model.User{}).Where("id = ?", agent.UserID).Count(&userCount)
	db.Model(&model.UserProfile{}).Where("user_id = ?", agent.UserID).Count(&profileCount)
	if agentCount != 0 || userCount != 0 || profileCount != 0 {
		t.Fatalf("expected agent, user and profile removed, got %d/%d/%d", agentCount, userCount, profileCount)
	}
}

func TestUpdateAgentContactFields(t *testing.T) {
	db := setupTestDB(t)
	_, profile, org := seedOrganisor(t, db, "org1")
	agent, _ := seedAgent(t, db, profile.ID, "agent1")

	body := `{"first_name":"Renamed","last_name":"Agent","phone_number":"+15551234567"}`
	c, rec := newContext(t, http.MethodPatch, "/api/agents/1", body, &org)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(agent.ID))
	if err := UpdateAgent(c); err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}
	assertStatus(t, rec, http.StatusOK)

	var user model.User
	if err := db.First(&user, agent.UserID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if user.FirstName != "Renamed" || user.PhoneNumber != "+15551234567" {
		t.Fatalf("update not persisted: %+v", user)
	}
}
