package scope

import (
	"errors"
	"testing"

	"crm-service/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.UserProfile{}, &model.Agent{}, &model.Category{}, &model.Lead{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type tenant struct {
	owner   model.User
	profile model.UserProfile
}

func seedTenant(t *testing.T, db *gorm.DB, name string) tenant {
	t.Helper()
	owner := model.User{Username: name, Email: name + "@example.com", IsOrganisor: true}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	profile := model.UserProfile{UserID: owner.ID}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return tenant{owner: owner, profile: profile}
}

func seedAgent(t *testing.T, db *gorm.DB, profileID uint, name string) model.Agent {
	t.Helper()
	user := model.User{Username: name, Email: name + "@example.com", IsAgent: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed agent user: %v", err)
	}
	agent := model.Agent{UserID: user.ID, OrganisationID: profileID}
	if err := db.Create(&agent).Error; err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return agent
}

func seedLead(t *testing.T, db *gorm.DB, profileID uint, agentID *uint, email string) model.Lead {
	t.Helper()
	lead := model.Lead{
		FirstName:      "L",
		LastName:       "D",
		OrganisationID: profileID,
		AgentID:        agentID,
		Source:         model.SourceNewsletter,
		EmailCompany:   email,
	}
	if err := db.Create(&lead).Error; err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return lead
}

func TestResolveOrganisor(t *testing.T) {
	db := testDB(t)
	tn := seedTenant(t, db, "org")

	identity, err := Resolve(db, tn.owner.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if identity.Role != RoleOrganisor || identity.ProfileID != tn.profile.ID || identity.AgentID != nil {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestResolveAgent(t *testing.T) {
	db := testDB(t)
	tn := seedTenant(t, db, "org")
	agent := seedAgent(t, db, tn.profile.ID, "agent")

	identity, err := Resolve(db, agent.UserID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if identity.Role != RoleAgent || identity.ProfileID != tn.profile.ID {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if identity.AgentID == nil || *identity.AgentID != agent.ID {
		t.Fatalf("expected agent id %d, got %v", agent.ID, identity.AgentID)
	}
}

func TestRoleFlagsPersistAsStored(t *testing.T) {
	db := testDB(t)

	// An agent account must not be rewritten into an organisor on insert
	user := model.User{Username: "stored", Email: "stored@example.com", IsOrganisor: false, IsAgent: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	var reloaded model.User
	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.IsOrganisor || !reloaded.IsAgent {
		t.Fatalf("role flags not stored as written: %+v", reloaded)
	}

	identity, err := Resolve(db, user.ID)
	if err == nil && identity.Role == RoleOrganisor {
		t.Fatalf("agent account resolved as organisor")
	}
}

func TestResolveOrganisorFlagWins(t *testing.T) {
	db := testDB(t)

	// Both flags set resolves as organisor
	user := model.User{Username: "both", Email: "both@example.com", IsOrganisor: true, IsAgent: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	profile := model.UserProfile{UserID: user.ID}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	identity, err := Resolve(db, user.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if identity.Role != RoleOrganisor {
		t.Fatalf("expected organisor to win, got %s", identity.Role)
	}
}

func TestResolveOrphanAgentForbidden(t *testing.T) {
	db := testDB(t)

	user := model.User{Username: "orphan", Email: "orphan@example.com", IsAgent: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := Resolve(db, user.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestResolveUnknownUserForbidden(t *testing.T) {
	db := testDB(t)
	if _, err := Resolve(db, 12345); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestLeadVisibilityPerRole(t *testing.T) {
	db := testDB(t)
	t1 := seedTenant(t, db, "t1")
	t2 := seedTenant(t, db, "t2")
	agentA := seedAgent(t, db, t1.profile.ID, "agentA")
	agentB := seedAgent(t, db, t1.profile.ID, "agentB")

	leadA := seedLead(t, db, t1.profile.ID, &agentA.ID, "a@x.com")
	seedLead(t, db, t1.profile.ID, &agentB.ID, "b@x.com")
	seedLead(t, db, t2.profile.ID, nil, "c@x.com")

	org1, err := Resolve(db, t1.owner.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	idA, err := Resolve(db, agentA.UserID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var all []model.Lead
	if err := Leads(db, org1).Find(&all).Error; err != nil {
		t.Fatalf("Leads: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("organisor should see both tenant leads, got %d", len(all))
	}

	var own []model.Lead
	if err := Leads(db, idA).Find(&own).Error; err != nil {
		t.Fatalf("Leads: %v", err)
	}
	if len(own) != 1 || own[0].ID != leadA.ID {
		t.Fatalf("agent should see only own lead, got %+v", own)
	}
}

func TestAssignedAndUnassignedSplit(t *testing.T) {
	db := testDB(t)
	t1 := seedTenant(t, db, "t1")
	agent := seedAgent(t, db, t1.profile.ID, "agent")

	assigned := seedLead(t, db, t1.profile.ID, &agent.ID, "a@x.com")
	unassigned := seedLead(t, db, t1.profile.ID, nil, "b@x.com")

	org, err := Resolve(db, t1.owner.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var got []model.Lead
	if err := AssignedLeads(db, org).Find(&got).Error; err != nil {
		t.Fatalf("AssignedLeads: %v", err)
	}
	if len(got) != 1 || got[0].ID != assigned.ID {
		t.Fatalf("unexpected assigned set: %+v", got)
	}

	if err := UnassignedLeads(db, org).Find(&got).Error; err != nil {
		t.Fatalf("UnassignedLeads: %v", err)
	}
	if len(got) != 1 || got[0].ID != unassigned.ID {
		t.Fatalf("unexpected unassigned set: %+v", got)
	}

	// The unassigned lead never shows in an agent's default listing
	idAgent, err := Resolve(db, agent.UserID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := AssignedLeads(db, idAgent).Find(&got).Error; err != nil {
		t.Fatalf("AssignedLeads: %v", err)
	}
	for _, l := range got {
		if l.ID == unassigned.ID {
			t.Fatalf("unassigned lead leaked into agent listing")
		}
	}
}

func TestCategoriesTenantWide(t *testing.T) {
	db := testDB(t)
	t1 := seedTenant(t, db, "t1")
	t2 := seedTenant(t, db, "t2")
	agent := seedAgent(t, db, t1.profile.ID, "agent")

	if err := db.Create(&model.Category{Name: "New", OrganisationID: t1.profile.ID}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Create(&model.Category{Name: "Foreign", OrganisationID: t2.profile.ID}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	identity, err := Resolve(db, agent.UserID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var cats []model.Category
	if err := Categories(db, identity).Find(&cats).Error; err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(cats) != 1 || cats[0].Name != "New" {
		t.Fatalf("unexpected categories: %+v", cats)
	}
}

func TestAgentsOrganisorOnly(t *testing.T) {
	db := testDB(t)
	t1 := seedTenant(t, db, "t1")
	agent := seedAgent(t, db, t1.profile.ID, "agent")

	identity, err := Resolve(db, agent.UserID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := Agents(db, identity); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for agent, got %v", err)
	}

	org, err := Resolve(db, t1.owner.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	q, err := Agents(db, org)
	if err != nil {
		t.Fatalf("Agents: %v", err)
	}
	var roster []model.Agent
	if err := q.Find(&roster).Error; err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster) != 1 || roster[0].ID != agent.ID {
		t.Fatalf("unexpected roster: %+v", roster)
	}
}
