package handler

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"crm-service/internal/mailer"
	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/internal/scope"
	"crm-service/pkg/database"

	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestDB opens a unique in-memory database per test and points the
// global handle at it.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	database.SetDB(db)
	return db
}

// recordingSink captures notification dispatches for assertions.
type recordingSink struct {
	mu    sync.Mutex
	sends []recordedSend
}

type recordedSend struct {
	Subject string
	Body    string
	From    string
	To      []string
}

func (s *recordingSink) Send(subject, body, from string, to []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, recordedSend{Subject: subject, Body: body, From: from, To: to})
	return nil
}

func (s *recordingSink) all() []recordedSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedSend(nil), s.sends...)
}

func setupSink(t *testing.T) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	mailer.SetSink(sink)
	t.Cleanup(func() { mailer.SetSink(nil) })
	return sink
}

// newContext builds an echo context carrying the given identity, the way
// the auth and identity middleware would.
func newContext(t *testing.T, method, target, body string, identity *scope.Identity) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if identity != nil {
		c.Set(middleware.IdentityKey, *identity)
	}
	return c, rec
}

// seedOrganisor creates an organisor user with their tenant profile and
// returns the resolved identity.
func seedOrganisor(t *testing.T, db *gorm.DB, name string) (model.User, model.UserProfile, scope.Identity) {
	t.Helper()
	user := model.User{
		Username:    name,
		Email:       name + "@example.com",
		Password:    "x",
		IsOrganisor: true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed organisor user: %v", err)
	}
	profile := model.UserProfile{UserID: user.ID}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	identity, err := scope.Resolve(db, user.ID)
	if err != nil {
		t.Fatalf("resolve organisor: %v", err)
	}
	return user, profile, identity
}

// seedAgent creates an agent user bound to the given tenant and returns
// the resolved identity.
func seedAgent(t *testing.T, db *gorm.DB, profileID uint, name string) (model.Agent, scope.Identity) {
	t.Helper()
	user := model.User{
		Username:    name,
		Email:       name + "@example.com",
		Password:    "x",
		IsOrganisor: false,
		IsAgent:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed agent user: %v", err)
	}
	if err := db.Create(&model.UserProfile{UserID: user.ID}).Error; err != nil {
		t.Fatalf("seed agent profile: %v", err)
	}
	agent := model.Agent{UserID: user.ID, OrganisationID: profileID}
	if err := db.Create(&agent).Error; err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	identity, err := scope.Resolve(db, user.ID)
	if err != nil {
		t.Fatalf("resolve agent: %v", err)
	}
	agent.User = user
	return agent, identity
}

// seedLead creates a lead in the given tenant, optionally assigned.
func seedLead(t *testing.T, db *gorm.DB, profileID uint, agentID *uint, emailCompany string) model.Lead {
	t.Helper()
	lead := model.Lead{
		FirstName:      "Jane",
		LastName:       "Doe",
		OrganisationID: profileID,
		AgentID:        agentID,
		Source:         model.SourceYouTube,
		Company:        "Acme",
		EmailCompany:   emailCompany,
	}
	if err := db.Create(&lead).Error; err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return lead
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}
