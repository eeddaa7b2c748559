package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/middleware"
	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/internal/service"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

type fakeApplicationStore struct {
	app *models.Application
}

func (f *fakeApplicationStore) List(_ context.Context, _ models.ApplicationFilter) ([]models.Application, int, error) {
	return []models.Application{*f.app}, 1, nil
}

func (f *fakeApplicationStore) FindByID(_ context.Context, _ string) (*models.Application, error) {
	return f.app, nil
}

func (f *fakeApplicationStore) Create(_ context.Context, application *models.Application) error {
	application.ID = "app-1"
	f.app = application
	return nil
}

type fakeDecisionStore struct {
	app *models.Application
}

func (f *fakeDecisionStore) FindByIDForUpdate(_ context.Context, _ sqlx.ExtContext, _ string) (*models.Application, error) {
	copied := *f.app
	return &copied, nil
}

func (f *fakeDecisionStore) MarkProcessed(_ context.Context, _ sqlx.ExtContext, _ string, status models.ApplicationStatus, _ string, _ time.Time, _ *string) error {
	f.app.Status = status
	return nil
}

type noopChildren struct{}

func (noopChildren) CreateWithExec(_ context.Context, _ sqlx.ExtContext, child *models.ChildProfile) error {
	child.ID = "child-1"
	return nil
}

type noopRelationships struct{}

func (noopRelationships) CreateWithExec(_ context.Context, _ sqlx.ExtContext, _ *models.ParentChildRelationship) error {
	return nil
}

func (noopRelationships) ExistsPair(_ context.Context, _ sqlx.ExtContext, _, _ string) (bool, error) {
	return false, nil
}

func (noopRelationships) CountByChild(_ context.Context, _ sqlx.ExtContext, _ string) (int, error) {
	return 0, nil
}

type noopAccessLogs struct{}

func (noopAccessLogs) CreateWithExec(_ context.Context, _ sqlx.ExtContext, entry *models.AccessLog) error {
	entry.ID = "log-1"
	return nil
}

type noopLinker struct{}

func (noopLinker) ResolveOrCreate(_ context.Context, _ sqlx.ExtContext, schoolID string, block models.ParentBlock) (*models.ParentProfile, bool, error) {
	return &models.ParentProfile{ID: "parent-1", SchoolID: schoolID, Email: block.Email}, true, nil
}

func processedApplication() *models.Application {
	return &models.Application{
		ID:                  "app-1",
		SchoolID:            "school-1",
		Status:              models.ApplicationStatusApproved,
		ChildFirstName:      "Jo",
		ChildLastName:       "Doe",
		ChildDateOfBirth:    time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC),
		ChildGender:         "FEMALE",
		Parent1FirstName:    "Mia",
		Parent1LastName:     "Doe",
		Parent1Email:        "mom@example.com",
		Parent1Phone:        "555-0101",
		Parent1Relationship: models.RelationshipMother,
	}
}

func newApprovalHandler(t *testing.T, app *models.Application, expectCommit bool) *ApplicationHandler {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectBegin()
	if expectCommit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}

	store := &fakeDecisionStore{app: app}
	approvals := service.NewApprovalService(store, noopChildren{}, noopLinker{}, noopRelationships{},
		noopAccessLogs{}, nil, sqlx.NewDb(db, "sqlmock"), zap.NewNop())
	applications := service.NewApplicationService(&fakeApplicationStore{app: app}, nil, zap.NewNop())
	return NewApplicationHandler(applications, approvals)
}

func TestApproveReturnsConflictForProcessedApplication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newApprovalHandler(t, processedApplication(), false)

	r := gin.New()
	r.POST("/applications/:id/approve", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", SchoolID: "school-1", Role: models.RoleAdmin})
		h.Approve(c)
	})

	req := httptest.NewRequest(http.MethodPost, "/applications/app-1/approve", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "CONFLICT", envelope.Error.Code)
	assert.Equal(t, "application already processed", envelope.Error.Message)
}

func TestApproveReturnsApprovalResult(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := processedApplication()
	app.Status = models.ApplicationStatusPending
	h := newApprovalHandler(t, app, true)

	r := gin.New()
	r.POST("/applications/:id/approve", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", SchoolID: "school-1", Role: models.RoleAdmin})
		h.Approve(c)
	})

	req := httptest.NewRequest(http.MethodPost, "/applications/app-1/approve", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.ApprovalResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.ApplicationStatusApproved, envelope.Data.Application.Status)
	assert.Equal(t, "child-1", envelope.Data.ChildProfile.ID)
	require.Len(t, envelope.Data.Parents, 1)
}

func TestApproveRequiresAuthentication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newApprovalHandler(t, processedApplication(), false)

	r := gin.New()
	r.POST("/applications/:id/approve", h.Approve)

	req := httptest.NewRequest(http.MethodPost, "/applications/app-1/approve", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitCreatesPendingApplication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeApplicationStore{}
	applications := service.NewApplicationService(store, nil, zap.NewNop())
	h := NewApplicationHandler(applications, nil)

	r := gin.New()
	r.POST("/applications", h.Submit)

	payload := dto.SubmitApplicationRequest{
		SchoolID:         "school-1",
		ChildFirstName:   "Jo",
		ChildLastName:    "Doe",
		ChildDateOfBirth: time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC),
		ChildGender:      "FEMALE",
		Parents: []dto.ParentBlockRequest{
			{FirstName: "Mia", LastName: "Doe", Email: "mom@example.com", Phone: "555-0101", Relationship: "MOTHER"},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/applications", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, store.app)
	assert.Equal(t, models.ApplicationStatusPending, store.app.Status)
}
