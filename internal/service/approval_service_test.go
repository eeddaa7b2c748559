package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type stubApplications struct {
	app          *models.Application
	findErr      error
	markErr      error
	markedStatus models.ApplicationStatus
	markedReason *string
}

func (s *stubApplications) FindByIDForUpdate(_ context.Context, _ sqlx.ExtContext, _ string) (*models.Application, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	copied := *s.app
	return &copied, nil
}

func (s *stubApplications) MarkProcessed(_ context.Context, _ sqlx.ExtContext, _ string, status models.ApplicationStatus, _ string, _ time.Time, reason *string) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.markedStatus = status
	s.markedReason = reason
	return nil
}

type stubChildren struct {
	createErr error
	created   *models.ChildProfile
}

func (s *stubChildren) CreateWithExec(_ context.Context, _ sqlx.ExtContext, child *models.ChildProfile) error {
	if s.createErr != nil {
		return s.createErr
	}
	child.ID = "child-1"
	s.created = child
	return nil
}

type stubRelationships struct {
	createErr error
	existing  map[string]bool
	created   []models.ParentChildRelationship
}

func (s *stubRelationships) CreateWithExec(_ context.Context, _ sqlx.ExtContext, rel *models.ParentChildRelationship) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.existing == nil {
		s.existing = map[string]bool{}
	}
	s.existing[rel.ParentID] = true
	s.created = append(s.created, *rel)
	return nil
}

func (s *stubRelationships) ExistsPair(_ context.Context, _ sqlx.ExtContext, parentID, _ string) (bool, error) {
	return s.existing[parentID], nil
}

func (s *stubRelationships) CountByChild(_ context.Context, _ sqlx.ExtContext, _ string) (int, error) {
	return len(s.created), nil
}

type stubAccessLogs struct {
	entries []models.AccessLog
	err     error
}

func (s *stubAccessLogs) CreateWithExec(_ context.Context, _ sqlx.ExtContext, entry *models.AccessLog) error {
	if s.err != nil {
		return s.err
	}
	entry.ID = "log-1"
	s.entries = append(s.entries, *entry)
	return nil
}

type stubLinker struct {
	profiles map[string]*models.ParentProfile
	seq      int
}

func (s *stubLinker) ResolveOrCreate(_ context.Context, _ sqlx.ExtContext, schoolID string, block models.ParentBlock) (*models.ParentProfile, bool, error) {
	if s.profiles == nil {
		s.profiles = map[string]*models.ParentProfile{}
	}
	if existing, ok := s.profiles[block.Email]; ok {
		return existing, false, nil
	}
	s.seq++
	parent := &models.ParentProfile{
		ID:        "parent-" + string(rune('0'+s.seq)),
		SchoolID:  schoolID,
		FirstName: block.FirstName,
		LastName:  block.LastName,
		Email:     block.Email,
		Phone:     block.Phone,
	}
	s.profiles[block.Email] = parent
	return parent, true, nil
}

type stubNotifier struct {
	approvals  []dto.ApprovalResult
	rejections []dto.RejectionResult
}

func (s *stubNotifier) NotifyDecision(result dto.ApprovalResult) {
	s.approvals = append(s.approvals, result)
}

func (s *stubNotifier) NotifyRejection(result dto.RejectionResult) {
	s.rejections = append(s.rejections, result)
}

func newTxProvider(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func pendingApplication() *models.Application {
	second := "dad@example.com"
	secondFirst := "Dan"
	secondLast := "Doe"
	secondPhone := "555-0102"
	secondRel := models.RelationshipFather
	return &models.Application{
		ID:                  "app-1",
		SchoolID:            "school-1",
		Status:              models.ApplicationStatusPending,
		ChildFirstName:      "Jo",
		ChildLastName:       "Doe",
		ChildDateOfBirth:    time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC),
		ChildGender:         "FEMALE",
		Parent1FirstName:    "Mia",
		Parent1LastName:     "Doe",
		Parent1Email:        "mom@example.com",
		Parent1Phone:        "555-0101",
		Parent1Relationship: models.RelationshipMother,
		Parent2FirstName:    &secondFirst,
		Parent2LastName:     &secondLast,
		Parent2Email:        &second,
		Parent2Phone:        &secondPhone,
		Parent2Relationship: &secondRel,
	}
}

func adminActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", SchoolID: "school-1", Role: models.RoleAdmin}
}

func TestApproveCreatesEnrollmentAtomically(t *testing.T) {
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	apps := &stubApplications{app: pendingApplication()}
	children := &stubChildren{}
	rels := &stubRelationships{}
	logs := &stubAccessLogs{}
	notifier := &stubNotifier{}
	svc := NewApprovalService(apps, children, &stubLinker{}, rels, logs, notifier, db, zap.NewNop())

	result, err := svc.Approve(context.Background(), "app-1", adminActor(), RequestMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, models.ApplicationStatusApproved, result.Application.Status)
	assert.Equal(t, models.ApplicationStatusApproved, apps.markedStatus)
	require.NotNil(t, children.created)
	assert.Equal(t, "Jo", children.created.FirstName)
	assert.Equal(t, models.ChildEnrollmentActive, children.created.EnrollmentStatus)

	require.Len(t, result.Parents, 2)
	assert.True(t, result.Parents[0].Created)
	require.Len(t, rels.created, 2)
	assert.True(t, rels.created[0].PrimaryContact)
	assert.False(t, rels.created[1].PrimaryContact)
	assert.Equal(t, models.RelationshipMother, rels.created[0].RelationshipType)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.AccessActionApplicationApproved, logs.entries[0].Action)
	assert.Equal(t, "10.0.0.1", logs.entries[0].IPAddress)

	require.Len(t, notifier.approvals, 1)
}

func TestApproveIsIdempotentAgainstProcessedApplications(t *testing.T) {
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	app := pendingApplication()
	app.Status = models.ApplicationStatusApproved
	apps := &stubApplications{app: app}
	children := &stubChildren{}
	notifier := &stubNotifier{}
	svc := NewApprovalService(apps, children, &stubLinker{}, &stubRelationships{}, &stubAccessLogs{}, notifier, db, zap.NewNop())

	_, err := svc.Approve(context.Background(), "app-1", adminActor(), RequestMeta{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)
	assert.Equal(t, "application already processed", typed.Message)
	assert.Nil(t, children.created)
	assert.Empty(t, notifier.approvals)
}

func TestApproveCollapsesDuplicateParentEmails(t *testing.T) {
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	app := pendingApplication()
	same := "mom@example.com"
	app.Parent2Email = &same
	apps := &stubApplications{app: app}
	rels := &stubRelationships{}
	svc := NewApprovalService(apps, &stubChildren{}, &stubLinker{}, rels, &stubAccessLogs{}, &stubNotifier{}, db, zap.NewNop())

	result, err := svc.Approve(context.Background(), "app-1", adminActor(), RequestMeta{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, result.Parents, 2)
	assert.Equal(t, result.Parents[0].Profile.ID, result.Parents[1].Profile.ID)
	assert.False(t, result.Parents[1].Created)
	assert.Len(t, rels.created, 1)
}

func TestApproveRollsBackWhenRelationshipWriteFails(t *testing.T) {
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	apps := &stubApplications{app: pendingApplication()}
	rels := &stubRelationships{createErr: errors.New("disk full")}
	logs := &stubAccessLogs{}
	notifier := &stubNotifier{}
	svc := NewApprovalService(apps, &stubChildren{}, &stubLinker{}, rels, logs, notifier, db, zap.NewNop())

	_, err := svc.Approve(context.Background(), "app-1", adminActor(), RequestMeta{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, logs.entries)
	assert.Empty(t, notifier.approvals)
}

func TestApproveRejectsForeignSchoolActor(t *testing.T) {
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	apps := &stubApplications{app: pendingApplication()}
	svc := NewApprovalService(apps, &stubChildren{}, &stubLinker{}, &stubRelationships{}, &stubAccessLogs{}, &stubNotifier{}, db, zap.NewNop())

	actor := &models.JWTClaims{UserID: "admin-2", SchoolID: "school-2", Role: models.RoleAdmin}
	_, err := svc.Approve(context.Background(), "app-1", actor, RequestMeta{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrForbidden.Code, typed.Code)
}

func TestApproveReturnsNotFoundForUnknownApplication(t *testing.T) {
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	apps := &stubApplications{findErr: sql.ErrNoRows}
	svc := NewApprovalService(apps, &stubChildren{}, &stubLinker{}, &stubRelationships{}, &stubAccessLogs{}, &stubNotifier{}, db, zap.NewNop())

	_, err := svc.Approve(context.Background(), "missing", adminActor(), RequestMeta{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
}

func TestRejectRecordsReasonAndAuditEntry(t *testing.T) {
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	apps := &stubApplications{app: pendingApplication()}
	logs := &stubAccessLogs{}
	notifier := &stubNotifier{}
	svc := NewApprovalService(apps, &stubChildren{}, &stubLinker{}, &stubRelationships{}, logs, notifier, db, zap.NewNop())

	result, err := svc.Reject(context.Background(), "app-1", adminActor(), "incomplete documents", RequestMeta{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, models.ApplicationStatusRejected, result.Application.Status)
	require.NotNil(t, apps.markedReason)
	assert.Equal(t, "incomplete documents", *apps.markedReason)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.AccessActionApplicationRejected, logs.entries[0].Action)
	require.Len(t, notifier.rejections, 1)
}

func TestRejectLosesRaceToConcurrentDecision(t *testing.T) {
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	// Row was PENDING at read time but another decision committed first.
	apps := &stubApplications{app: pendingApplication(), markErr: sql.ErrNoRows}
	svc := NewApprovalService(apps, &stubChildren{}, &stubLinker{}, &stubRelationships{}, &stubAccessLogs{}, &stubNotifier{}, db, zap.NewNop())

	_, err := svc.Reject(context.Background(), "app-1", adminActor(), "", RequestMeta{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)
}
