package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type approvalApplicationStore interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error)
	MarkProcessed(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApplicationStatus, processedBy string, processedAt time.Time, reason *string) error
}

type childProfileCreator interface {
	CreateWithExec(ctx context.Context, exec sqlx.ExtContext, child *models.ChildProfile) error
}

type relationshipStore interface {
	CreateWithExec(ctx context.Context, exec sqlx.ExtContext, rel *models.ParentChildRelationship) error
	ExistsPair(ctx context.Context, exec sqlx.ExtContext, parentID, childID string) (bool, error)
	CountByChild(ctx context.Context, exec sqlx.ExtContext, childID string) (int, error)
}

type accessLogTxWriter interface {
	CreateWithExec(ctx context.Context, exec sqlx.ExtContext, entry *models.AccessLog) error
}

type parentResolver interface {
	ResolveOrCreate(ctx context.Context, exec sqlx.ExtContext, schoolID string, block models.ParentBlock) (*models.ParentProfile, bool, error)
}

type decisionNotifier interface {
	NotifyDecision(result dto.ApprovalResult)
	NotifyRejection(result dto.RejectionResult)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// RequestMeta carries the caller context recorded on access log entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// ApprovalService converts a pending application into durable enrollment
// state as a single atomic transaction: child profile, parent profiles,
// relationships, status transition and audit entry commit together or not
// at all.
type ApprovalService struct {
	applications approvalApplicationStore
	children     childProfileCreator
	linker       parentResolver
	rels         relationshipStore
	access       accessLogTxWriter
	notifier     decisionNotifier
	tx           txProvider
	logger       *zap.Logger
}

// NewApprovalService wires the orchestrator dependencies.
func NewApprovalService(
	applications approvalApplicationStore,
	children childProfileCreator,
	linker parentResolver,
	rels relationshipStore,
	access accessLogTxWriter,
	notifier decisionNotifier,
	tx txProvider,
	logger *zap.Logger,
) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		applications: applications,
		children:     children,
		linker:       linker,
		rels:         rels,
		access:       access,
		notifier:     notifier,
		tx:           tx,
		logger:       logger,
	}
}

// Approve executes the approval transaction for a pending application.
// A non-PENDING application fails with a conflict and performs no writes.
func (s *ApprovalService) Approve(ctx context.Context, applicationID string, actor *models.JWTClaims, meta RequestMeta) (*dto.ApprovalResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open approval transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	application, err := s.applications.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if err := checkSchoolScope(actor, application.SchoolID); err != nil {
		return nil, err
	}
	if application.Status != models.ApplicationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application already processed")
	}

	blocks := application.ParentBlocks()
	if len(blocks) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application has no parent contact")
	}
	if len(blocks) > models.MaxParentsPerApplication {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application carries more than two parents")
	}

	child := &models.ChildProfile{
		ApplicationID:     application.ID,
		SchoolID:          application.SchoolID,
		FirstName:         application.ChildFirstName,
		LastName:          application.ChildLastName,
		DateOfBirth:       application.ChildDateOfBirth,
		Gender:            application.ChildGender,
		SpecialNeeds:      application.SpecialNeeds,
		MedicalConditions: application.MedicalConditions,
		EnrollmentStatus:  models.ChildEnrollmentActive,
	}
	if err := s.children.CreateWithExec(ctx, tx, child); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create child profile")
	}

	parents := make([]dto.LinkedParent, 0, len(blocks))
	relationships := make([]models.ParentChildRelationship, 0, len(blocks))
	for _, block := range blocks {
		parent, created, err := s.linker.ResolveOrCreate(ctx, tx, application.SchoolID, block)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link parent profile")
		}
		parents = append(parents, dto.LinkedParent{Profile: *parent, Created: created})

		// Both blocks naming the same email collapse into one relationship.
		exists, err := s.rels.ExistsPair(ctx, tx, parent.ID, child.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check relationship")
		}
		if exists {
			continue
		}
		count, err := s.rels.CountByChild(ctx, tx, child.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count relationships")
		}
		if count >= models.MaxParentsPerApplication {
			return nil, appErrors.Clone(appErrors.ErrValidation, "child already has two linked parents")
		}
		rel := &models.ParentChildRelationship{
			ParentID:         parent.ID,
			ChildID:          child.ID,
			RelationshipType: block.Relationship,
			PrimaryContact:   block.Primary,
		}
		if err := s.rels.CreateWithExec(ctx, tx, rel); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create relationship")
		}
		relationships = append(relationships, *rel)
	}

	now := time.Now().UTC()
	if err := s.applications.MarkProcessed(ctx, tx, application.ID, models.ApplicationStatusApproved, actor.UserID, now, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application already processed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
	}

	logEntry, err := s.writeDecisionLog(ctx, tx, application, actor, meta, models.AccessActionApplicationApproved, map[string]interface{}{
		"child_id":     child.ID,
		"parent_count": len(parents),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit approval")
	}
	committed = true

	application.Status = models.ApplicationStatusApproved
	application.ProcessedAt = &now
	application.ProcessedBy = &actor.UserID

	result := &dto.ApprovalResult{
		Application:   *application,
		ChildProfile:  *child,
		Parents:       parents,
		Relationships: relationships,
		AccessLog:     *logEntry,
	}

	s.logger.Info("application approved",
		zap.String("application_id", application.ID),
		zap.String("school_id", application.SchoolID),
		zap.String("actor_id", actor.UserID),
		zap.Int("parents", len(parents)))

	if s.notifier != nil {
		s.notifier.NotifyDecision(*result)
	}
	return result, nil
}

// Reject finalises a pending application as REJECTED with an optional
// reason. Same idempotency guard as Approve.
func (s *ApprovalService) Reject(ctx context.Context, applicationID string, actor *models.JWTClaims, reason string, meta RequestMeta) (*dto.RejectionResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open rejection transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	application, err := s.applications.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if err := checkSchoolScope(actor, application.SchoolID); err != nil {
		return nil, err
	}
	if application.Status != models.ApplicationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application already processed")
	}

	now := time.Now().UTC()
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.applications.MarkProcessed(ctx, tx, application.ID, models.ApplicationStatusRejected, actor.UserID, now, reasonPtr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application already processed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
	}

	metadata := map[string]interface{}{}
	if reason != "" {
		metadata["reason"] = reason
	}
	logEntry, err := s.writeDecisionLog(ctx, tx, application, actor, meta, models.AccessActionApplicationRejected, metadata)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit rejection")
	}
	committed = true

	application.Status = models.ApplicationStatusRejected
	application.ProcessedAt = &now
	application.ProcessedBy = &actor.UserID
	application.RejectionReason = reasonPtr

	result := &dto.RejectionResult{Application: *application, AccessLog: *logEntry}

	s.logger.Info("application rejected",
		zap.String("application_id", application.ID),
		zap.String("school_id", application.SchoolID),
		zap.String("actor_id", actor.UserID))

	if s.notifier != nil {
		s.notifier.NotifyRejection(*result)
	}
	return result, nil
}

func (s *ApprovalService) writeDecisionLog(ctx context.Context, exec sqlx.ExtContext, application *models.Application, actor *models.JWTClaims, meta RequestMeta, action string, metadata map[string]interface{}) (*models.AccessLog, error) {
	payload, err := json.Marshal(metadata)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode audit metadata")
	}
	entry := &models.AccessLog{
		SchoolID:   application.SchoolID,
		ActorID:    &actor.UserID,
		Action:     action,
		TargetType: models.AccessTargetApplication,
		TargetID:   &application.ID,
		Metadata:   payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.access.CreateWithExec(ctx, exec, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write access log")
	}
	return entry, nil
}

// checkSchoolScope ensures the actor may act on the given school.
// Superadmins cross tenant boundaries; everyone else stays inside theirs.
func checkSchoolScope(actor *models.JWTClaims, schoolID string) error {
	if actor.Role == models.RoleSuperAdmin {
		return nil
	}
	if actor.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrForbidden, "school scope mismatch")
	}
	return nil
}
