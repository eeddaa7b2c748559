package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type applicationStore interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	FindByID(ctx context.Context, id string) (*models.Application, error)
	Create(ctx context.Context, application *models.Application) error
}

// ApplicationService handles intake submission and admin-side reads of
// enrollment applications. Decisions live in ApprovalService.
type ApplicationService struct {
	applications applicationStore
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewApplicationService wires the intake dependencies.
func NewApplicationService(applications applicationStore, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{applications: applications, validator: validate, logger: logger}
}

// Submit records a new application in PENDING state. The payload carries
// one or two parent blocks; the first is the primary contact.
func (s *ApplicationService) Submit(ctx context.Context, req dto.SubmitApplicationRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	application := &models.Application{
		SchoolID:            req.SchoolID,
		Status:              models.ApplicationStatusPending,
		ChildFirstName:      req.ChildFirstName,
		ChildLastName:       req.ChildLastName,
		ChildDateOfBirth:    req.ChildDateOfBirth,
		ChildGender:         req.ChildGender,
		SpecialNeeds:        req.SpecialNeeds,
		MedicalConditions:   req.MedicalConditions,
		Parent1FirstName:    req.Parents[0].FirstName,
		Parent1LastName:     req.Parents[0].LastName,
		Parent1Email:        req.Parents[0].Email,
		Parent1Phone:        req.Parents[0].Phone,
		Parent1Relationship: models.RelationshipType(req.Parents[0].Relationship),
	}
	if len(req.Parents) > 1 {
		second := req.Parents[1]
		rel := models.RelationshipType(second.Relationship)
		application.Parent2FirstName = &second.FirstName
		application.Parent2LastName = &second.LastName
		application.Parent2Email = &second.Email
		application.Parent2Phone = &second.Phone
		application.Parent2Relationship = &rel
	}

	if err := s.applications.Create(ctx, application); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	s.logger.Info("application submitted",
		zap.String("application_id", application.ID),
		zap.String("school_id", application.SchoolID),
		zap.Int("parents", len(req.Parents)))
	return application, nil
}

// List returns applications for the actor's school.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter, actor *models.JWTClaims) ([]models.Application, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleSuperAdmin {
		filter.SchoolID = actor.SchoolID
	}
	if filter.SchoolID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "school_id is required")
	}

	applications, total, err := s.applications.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return applications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one application scoped to the actor's school.
func (s *ApplicationService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	application, err := s.applications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if err := checkSchoolScope(actor, application.SchoolID); err != nil {
		return nil, err
	}
	return application, nil
}
