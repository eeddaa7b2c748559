package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type childStore interface {
	FindByID(ctx context.Context, id string) (*models.ChildProfile, error)
	List(ctx context.Context, filter models.ChildFilter) ([]models.ChildProfile, int, error)
}

type parentStore interface {
	FindByID(ctx context.Context, id string) (*models.ParentProfile, error)
	List(ctx context.Context, filter models.ParentFilter) ([]models.ParentProfile, int, error)
}

type relationshipReader interface {
	ListByChild(ctx context.Context, childID string) ([]models.ParentChildRelationship, error)
	ListByParent(ctx context.Context, parentID string) ([]models.ParentChildRelationship, error)
}

// RosterService serves read-side views over enrolled children and their
// linked parents.
type RosterService struct {
	children childStore
	parents  parentStore
	rels     relationshipReader
	logger   *zap.Logger
}

// NewRosterService wires the read-side dependencies.
func NewRosterService(children childStore, parents parentStore, rels relationshipReader, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{children: children, parents: parents, rels: rels, logger: logger}
}

// ListChildren returns children for the actor's school.
func (s *RosterService) ListChildren(ctx context.Context, filter models.ChildFilter, actor *models.JWTClaims) ([]models.ChildProfile, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleSuperAdmin {
		filter.SchoolID = actor.SchoolID
	}
	if filter.SchoolID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "school_id is required")
	}

	children, total, err := s.children.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
	}
	return children, paginationFor(filter.Page, filter.PageSize, total), nil
}

// GetChild returns one child with its linked parents.
func (s *RosterService) GetChild(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ChildDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	child, err := s.children.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "child not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load child")
	}
	if err := checkSchoolScope(actor, child.SchoolID); err != nil {
		return nil, err
	}

	rels, err := s.rels.ListByChild(ctx, child.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load relationships")
	}
	parents := make([]dto.RelatedParent, 0, len(rels))
	for _, rel := range rels {
		parent, err := s.parents.FindByID(ctx, rel.ParentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
		}
		parents = append(parents, dto.RelatedParent{
			Profile:        *parent,
			Relationship:   rel.RelationshipType,
			PrimaryContact: rel.PrimaryContact,
		})
	}
	return &dto.ChildDetail{Child: *child, Parents: parents}, nil
}

// ListParents returns parent profiles for the actor's school.
func (s *RosterService) ListParents(ctx context.Context, filter models.ParentFilter, actor *models.JWTClaims) ([]models.ParentProfile, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleSuperAdmin {
		filter.SchoolID = actor.SchoolID
	}
	if filter.SchoolID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "school_id is required")
	}

	parents, total, err := s.parents.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list parents")
	}
	return parents, paginationFor(filter.Page, filter.PageSize, total), nil
}

// GetParent returns one parent with its linked children.
func (s *RosterService) GetParent(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ParentDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	parent, err := s.parents.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "parent not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
	}
	if err := checkSchoolScope(actor, parent.SchoolID); err != nil {
		return nil, err
	}

	rels, err := s.rels.ListByParent(ctx, parent.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load relationships")
	}
	children := make([]dto.RelatedChild, 0, len(rels))
	for _, rel := range rels {
		child, err := s.children.FindByID(ctx, rel.ChildID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load child")
		}
		children = append(children, dto.RelatedChild{
			Child:          *child,
			Relationship:   rel.RelationshipType,
			PrimaryContact: rel.PrimaryContact,
		})
	}
	return &dto.ParentDetail{Parent: *parent, Children: children}, nil
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
