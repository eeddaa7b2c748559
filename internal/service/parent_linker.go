package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-ops-api/internal/models"
)

type parentProfileStore interface {
	FindBySchoolAndEmailForUpdate(ctx context.Context, exec sqlx.ExtContext, schoolID, email string) (*models.ParentProfile, error)
	CreateWithExec(ctx context.Context, exec sqlx.ExtContext, parent *models.ParentProfile) error
}

// ParentLinker resolves whether a parent identified by email already exists
// within a school, creating a profile only on first reference. When a
// profile exists its stored fields win over the incoming application data;
// parent identity stability is preferred over application freshness.
type ParentLinker struct {
	parents parentProfileStore
}

// NewParentLinker constructs a ParentLinker.
func NewParentLinker(parents parentProfileStore) *ParentLinker {
	return &ParentLinker{parents: parents}
}

// ResolveOrCreate returns the profile for (schoolID, block.Email) and
// whether this call created it. Lookup is case-insensitive and row-locked,
// so two approvals racing on the same email serialise inside their
// transactions.
func (l *ParentLinker) ResolveOrCreate(ctx context.Context, exec sqlx.ExtContext, schoolID string, block models.ParentBlock) (*models.ParentProfile, bool, error) {
	existing, err := l.parents.FindBySchoolAndEmailForUpdate(ctx, exec, schoolID, block.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("resolve parent by email: %w", err)
	}

	parent := &models.ParentProfile{
		SchoolID:  schoolID,
		FirstName: block.FirstName,
		LastName:  block.LastName,
		Email:     block.Email,
		Phone:     block.Phone,
	}
	if err := l.parents.CreateWithExec(ctx, exec, parent); err != nil {
		return nil, false, fmt.Errorf("create parent profile: %w", err)
	}
	return parent, true, nil
}
