package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-ops-api/internal/models"
)

const parentColumns = `id, school_id, first_name, last_name, email, phone, created_at`

// ParentRepository handles persistence of parent profiles.
type ParentRepository struct {
	db *sqlx.DB
}

// NewParentRepository constructs the repository.
func NewParentRepository(db *sqlx.DB) *ParentRepository {
	return &ParentRepository{db: db}
}

// FindByID returns a parent profile by its ID.
func (r *ParentRepository) FindByID(ctx context.Context, id string) (*models.ParentProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM parent_profiles WHERE id = $1", parentColumns)
	var parent models.ParentProfile
	if err := r.db.GetContext(ctx, &parent, query, id); err != nil {
		return nil, err
	}
	return &parent, nil
}

// FindBySchoolAndEmailForUpdate resolves a parent by (school, email)
// case-insensitively, locking the row inside the caller's transaction.
// Returns sql.ErrNoRows when no profile exists yet.
func (r *ParentRepository) FindBySchoolAndEmailForUpdate(ctx context.Context, exec sqlx.ExtContext, schoolID, email string) (*models.ParentProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM parent_profiles WHERE school_id = $1 AND LOWER(email) = LOWER($2) FOR UPDATE", parentColumns)
	var parent models.ParentProfile
	if err := sqlx.GetContext(ctx, exec, &parent, query, schoolID, email); err != nil {
		return nil, err
	}
	return &parent, nil
}

// CreateWithExec inserts a new parent profile using the caller's executor.
func (r *ParentRepository) CreateWithExec(ctx context.Context, exec sqlx.ExtContext, parent *models.ParentProfile) error {
	if parent.ID == "" {
		parent.ID = uuid.NewString()
	}
	if parent.CreatedAt.IsZero() {
		parent.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO parent_profiles (id, school_id, first_name, last_name, email, phone, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := exec.ExecContext(ctx, query, parent.ID, parent.SchoolID, parent.FirstName, parent.LastName,
		parent.Email, parent.Phone, parent.CreatedAt); err != nil {
		return fmt.Errorf("create parent profile: %w", err)
	}
	return nil
}

// List returns parent profiles filtered by the provided criteria.
func (r *ParentRepository) List(ctx context.Context, filter models.ParentFilter) ([]models.ParentProfile, int, error) {
	base := "FROM parent_profiles WHERE school_id = $1"
	args := []interface{}{filter.SchoolID}

	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := filter.SortBy
	if sortBy != "last_name" && sortBy != "email" && sortBy != "created_at" {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", parentColumns, base, sortBy, order, size, (page-1)*size)
	var parents []models.ParentProfile
	if err := r.db.SelectContext(ctx, &parents, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list parents: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count parents: %w", err)
	}
	return parents, total, nil
}
