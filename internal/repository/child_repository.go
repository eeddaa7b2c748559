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

const childColumns = `id, application_id, school_id, first_name, last_name, date_of_birth, gender,
        special_needs, medical_conditions, enrollment_status, created_at`

// ChildRepository handles persistence of child profiles.
type ChildRepository struct {
	db *sqlx.DB
}

// NewChildRepository constructs the repository.
func NewChildRepository(db *sqlx.DB) *ChildRepository {
	return &ChildRepository{db: db}
}

// CreateWithExec inserts a child profile using the caller's executor so the
// write participates in the approval transaction.
func (r *ChildRepository) CreateWithExec(ctx context.Context, exec sqlx.ExtContext, child *models.ChildProfile) error {
	if child.ID == "" {
		child.ID = uuid.NewString()
	}
	if child.CreatedAt.IsZero() {
		child.CreatedAt = time.Now().UTC()
	}
	if child.EnrollmentStatus == "" {
		child.EnrollmentStatus = models.ChildEnrollmentActive
	}
	const query = `INSERT INTO child_profiles (id, application_id, school_id, first_name, last_name, date_of_birth,
        gender, special_needs, medical_conditions, enrollment_status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := exec.ExecContext(ctx, query, child.ID, child.ApplicationID, child.SchoolID, child.FirstName,
		child.LastName, child.DateOfBirth, child.Gender, child.SpecialNeeds, child.MedicalConditions,
		child.EnrollmentStatus, child.CreatedAt); err != nil {
		return fmt.Errorf("create child profile: %w", err)
	}
	return nil
}

// FindByID returns a child profile by its ID.
func (r *ChildRepository) FindByID(ctx context.Context, id string) (*models.ChildProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM child_profiles WHERE id = $1", childColumns)
	var child models.ChildProfile
	if err := r.db.GetContext(ctx, &child, query, id); err != nil {
		return nil, err
	}
	return &child, nil
}

// FindByApplicationID returns the child created from a given application.
func (r *ChildRepository) FindByApplicationID(ctx context.Context, applicationID string) (*models.ChildProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM child_profiles WHERE application_id = $1", childColumns)
	var child models.ChildProfile
	if err := r.db.GetContext(ctx, &child, query, applicationID); err != nil {
		return nil, err
	}
	return &child, nil
}

// List returns children filtered by the provided criteria.
func (r *ChildRepository) List(ctx context.Context, filter models.ChildFilter) ([]models.ChildProfile, int, error) {
	base := "FROM child_profiles WHERE school_id = $1"
	args := []interface{}{filter.SchoolID}

	var conditions []string
	if filter.EnrollmentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_status = $%d", len(args)+1))
		args = append(args, filter.EnrollmentStatus)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	clause := base
	if len(conditions) > 0 {
		clause += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy != "last_name" && sortBy != "date_of_birth" && sortBy != "created_at" {
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", childColumns, clause, sortBy, order, size, (page-1)*size)
	var children []models.ChildProfile
	if err := r.db.SelectContext(ctx, &children, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list children: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count children: %w", err)
	}
	return children, total, nil
}

// ListRoster returns active children joined with their primary contact for
// roster exports.
func (r *ChildRepository) ListRoster(ctx context.Context, schoolID string) ([]models.RosterRow, error) {
	const query = `SELECT c.id AS child_id,
        c.first_name || ' ' || c.last_name AS child_name,
        c.date_of_birth, c.enrollment_status,
        COALESCE(p.first_name || ' ' || p.last_name, '') AS parent_name,
        COALESCE(p.email, '') AS parent_email,
        COALESCE(p.phone, '') AS parent_phone
        FROM child_profiles c
        LEFT JOIN parent_child_relationships rel ON rel.child_id = c.id AND rel.primary_contact = TRUE
        LEFT JOIN parent_profiles p ON p.id = rel.parent_id
        WHERE c.school_id = $1 AND c.enrollment_status = $2
        ORDER BY c.last_name, c.first_name`
	var rows []models.RosterRow
	if err := r.db.SelectContext(ctx, &rows, query, schoolID, models.ChildEnrollmentActive); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return rows, nil
}
