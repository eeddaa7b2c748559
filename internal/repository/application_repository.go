package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-ops-api/internal/models"
)

const applicationColumns = `id, school_id, status, child_first_name, child_last_name, child_date_of_birth,
        child_gender, special_needs, medical_conditions,
        parent1_first_name, parent1_last_name, parent1_email, parent1_phone, parent1_relationship,
        parent2_first_name, parent2_last_name, parent2_email, parent2_phone, parent2_relationship,
        submitted_at, processed_at, processed_by, rejection_reason`

// ApplicationRepository handles persistence of enrollment applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// List returns applications filtered by the provided criteria.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	base := "FROM applications WHERE school_id = $1"
	args := []interface{}{filter.SchoolID}

	var conditions []string
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(child_first_name) LIKE $%d OR LOWER(child_last_name) LIKE $%d OR LOWER(parent1_email) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	clause := base
	if len(conditions) > 0 {
		clause += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]bool{
		"submitted_at": true,
		"processed_at": true,
		"status":       true,
	}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "submitted_at"
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
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", applicationColumns, clause, sortBy, order, size, offset)
	var applications []models.Application
	if err := r.db.SelectContext(ctx, &applications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return applications, total, nil
}

// FindByID returns an application by its ID.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE id = $1", applicationColumns)
	var application models.Application
	if err := r.db.GetContext(ctx, &application, query, id); err != nil {
		return nil, err
	}
	return &application, nil
}

// FindByIDForUpdate loads an application with a row lock inside the caller's
// transaction. The lock serialises concurrent decisions on the same row.
func (r *ApplicationRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE id = $1 FOR UPDATE", applicationColumns)
	var application models.Application
	if err := sqlx.GetContext(ctx, exec, &application, query, id); err != nil {
		return nil, err
	}
	return &application, nil
}

// Create persists a freshly submitted application.
func (r *ApplicationRepository) Create(ctx context.Context, application *models.Application) error {
	if application.ID == "" {
		application.ID = uuid.NewString()
	}
	if application.SubmittedAt.IsZero() {
		application.SubmittedAt = time.Now().UTC()
	}
	if application.Status == "" {
		application.Status = models.ApplicationStatusPending
	}
	const query = `INSERT INTO applications (id, school_id, status, child_first_name, child_last_name, child_date_of_birth,
        child_gender, special_needs, medical_conditions,
        parent1_first_name, parent1_last_name, parent1_email, parent1_phone, parent1_relationship,
        parent2_first_name, parent2_last_name, parent2_email, parent2_phone, parent2_relationship,
        submitted_at, processed_at, processed_by, rejection_reason)
        VALUES (:id, :school_id, :status, :child_first_name, :child_last_name, :child_date_of_birth,
        :child_gender, :special_needs, :medical_conditions,
        :parent1_first_name, :parent1_last_name, :parent1_email, :parent1_phone, :parent1_relationship,
        :parent2_first_name, :parent2_last_name, :parent2_email, :parent2_phone, :parent2_relationship,
        :submitted_at, :processed_at, :processed_by, :rejection_reason)`
	if _, err := r.db.NamedExecContext(ctx, query, application); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// MarkProcessed finalises the status transition inside the caller's
// transaction. It only touches rows still PENDING so a concurrent decision
// cannot be overwritten.
func (r *ApplicationRepository) MarkProcessed(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApplicationStatus, processedBy string, processedAt time.Time, reason *string) error {
	const query = `UPDATE applications SET status = $2, processed_at = $3, processed_by = $4, rejection_reason = $5
        WHERE id = $1 AND status = $6`
	res, err := exec.ExecContext(ctx, query, id, status, processedAt, processedBy, reason, models.ApplicationStatusPending)
	if err != nil {
		return fmt.Errorf("mark application processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark application processed: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
