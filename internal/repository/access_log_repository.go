package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-ops-api/internal/models"
)

const accessLogColumns = `id, school_id, actor_id, action, target_type, target_id, metadata, ip_address, user_agent, created_at`

// AccessLogRepository is the append-only audit sink.
type AccessLogRepository struct {
	db *sqlx.DB
}

// NewAccessLogRepository constructs the repository.
func NewAccessLogRepository(db *sqlx.DB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

// CreateWithExec appends an entry using the caller's executor so the audit
// row commits or rolls back with the surrounding transaction.
func (r *AccessLogRepository) CreateWithExec(ctx context.Context, exec sqlx.ExtContext, entry *models.AccessLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO access_logs (id, school_id, actor_id, action, target_type, target_id, metadata, ip_address, user_agent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := exec.ExecContext(ctx, query, entry.ID, entry.SchoolID, entry.ActorID, entry.Action,
		entry.TargetType, entry.TargetID, entry.Metadata, entry.IPAddress, entry.UserAgent, entry.CreatedAt); err != nil {
		return fmt.Errorf("create access log: %w", err)
	}
	return nil
}

// Create appends an entry outside any transaction.
func (r *AccessLogRepository) Create(ctx context.Context, entry *models.AccessLog) error {
	return r.CreateWithExec(ctx, r.db, entry)
}

// List returns access log entries, newest first.
func (r *AccessLogRepository) List(ctx context.Context, filter models.AccessLogFilter) ([]models.AccessLog, int, error) {
	base := "FROM access_logs WHERE school_id = $1"
	args := []interface{}{filter.SchoolID}

	if filter.Action != "" {
		base += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, filter.Action)
	}
	if filter.TargetType != "" {
		base += fmt.Sprintf(" AND target_type = $%d", len(args)+1)
		args = append(args, filter.TargetType)
	}
	if filter.ActorID != "" {
		base += fmt.Sprintf(" AND actor_id = $%d", len(args)+1)
		args = append(args, filter.ActorID)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", accessLogColumns, base, size, (page-1)*size)
	var entries []models.AccessLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list access logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count access logs: %w", err)
	}
	return entries, total, nil
}
