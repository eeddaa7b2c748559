package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-ops-api/internal/models"
)

const cardColumns = `id, school_id, lesson_id, student_id, title, status, position, locked_by, version, updated_at`

// BoardRepository handles persistence of progress-board cards.
type BoardRepository struct {
	db *sqlx.DB
}

// NewBoardRepository constructs the repository.
func NewBoardRepository(db *sqlx.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

// FindByID returns a card by its ID.
func (r *BoardRepository) FindByID(ctx context.Context, id string) (*models.ProgressCard, error) {
	query := fmt.Sprintf("SELECT %s FROM progress_cards WHERE id = $1", cardColumns)
	var card models.ProgressCard
	if err := r.db.GetContext(ctx, &card, query, id); err != nil {
		return nil, err
	}
	return &card, nil
}

// FindByIDForUpdate loads a card with a row lock inside the caller's
// transaction. Combined with the version check this serialises concurrent
// moves of the same card.
func (r *BoardRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ProgressCard, error) {
	query := fmt.Sprintf("SELECT %s FROM progress_cards WHERE id = $1 FOR UPDATE", cardColumns)
	var card models.ProgressCard
	if err := sqlx.GetContext(ctx, exec, &card, query, id); err != nil {
		return nil, err
	}
	return &card, nil
}

// ListColumnForUpdate returns one column's cards ordered by position,
// locking them for the duration of the move transaction.
func (r *BoardRepository) ListColumnForUpdate(ctx context.Context, exec sqlx.ExtContext, schoolID string, status models.CardStatus) ([]models.ProgressCard, error) {
	query := fmt.Sprintf("SELECT %s FROM progress_cards WHERE school_id = $1 AND status = $2 ORDER BY position FOR UPDATE", cardColumns)
	var cards []models.ProgressCard
	if err := sqlx.SelectContext(ctx, exec, &cards, query, schoolID, status); err != nil {
		return nil, fmt.Errorf("list column for update: %w", err)
	}
	return cards, nil
}

// UpdatePosition rewrites a sibling card's position inside the move
// transaction without touching its version.
func (r *BoardRepository) UpdatePosition(ctx context.Context, exec sqlx.ExtContext, id string, position int) error {
	const query = `UPDATE progress_cards SET position = $2 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, position); err != nil {
		return fmt.Errorf("update card position: %w", err)
	}
	return nil
}

// ApplyMove persists the moved card's new column, position and bumped
// version inside the move transaction.
func (r *BoardRepository) ApplyMove(ctx context.Context, exec sqlx.ExtContext, id string, status models.CardStatus, position int, version int64, updatedAt time.Time) error {
	const query = `UPDATE progress_cards SET status = $2, position = $3, version = $4, updated_at = $5 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, status, position, version, updatedAt); err != nil {
		return fmt.Errorf("apply card move: %w", err)
	}
	return nil
}

// ListBoard returns every card for a school ordered by column and position,
// optionally filtered to one student (template cards always included).
func (r *BoardRepository) ListBoard(ctx context.Context, schoolID, studentID string) ([]models.ProgressCard, error) {
	query := fmt.Sprintf("SELECT %s FROM progress_cards WHERE school_id = $1", cardColumns)
	args := []interface{}{schoolID}
	if studentID != "" {
		query += " AND (student_id = $2 OR student_id IS NULL)"
		args = append(args, studentID)
	}
	query += " ORDER BY status, position"
	var cards []models.ProgressCard
	if err := r.db.SelectContext(ctx, &cards, query, args...); err != nil {
		return nil, fmt.Errorf("list board: %w", err)
	}
	return cards, nil
}

// SetLock sets or clears the advisory lock holder for a card.
func (r *BoardRepository) SetLock(ctx context.Context, id string, lockedBy *string) error {
	const query = `UPDATE progress_cards SET locked_by = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lockedBy); err != nil {
		return fmt.Errorf("set card lock: %w", err)
	}
	return nil
}
