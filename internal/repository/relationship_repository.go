package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-ops-api/internal/models"
)

const relationshipColumns = `id, parent_id, child_id, relationship_type, primary_contact, created_at`

// RelationshipRepository handles parent-child relationship rows.
type RelationshipRepository struct {
	db *sqlx.DB
}

// NewRelationshipRepository constructs the repository.
func NewRelationshipRepository(db *sqlx.DB) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

// CreateWithExec inserts a relationship using the caller's executor.
func (r *RelationshipRepository) CreateWithExec(ctx context.Context, exec sqlx.ExtContext, rel *models.ParentChildRelationship) error {
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO parent_child_relationships (id, parent_id, child_id, relationship_type, primary_contact, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := exec.ExecContext(ctx, query, rel.ID, rel.ParentID, rel.ChildID, rel.RelationshipType, rel.PrimaryContact, rel.CreatedAt); err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}
	return nil
}

// ExistsPair reports whether a (parent, child) link already exists.
func (r *RelationshipRepository) ExistsPair(ctx context.Context, exec sqlx.ExtContext, parentID, childID string) (bool, error) {
	const query = `SELECT 1 FROM parent_child_relationships WHERE parent_id = $1 AND child_id = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, exec, &exists, query, parentID, childID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check relationship pair: %w", err)
	}
	return true, nil
}

// CountByChild returns the number of relationships attached to a child.
func (r *RelationshipRepository) CountByChild(ctx context.Context, exec sqlx.ExtContext, childID string) (int, error) {
	const query = `SELECT COUNT(*) FROM parent_child_relationships WHERE child_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, exec, &count, query, childID); err != nil {
		return 0, fmt.Errorf("count child relationships: %w", err)
	}
	return count, nil
}

// ListByChild returns the relationships for a child.
func (r *RelationshipRepository) ListByChild(ctx context.Context, childID string) ([]models.ParentChildRelationship, error) {
	query := fmt.Sprintf("SELECT %s FROM parent_child_relationships WHERE child_id = $1 ORDER BY primary_contact DESC, created_at", relationshipColumns)
	var rels []models.ParentChildRelationship
	if err := r.db.SelectContext(ctx, &rels, query, childID); err != nil {
		return nil, fmt.Errorf("list child relationships: %w", err)
	}
	return rels, nil
}

// ListByParent returns the relationships for a parent.
func (r *RelationshipRepository) ListByParent(ctx context.Context, parentID string) ([]models.ParentChildRelationship, error) {
	query := fmt.Sprintf("SELECT %s FROM parent_child_relationships WHERE parent_id = $1 ORDER BY created_at", relationshipColumns)
	var rels []models.ParentChildRelationship
	if err := r.db.SelectContext(ctx, &rels, query, parentID); err != nil {
		return nil, fmt.Errorf("list parent relationships: %w", err)
	}
	return rels, nil
}
