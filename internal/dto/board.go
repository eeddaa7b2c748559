package dto

import "github.com/noah-isme/school-ops-api/internal/models"

// MoveCardRequest asks the server to move a card to a new column position.
// Version is the integer version the client last read for the card.
type MoveCardRequest struct {
	NewStatus   string `json:"new_status" validate:"required"`
	NewPosition int    `json:"new_position" validate:"min=0"`
	Version     int64  `json:"version" validate:"min=0"`
}

// MoveCardResult returns the canonical card plus both affected columns so
// the client can reconcile drift.
type MoveCardResult struct {
	Card        models.ProgressCard `json:"card"`
	Source      models.BoardColumn  `json:"source"`
	Destination models.BoardColumn  `json:"destination"`
}

// BoardFilter scopes board reads.
type BoardFilter struct {
	SchoolID  string
	StudentID string
}
