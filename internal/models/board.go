package models

import "time"

// CardStatus is a progress-board column key.
type CardStatus string

// Board columns in display order.
const (
	CardStatusTodo       CardStatus = "TODO"
	CardStatusInProgress CardStatus = "IN_PROGRESS"
	CardStatusReview     CardStatus = "REVIEW"
	CardStatusDone       CardStatus = "DONE"
)

// BoardColumns lists every column key in canonical order.
var BoardColumns = []CardStatus{CardStatusTodo, CardStatusInProgress, CardStatusReview, CardStatusDone}

// ValidCardStatus reports whether the key names a known column.
func ValidCardStatus(s CardStatus) bool {
	for _, c := range BoardColumns {
		if c == s {
			return true
		}
	}
	return false
}

// ProgressCard is a lesson-assignment card on the progress board.
// Position is a dense 0..N-1 rank within (school_id, status). Version is a
// monotonically increasing counter bumped on every successful move and is
// the optimistic-concurrency token clients echo back.
type ProgressCard struct {
	ID        string     `db:"id" json:"id"`
	SchoolID  string     `db:"school_id" json:"school_id"`
	LessonID  string     `db:"lesson_id" json:"lesson_id"`
	StudentID *string    `db:"student_id" json:"student_id,omitempty"`
	Title     string     `db:"title" json:"title"`
	Status    CardStatus `db:"status" json:"status"`
	Position  int        `db:"position" json:"position"`
	LockedBy  *string    `db:"locked_by" json:"locked_by,omitempty"`
	Version   int64      `db:"version" json:"version"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// IsTemplate reports whether the card is a template (no student assigned).
func (c *ProgressCard) IsTemplate() bool {
	return c.StudentID == nil || *c.StudentID == ""
}

// BoardColumn is one ordered column of the board.
type BoardColumn struct {
	Status CardStatus     `json:"status"`
	Cards  []ProgressCard `json:"cards"`
}

// BoardSnapshot is the full board state for a school, optionally filtered
// to a single student.
type BoardSnapshot struct {
	SchoolID  string        `json:"school_id"`
	StudentID string        `json:"student_id,omitempty"`
	Columns   []BoardColumn `json:"columns"`
	FetchedAt time.Time     `json:"fetched_at"`
}
