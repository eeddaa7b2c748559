package models

import "time"

// AccessLog action constants.
const (
	AccessActionLogin                = "LOGIN"
	AccessActionLogout               = "LOGOUT"
	AccessActionPasswordChange       = "PASSWORD_CHANGE"
	AccessActionApplicationSubmitted = "APPLICATION_SUBMITTED"
	AccessActionApplicationApproved  = "APPLICATION_APPROVED"
	AccessActionApplicationRejected  = "APPLICATION_REJECTED"
	AccessActionCardMoved            = "CARD_MOVED"
	AccessActionRosterViewed         = "ROSTER_VIEWED"
	AccessActionExportGenerated      = "EXPORT_GENERATED"
	AccessActionExportDownloaded     = "EXPORT_DOWNLOADED"
)

// AccessLog target types.
const (
	AccessTargetApplication  = "APPLICATION"
	AccessTargetProgressCard = "PROGRESS_CARD"
	AccessTargetRoster       = "ROSTER"
	AccessTargetAuth         = "AUTH"
	AccessTargetExport       = "EXPORT"
)

// AccessLog is an append-only audit trail record. One row is written per
// approval/rejection decision and per successful card move.
type AccessLog struct {
	ID         string    `db:"id" json:"id"`
	SchoolID   string    `db:"school_id" json:"school_id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	TargetType string    `db:"target_type" json:"target_type"`
	TargetID   *string   `db:"target_id" json:"target_id,omitempty"`
	Metadata   []byte    `db:"metadata" json:"metadata,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AccessLogFilter provides filters for listing access logs.
type AccessLogFilter struct {
	SchoolID   string
	Action     string
	TargetType string
	ActorID    string
	Page       int
	PageSize   int
}
