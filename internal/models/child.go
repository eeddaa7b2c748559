package models

import "time"

// ChildEnrollmentStatus represents the lifecycle of an enrolled child.
type ChildEnrollmentStatus string

// Possible enrollment statuses for a child profile.
const (
	ChildEnrollmentActive     ChildEnrollmentStatus = "ACTIVE"
	ChildEnrollmentInactive   ChildEnrollmentStatus = "INACTIVE"
	ChildEnrollmentWaitlisted ChildEnrollmentStatus = "WAITLISTED"
)

// ChildProfile is the durable enrollment record created from an approved
// application. It references its originating application but is owned
// independently afterwards.
type ChildProfile struct {
	ID                string                `db:"id" json:"id"`
	ApplicationID     string                `db:"application_id" json:"application_id"`
	SchoolID          string                `db:"school_id" json:"school_id"`
	FirstName         string                `db:"first_name" json:"first_name"`
	LastName          string                `db:"last_name" json:"last_name"`
	DateOfBirth       time.Time             `db:"date_of_birth" json:"date_of_birth"`
	Gender            string                `db:"gender" json:"gender"`
	SpecialNeeds      string                `db:"special_needs" json:"special_needs,omitempty"`
	MedicalConditions string                `db:"medical_conditions" json:"medical_conditions,omitempty"`
	EnrollmentStatus  ChildEnrollmentStatus `db:"enrollment_status" json:"enrollment_status"`
	CreatedAt         time.Time             `db:"created_at" json:"created_at"`
}

// ChildFilter provides filters for listing children.
type ChildFilter struct {
	SchoolID         string
	EnrollmentStatus ChildEnrollmentStatus
	Search           string
	Page             int
	PageSize         int
	SortBy           string
	SortOrder        string
}

// RosterRow is a child joined with its primary contact, used for exports.
type RosterRow struct {
	ChildID          string                `db:"child_id" json:"child_id"`
	ChildName        string                `db:"child_name" json:"child_name"`
	DateOfBirth      time.Time             `db:"date_of_birth" json:"date_of_birth"`
	EnrollmentStatus ChildEnrollmentStatus `db:"enrollment_status" json:"enrollment_status"`
	ParentName       string                `db:"parent_name" json:"parent_name"`
	ParentEmail      string                `db:"parent_email" json:"parent_email"`
	ParentPhone      string                `db:"parent_phone" json:"parent_phone"`
}
