package models

import "time"

// ParentProfile identifies a parent within a school. At most one profile
// exists per (school_id, lower(email)); subsequent applications with the
// same email reuse it unchanged.
type ParentProfile struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ParentChildRelationship links a parent profile to a child profile.
// A child carries at most two relationships and never a duplicate
// (parent_id, child_id) pair.
type ParentChildRelationship struct {
	ID               string           `db:"id" json:"id"`
	ParentID         string           `db:"parent_id" json:"parent_id"`
	ChildID          string           `db:"child_id" json:"child_id"`
	RelationshipType RelationshipType `db:"relationship_type" json:"relationship_type"`
	PrimaryContact   bool             `db:"primary_contact" json:"primary_contact"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// ParentFilter provides filters for listing parent profiles.
type ParentFilter struct {
	SchoolID  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
