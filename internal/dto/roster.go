package dto

import "github.com/noah-isme/school-ops-api/internal/models"

// RelatedParent is a parent profile seen from a child's detail view.
type RelatedParent struct {
	Profile        models.ParentProfile    `json:"profile"`
	Relationship   models.RelationshipType `json:"relationship"`
	PrimaryContact bool                    `json:"primary_contact"`
}

// RelatedChild is a child profile seen from a parent's detail view.
type RelatedChild struct {
	Child          models.ChildProfile     `json:"child"`
	Relationship   models.RelationshipType `json:"relationship"`
	PrimaryContact bool                    `json:"primary_contact"`
}

// ChildDetail is a child plus its linked parents.
type ChildDetail struct {
	Child   models.ChildProfile `json:"child"`
	Parents []RelatedParent     `json:"parents"`
}

// ParentDetail is a parent plus its linked children.
type ParentDetail struct {
	Parent   models.ParentProfile `json:"parent"`
	Children []RelatedChild       `json:"children"`
}
