package dto

import (
	"time"

	"github.com/noah-isme/school-ops-api/internal/models"
)

// ParentBlockRequest is one parent section of an intake submission.
type ParentBlockRequest struct {
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required"`
	Relationship string `json:"relationship" validate:"required,oneof=MOTHER FATHER GUARDIAN OTHER"`
}

// SubmitApplicationRequest is the public intake payload. Parents holds one
// or two blocks; the first is the primary contact.
type SubmitApplicationRequest struct {
	SchoolID          string               `json:"school_id" validate:"required"`
	ChildFirstName    string               `json:"child_first_name" validate:"required"`
	ChildLastName     string               `json:"child_last_name" validate:"required"`
	ChildDateOfBirth  time.Time            `json:"child_date_of_birth" validate:"required"`
	ChildGender       string               `json:"child_gender" validate:"required,oneof=MALE FEMALE"`
	SpecialNeeds      string               `json:"special_needs"`
	MedicalConditions string               `json:"medical_conditions"`
	Parents           []ParentBlockRequest `json:"parents" validate:"required,min=1,max=2,dive"`
}

// RejectApplicationRequest carries the optional rejection reason.
type RejectApplicationRequest struct {
	Reason string `json:"reason"`
}

// LinkedParent is a resolved parent profile plus whether the approval
// created it or reused an existing profile.
type LinkedParent struct {
	Profile models.ParentProfile `json:"profile"`
	Created bool                 `json:"created"`
}

// ApprovalResult is the canonical outcome of an approval transaction.
type ApprovalResult struct {
	Application   models.Application               `json:"application"`
	ChildProfile  models.ChildProfile              `json:"child_profile"`
	Parents       []LinkedParent                   `json:"parent_profiles"`
	Relationships []models.ParentChildRelationship `json:"relationships"`
	AccessLog     models.AccessLog                 `json:"access_log"`
}

// RejectionResult is the outcome of a rejection.
type RejectionResult struct {
	Application models.Application `json:"application"`
	AccessLog   models.AccessLog   `json:"access_log"`
}
