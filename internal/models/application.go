package models

import "time"

// ApplicationStatus represents the decision state of an enrollment application.
type ApplicationStatus string

// Possible application statuses. PENDING transitions to APPROVED or REJECTED
// exactly once; there is no way back.
const (
	ApplicationStatusPending  ApplicationStatus = "PENDING"
	ApplicationStatusApproved ApplicationStatus = "APPROVED"
	ApplicationStatusRejected ApplicationStatus = "REJECTED"
)

// RelationshipType classifies a parent's relationship to a child.
type RelationshipType string

// Supported relationship types.
const (
	RelationshipMother   RelationshipType = "MOTHER"
	RelationshipFather   RelationshipType = "FATHER"
	RelationshipGuardian RelationshipType = "GUARDIAN"
	RelationshipOther    RelationshipType = "OTHER"
)

// MaxParentsPerApplication caps the parent blocks on a single application.
const MaxParentsPerApplication = 2

// Application is a submitted enrollment request awaiting an admin decision.
// Parent block 1 is always the primary contact; block 2 is optional.
type Application struct {
	ID       string            `db:"id" json:"id"`
	SchoolID string            `db:"school_id" json:"school_id"`
	Status   ApplicationStatus `db:"status" json:"status"`

	ChildFirstName    string    `db:"child_first_name" json:"child_first_name"`
	ChildLastName     string    `db:"child_last_name" json:"child_last_name"`
	ChildDateOfBirth  time.Time `db:"child_date_of_birth" json:"child_date_of_birth"`
	ChildGender       string    `db:"child_gender" json:"child_gender"`
	SpecialNeeds      string    `db:"special_needs" json:"special_needs,omitempty"`
	MedicalConditions string    `db:"medical_conditions" json:"medical_conditions,omitempty"`

	Parent1FirstName    string           `db:"parent1_first_name" json:"parent1_first_name"`
	Parent1LastName     string           `db:"parent1_last_name" json:"parent1_last_name"`
	Parent1Email        string           `db:"parent1_email" json:"parent1_email"`
	Parent1Phone        string           `db:"parent1_phone" json:"parent1_phone"`
	Parent1Relationship RelationshipType `db:"parent1_relationship" json:"parent1_relationship"`

	Parent2FirstName    *string           `db:"parent2_first_name" json:"parent2_first_name,omitempty"`
	Parent2LastName     *string           `db:"parent2_last_name" json:"parent2_last_name,omitempty"`
	Parent2Email        *string           `db:"parent2_email" json:"parent2_email,omitempty"`
	Parent2Phone        *string           `db:"parent2_phone" json:"parent2_phone,omitempty"`
	Parent2Relationship *RelationshipType `db:"parent2_relationship" json:"parent2_relationship,omitempty"`

	SubmittedAt     time.Time  `db:"submitted_at" json:"submitted_at"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	ProcessedBy     *string    `db:"processed_by" json:"processed_by,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

// ParentBlock is one of the (at most two) parent value objects on an
// application, normalised out of the flat row columns.
type ParentBlock struct {
	FirstName    string           `json:"first_name"`
	LastName     string           `json:"last_name"`
	Email        string           `json:"email"`
	Phone        string           `json:"phone"`
	Relationship RelationshipType `json:"relationship"`
	Primary      bool             `json:"primary"`
}

// ParentBlocks returns the present parent blocks in declaration order.
// Block 1 is marked primary.
func (a *Application) ParentBlocks() []ParentBlock {
	blocks := []ParentBlock{{
		FirstName:    a.Parent1FirstName,
		LastName:     a.Parent1LastName,
		Email:        a.Parent1Email,
		Phone:        a.Parent1Phone,
		Relationship: a.Parent1Relationship,
		Primary:      true,
	}}
	if a.Parent2Email != nil && *a.Parent2Email != "" {
		block := ParentBlock{Email: *a.Parent2Email, Relationship: RelationshipOther}
		if a.Parent2FirstName != nil {
			block.FirstName = *a.Parent2FirstName
		}
		if a.Parent2LastName != nil {
			block.LastName = *a.Parent2LastName
		}
		if a.Parent2Phone != nil {
			block.Phone = *a.Parent2Phone
		}
		if a.Parent2Relationship != nil {
			block.Relationship = *a.Parent2Relationship
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// ApplicationFilter provides filters for listing applications.
type ApplicationFilter struct {
	SchoolID  string
	Status    ApplicationStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
