package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/internal/models"
)

type stubParentStore struct {
	existing  *models.ParentProfile
	findErr   error
	createErr error
	created   *models.ParentProfile
}

func (s *stubParentStore) FindBySchoolAndEmailForUpdate(_ context.Context, _ sqlx.ExtContext, _, _ string) (*models.ParentProfile, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.existing, nil
}

func (s *stubParentStore) CreateWithExec(_ context.Context, _ sqlx.ExtContext, parent *models.ParentProfile) error {
	if s.createErr != nil {
		return s.createErr
	}
	parent.ID = "parent-new"
	s.created = parent
	return nil
}

func TestResolveOrCreateReusesExistingProfile(t *testing.T) {
	store := &stubParentStore{existing: &models.ParentProfile{
		ID:        "parent-1",
		SchoolID:  "school-1",
		FirstName: "Stored",
		LastName:  "Name",
		Email:     "mom@example.com",
		Phone:     "555-0100",
	}}
	linker := NewParentLinker(store)

	block := models.ParentBlock{
		FirstName: "Fresh",
		LastName:  "Data",
		Email:     "MOM@EXAMPLE.COM",
		Phone:     "555-9999",
	}
	parent, created, err := linker.ResolveOrCreate(context.Background(), nil, "school-1", block)
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, "parent-1", parent.ID)
	// stored profile wins over the application's data
	assert.Equal(t, "Stored", parent.FirstName)
	assert.Equal(t, "555-0100", parent.Phone)
	assert.Nil(t, store.created)
}

func TestResolveOrCreateCreatesOnFirstReference(t *testing.T) {
	store := &stubParentStore{findErr: sql.ErrNoRows}
	linker := NewParentLinker(store)

	block := models.ParentBlock{
		FirstName: "New",
		LastName:  "Parent",
		Email:     "dad@example.com",
		Phone:     "555-0101",
	}
	parent, created, err := linker.ResolveOrCreate(context.Background(), nil, "school-1", block)
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, "parent-new", parent.ID)
	assert.Equal(t, "school-1", parent.SchoolID)
	assert.Equal(t, "dad@example.com", parent.Email)
	require.NotNil(t, store.created)
}

func TestResolveOrCreatePropagatesLookupError(t *testing.T) {
	store := &stubParentStore{findErr: errors.New("connection reset")}
	linker := NewParentLinker(store)

	_, _, err := linker.ResolveOrCreate(context.Background(), nil, "school-1", models.ParentBlock{Email: "x@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve parent by email")
}
