package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type stubApplicationStore struct {
	created    *models.Application
	createErr  error
	listFilter models.ApplicationFilter
	listResult []models.Application
	listTotal  int
}

func (s *stubApplicationStore) List(_ context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	s.listFilter = filter
	return s.listResult, s.listTotal, nil
}

func (s *stubApplicationStore) FindByID(_ context.Context, _ string) (*models.Application, error) {
	if s.created != nil {
		return s.created, nil
	}
	return nil, errors.New("not found")
}

func (s *stubApplicationStore) Create(_ context.Context, application *models.Application) error {
	if s.createErr != nil {
		return s.createErr
	}
	application.ID = "app-1"
	s.created = application
	return nil
}

func submitRequest() dto.SubmitApplicationRequest {
	return dto.SubmitApplicationRequest{
		SchoolID:         "school-1",
		ChildFirstName:   "Jo",
		ChildLastName:    "Doe",
		ChildDateOfBirth: time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC),
		ChildGender:      "FEMALE",
		Parents: []dto.ParentBlockRequest{
			{FirstName: "Mia", LastName: "Doe", Email: "mom@example.com", Phone: "555-0101", Relationship: "MOTHER"},
			{FirstName: "Dan", LastName: "Doe", Email: "dad@example.com", Phone: "555-0102", Relationship: "FATHER"},
		},
	}
}

func TestSubmitMapsParentBlocksToColumns(t *testing.T) {
	store := &stubApplicationStore{}
	svc := NewApplicationService(store, nil, zap.NewNop())

	application, err := svc.Submit(context.Background(), submitRequest())
	require.NoError(t, err)

	assert.Equal(t, models.ApplicationStatusPending, application.Status)
	assert.Equal(t, "mom@example.com", application.Parent1Email)
	assert.Equal(t, models.RelationshipMother, application.Parent1Relationship)
	require.NotNil(t, application.Parent2Email)
	assert.Equal(t, "dad@example.com", *application.Parent2Email)
	require.NotNil(t, application.Parent2Relationship)
	assert.Equal(t, models.RelationshipFather, *application.Parent2Relationship)
}

func TestSubmitRequiresAtLeastOneParent(t *testing.T) {
	store := &stubApplicationStore{}
	svc := NewApplicationService(store, nil, zap.NewNop())

	req := submitRequest()
	req.Parents = nil
	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)

	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrValidation.Code, typed.Code)
	assert.Nil(t, store.created)
}

func TestSubmitRejectsThreeParentBlocks(t *testing.T) {
	store := &stubApplicationStore{}
	svc := NewApplicationService(store, nil, zap.NewNop())

	req := submitRequest()
	req.Parents = append(req.Parents, dto.ParentBlockRequest{
		FirstName: "Gus", LastName: "Doe", Email: "uncle@example.com", Phone: "555-0103", Relationship: "GUARDIAN",
	})
	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, store.created)
}

func TestListScopesNonSuperadminsToOwnSchool(t *testing.T) {
	store := &stubApplicationStore{listResult: []models.Application{}, listTotal: 0}
	svc := NewApplicationService(store, nil, zap.NewNop())

	actor := &models.JWTClaims{UserID: "admin-1", SchoolID: "school-1", Role: models.RoleAdmin}
	_, _, err := svc.List(context.Background(), models.ApplicationFilter{SchoolID: "school-2"}, actor)
	require.NoError(t, err)
	assert.Equal(t, "school-1", store.listFilter.SchoolID)
}

func TestListAllowsSuperadminCrossSchool(t *testing.T) {
	store := &stubApplicationStore{listResult: []models.Application{}, listTotal: 0}
	svc := NewApplicationService(store, nil, zap.NewNop())

	actor := &models.JWTClaims{UserID: "root", SchoolID: "school-1", Role: models.RoleSuperAdmin}
	_, _, err := svc.List(context.Background(), models.ApplicationFilter{SchoolID: "school-2"}, actor)
	require.NoError(t, err)
	assert.Equal(t, "school-2", store.listFilter.SchoolID)
}
