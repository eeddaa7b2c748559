package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

// stubCardStore keeps cards in memory and mimics the repository contract.
type stubCardStore struct {
	cards map[string]*models.ProgressCard

	applyErr      error
	applied       bool
	lockedColumns []models.CardStatus
}

func newStubCardStore(cards ...models.ProgressCard) *stubCardStore {
	store := &stubCardStore{cards: make(map[string]*models.ProgressCard, len(cards))}
	for i := range cards {
		card := cards[i]
		store.cards[card.ID] = &card
	}
	return store
}

func (s *stubCardStore) FindByID(_ context.Context, id string) (*models.ProgressCard, error) {
	card, ok := s.cards[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *card
	return &copied, nil
}

func (s *stubCardStore) FindByIDForUpdate(ctx context.Context, _ sqlx.ExtContext, id string) (*models.ProgressCard, error) {
	return s.FindByID(ctx, id)
}

func (s *stubCardStore) ListColumnForUpdate(_ context.Context, _ sqlx.ExtContext, schoolID string, status models.CardStatus) ([]models.ProgressCard, error) {
	s.lockedColumns = append(s.lockedColumns, status)
	var column []models.ProgressCard
	for _, card := range s.cards {
		if card.SchoolID == schoolID && card.Status == status {
			column = append(column, *card)
		}
	}
	sort.Slice(column, func(i, j int) bool { return column[i].Position < column[j].Position })
	return column, nil
}

func (s *stubCardStore) UpdatePosition(_ context.Context, _ sqlx.ExtContext, id string, position int) error {
	s.cards[id].Position = position
	return nil
}

func (s *stubCardStore) ApplyMove(_ context.Context, _ sqlx.ExtContext, id string, status models.CardStatus, position int, version int64, updatedAt time.Time) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	card := s.cards[id]
	card.Status = status
	card.Position = position
	card.Version = version
	card.UpdatedAt = updatedAt
	s.applied = true
	return nil
}

func (s *stubCardStore) ListBoard(_ context.Context, schoolID, studentID string) ([]models.ProgressCard, error) {
	var cards []models.ProgressCard
	for _, card := range s.cards {
		if card.SchoolID != schoolID {
			continue
		}
		if studentID != "" && card.StudentID != nil && *card.StudentID != studentID {
			continue
		}
		cards = append(cards, *card)
	}
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Status != cards[j].Status {
			return cards[i].Status < cards[j].Status
		}
		return cards[i].Position < cards[j].Position
	})
	return cards, nil
}

func (s *stubCardStore) SetLock(_ context.Context, id string, lockedBy *string) error {
	s.cards[id].LockedBy = lockedBy
	return nil
}

func boardFixture() []models.ProgressCard {
	return []models.ProgressCard{
		{ID: "card-a", SchoolID: "school-1", Title: "Counting", Status: models.CardStatusTodo, Position: 0, Version: 3},
		{ID: "card-b", SchoolID: "school-1", Title: "Shapes", Status: models.CardStatusTodo, Position: 1, Version: 1},
		{ID: "card-c", SchoolID: "school-1", Title: "Colors", Status: models.CardStatusTodo, Position: 2, Version: 5},
		{ID: "card-d", SchoolID: "school-1", Title: "Letters", Status: models.CardStatusInProgress, Position: 0, Version: 2},
	}
}

func teacherActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "teacher-1", SchoolID: "school-1", Role: models.RoleTeacher}
}

func TestMoveCardRenumbersBothColumns(t *testing.T) {
	store := newStubCardStore(boardFixture()...)
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	logs := &stubAccessLogs{}
	svc := NewBoardService(store, logs, nil, db, nil, zap.NewNop(), BoardServiceConfig{})

	result, err := svc.MoveCard(context.Background(), "card-a", dto.MoveCardRequest{
		NewStatus:   string(models.CardStatusInProgress),
		NewPosition: 0,
		Version:     3,
	}, teacherActor(), RequestMeta{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, models.CardStatusInProgress, result.Card.Status)
	assert.Equal(t, 0, result.Card.Position)
	assert.Equal(t, int64(4), result.Card.Version)

	// source column closed the gap: card-b, card-c now 0,1
	assert.Equal(t, 0, store.cards["card-b"].Position)
	assert.Equal(t, 1, store.cards["card-c"].Position)
	// destination shifted: card-d pushed to 1
	assert.Equal(t, 1, store.cards["card-d"].Position)

	require.Len(t, result.Source.Cards, 2)
	require.Len(t, result.Destination.Cards, 2)
	for i, card := range result.Destination.Cards {
		assert.Equal(t, i, card.Position)
	}

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.AccessActionCardMoved, logs.entries[0].Action)
	assert.Equal(t, models.AccessTargetProgressCard, logs.entries[0].TargetType)
}

func TestMoveCardClampsPositionToColumnEnd(t *testing.T) {
	store := newStubCardStore(boardFixture()...)
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := NewBoardService(store, &stubAccessLogs{}, nil, db, nil, zap.NewNop(), BoardServiceConfig{})

	result, err := svc.MoveCard(context.Background(), "card-a", dto.MoveCardRequest{
		NewStatus:   string(models.CardStatusInProgress),
		NewPosition: 99,
		Version:     3,
	}, teacherActor(), RequestMeta{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, result.Card.Position)
	assert.Equal(t, 0, store.cards["card-d"].Position)
}

func TestMoveCardRejectsStaleVersion(t *testing.T) {
	store := newStubCardStore(boardFixture()...)
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	svc := NewBoardService(store, &stubAccessLogs{}, nil, db, nil, zap.NewNop(), BoardServiceConfig{})

	_, err := svc.MoveCard(context.Background(), "card-a", dto.MoveCardRequest{
		NewStatus:   string(models.CardStatusInProgress),
		NewPosition: 0,
		Version:     2,
	}, teacherActor(), RequestMeta{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)
	assert.Equal(t, "stale card version", typed.Message)
	assert.False(t, store.applied)
}

func TestMoveCardRespectsForeignLock(t *testing.T) {
	cards := boardFixture()
	other := "teacher-2"
	cards[0].LockedBy = &other
	store := newStubCardStore(cards...)
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	svc := NewBoardService(store, &stubAccessLogs{}, nil, db, nil, zap.NewNop(), BoardServiceConfig{})

	_, err := svc.MoveCard(context.Background(), "card-a", dto.MoveCardRequest{
		NewStatus:   string(models.CardStatusInProgress),
		NewPosition: 0,
		Version:     3,
	}, teacherActor(), RequestMeta{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrLocked.Code, typed.Code)
}

func TestMoveCardRejectsSameColumn(t *testing.T) {
	store := newStubCardStore(boardFixture()...)
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	svc := NewBoardService(store, &stubAccessLogs{}, nil, db, nil, zap.NewNop(), BoardServiceConfig{})

	_, err := svc.MoveCard(context.Background(), "card-a", dto.MoveCardRequest{
		NewStatus:   string(models.CardStatusTodo),
		NewPosition: 2,
		Version:     3,
	}, teacherActor(), RequestMeta{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrValidation.Code, typed.Code)
}

func TestMoveCardRejectsUnknownColumn(t *testing.T) {
	store := newStubCardStore(boardFixture()...)
	db, _ := newTxProvider(t)
	svc := NewBoardService(store, &stubAccessLogs{}, nil, db, nil, zap.NewNop(), BoardServiceConfig{})

	_, err := svc.MoveCard(context.Background(), "card-a", dto.MoveCardRequest{
		NewStatus:   "ARCHIVED",
		NewPosition: 0,
		Version:     3,
	}, teacherActor(), RequestMeta{})
	require.Error(t, err)

	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrValidation.Code, typed.Code)
}

func TestMoveCardLocksColumnsInBoardOrder(t *testing.T) {
	// Whichever direction the card travels, the two columns must lock in
	// fixed board order or opposite moves could deadlock each other.
	store := newStubCardStore(boardFixture()...)
	db, mock := newTxProvider(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := NewBoardService(store, &stubAccessLogs{}, nil, db, nil, zap.NewNop(), BoardServiceConfig{})

	_, err := svc.MoveCard(context.Background(), "card-d", dto.MoveCardRequest{
		NewStatus:   string(models.CardStatusTodo),
		NewPosition: 0,
		Version:     2,
	}, teacherActor(), RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, []models.CardStatus{models.CardStatusTodo, models.CardStatusInProgress}, store.lockedColumns)

	store.lockedColumns = nil
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err = svc.MoveCard(context.Background(), "card-d", dto.MoveCardRequest{
		NewStatus:   string(models.CardStatusInProgress),
		NewPosition: 0,
		Version:     3,
	}, teacherActor(), RequestMeta{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []models.CardStatus{models.CardStatusTodo, models.CardStatusInProgress}, store.lockedColumns)
}

func TestGetBoardReturnsAllColumnsInOrder(t *testing.T) {
	store := newStubCardStore(boardFixture()...)
	db, _ := newTxProvider(t)
	svc := NewBoardService(store, &stubAccessLogs{}, nil, db, nil, zap.NewNop(), BoardServiceConfig{})

	snapshot, cacheHit, err := svc.GetBoard(context.Background(), dto.BoardFilter{SchoolID: "school-1"}, teacherActor())
	require.NoError(t, err)
	assert.False(t, cacheHit)

	require.Len(t, snapshot.Columns, len(models.BoardColumns))
	for i, column := range snapshot.Columns {
		assert.Equal(t, models.BoardColumns[i], column.Status)
	}
	assert.Len(t, snapshot.Columns[0].Cards, 3)
	assert.Len(t, snapshot.Columns[1].Cards, 1)
	assert.Empty(t, snapshot.Columns[2].Cards)
	assert.Empty(t, snapshot.Columns[3].Cards)
}

func TestLockAndUnlockCard(t *testing.T) {
	store := newStubCardStore(boardFixture()...)
	db, _ := newTxProvider(t)
	svc := NewBoardService(store, &stubAccessLogs{}, nil, db, nil, zap.NewNop(), BoardServiceConfig{})
	actor := teacherActor()

	card, err := svc.LockCard(context.Background(), "card-a", actor)
	require.NoError(t, err)
	require.NotNil(t, card.LockedBy)
	assert.Equal(t, actor.UserID, *card.LockedBy)

	// another teacher cannot move or steal the lock
	other := &models.JWTClaims{UserID: "teacher-2", SchoolID: "school-1", Role: models.RoleTeacher}
	_, err = svc.LockCard(context.Background(), "card-a", other)
	require.Error(t, err)

	card, err = svc.UnlockCard(context.Background(), "card-a", actor)
	require.NoError(t, err)
	assert.Nil(t, card.LockedBy)
}

func TestUnlockCardAllowsAdminOverride(t *testing.T) {
	cards := boardFixture()
	holder := "teacher-2"
	cards[0].LockedBy = &holder
	store := newStubCardStore(cards...)
	db, _ := newTxProvider(t)
	svc := NewBoardService(store, &stubAccessLogs{}, nil, db, nil, zap.NewNop(), BoardServiceConfig{})

	admin := &models.JWTClaims{UserID: "admin-1", SchoolID: "school-1", Role: models.RoleAdmin}
	card, err := svc.UnlockCard(context.Background(), "card-a", admin)
	require.NoError(t, err)
	assert.Nil(t, card.LockedBy)
}
