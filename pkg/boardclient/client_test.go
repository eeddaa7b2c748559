package boardclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/models"
)

type fakeAPI struct {
	snapshot *models.BoardSnapshot
	moveErr  error
	moveFn   func(ctx context.Context, cardID string, req dto.MoveCardRequest) (*dto.MoveCardResult, error)
	lastMove *dto.MoveCardRequest
}

func (f *fakeAPI) FetchBoard(_ context.Context, _ string) (*models.BoardSnapshot, error) {
	return f.snapshot, nil
}

func (f *fakeAPI) MoveCard(ctx context.Context, cardID string, req dto.MoveCardRequest) (*dto.MoveCardResult, error) {
	f.lastMove = &req
	if f.moveFn != nil {
		return f.moveFn(ctx, cardID, req)
	}
	if f.moveErr != nil {
		return nil, f.moveErr
	}
	// echo a canonical result matching the requested move
	card := models.ProgressCard{
		ID:       cardID,
		SchoolID: "school-1",
		Status:   models.CardStatus(req.NewStatus),
		Position: req.NewPosition,
		Version:  req.Version + 1,
	}
	return &dto.MoveCardResult{
		Card:        card,
		Source:      models.BoardColumn{Status: models.CardStatusTodo, Cards: []models.ProgressCard{}},
		Destination: models.BoardColumn{Status: card.Status, Cards: []models.ProgressCard{card}},
	}, nil
}

func snapshotFixture() *models.BoardSnapshot {
	return &models.BoardSnapshot{
		SchoolID: "school-1",
		Columns: []models.BoardColumn{
			{Status: models.CardStatusTodo, Cards: []models.ProgressCard{
				{ID: "card-a", SchoolID: "school-1", Status: models.CardStatusTodo, Position: 0, Version: 7},
			}},
			{Status: models.CardStatusInProgress, Cards: []models.ProgressCard{}},
			{Status: models.CardStatusReview, Cards: []models.ProgressCard{}},
			{Status: models.CardStatusDone, Cards: []models.ProgressCard{}},
		},
		FetchedAt: time.Now().UTC(),
	}
}

func TestMoveCardAdoptsCanonicalState(t *testing.T) {
	api := &fakeAPI{snapshot: snapshotFixture()}
	client := New(api, "")
	require.NoError(t, client.Refresh(context.Background()))

	result, err := client.MoveCard(context.Background(), "card-a", models.CardStatusInProgress, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(8), result.Card.Version)
	require.NotNil(t, api.lastMove)
	assert.Equal(t, int64(7), api.lastMove.Version)

	columns, err := client.Board()
	require.NoError(t, err)
	assert.Empty(t, columns[0].Cards)
	require.Len(t, columns[1].Cards, 1)
	assert.Equal(t, "card-a", columns[1].Cards[0].ID)
}

func TestMoveCardRollsBackToExactSnapshotOnRejection(t *testing.T) {
	api := &fakeAPI{snapshot: snapshotFixture(), moveErr: errors.New("stale card version")}
	client := New(api, "")
	require.NoError(t, client.Refresh(context.Background()))

	before, err := client.Board()
	require.NoError(t, err)

	_, err = client.MoveCard(context.Background(), "card-a", models.CardStatusDone, 0)
	require.Error(t, err)

	// replica reverted, but reads are refused until a refresh
	_, err = client.Board()
	require.ErrorIs(t, err, ErrStale)
	_, err = client.MoveCard(context.Background(), "card-a", models.CardStatusDone, 0)
	require.ErrorIs(t, err, ErrStale)

	require.NoError(t, client.Refresh(context.Background()))
	after, err := client.Board()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMoveCardRejectsConcurrentMoves(t *testing.T) {
	api := &fakeAPI{snapshot: snapshotFixture()}
	release := make(chan struct{})
	started := make(chan struct{})
	api.moveFn = func(_ context.Context, cardID string, req dto.MoveCardRequest) (*dto.MoveCardResult, error) {
		close(started)
		<-release
		card := models.ProgressCard{ID: cardID, Status: models.CardStatus(req.NewStatus), Position: req.NewPosition, Version: req.Version + 1}
		return &dto.MoveCardResult{
			Card:        card,
			Source:      models.BoardColumn{Status: models.CardStatusTodo, Cards: []models.ProgressCard{}},
			Destination: models.BoardColumn{Status: card.Status, Cards: []models.ProgressCard{card}},
		}, nil
	}

	client := New(api, "")
	require.NoError(t, client.Refresh(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := client.MoveCard(context.Background(), "card-a", models.CardStatusInProgress, 0)
		done <- err
	}()

	<-started
	_, err := client.MoveCard(context.Background(), "card-a", models.CardStatusDone, 0)
	require.ErrorIs(t, err, ErrMoveInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestMoveCardTimesOutSlowServer(t *testing.T) {
	api := &fakeAPI{snapshot: snapshotFixture()}
	api.moveFn = func(ctx context.Context, _ string, _ dto.MoveCardRequest) (*dto.MoveCardResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	client := New(api, "", WithMoveTimeout(20*time.Millisecond))
	require.NoError(t, client.Refresh(context.Background()))

	_, err := client.MoveCard(context.Background(), "card-a", models.CardStatusDone, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = client.Board()
	require.ErrorIs(t, err, ErrStale)
}

func TestMoveCardRejectsUnknownCardWithoutServerCall(t *testing.T) {
	api := &fakeAPI{snapshot: snapshotFixture()}
	client := New(api, "")
	require.NoError(t, client.Refresh(context.Background()))

	_, err := client.MoveCard(context.Background(), "card-zz", models.CardStatusDone, 0)
	require.Error(t, err)
	assert.Nil(t, api.lastMove)
}
