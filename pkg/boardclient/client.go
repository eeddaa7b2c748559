// Package boardclient keeps a local progress-board replica in sync with the
// server. Moves apply optimistically to the replica first; on rejection the
// replica rolls back to the exact pre-move snapshot and the next read forces
// a refetch.
package boardclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/models"
)

// DefaultMoveTimeout bounds how long a move may stay in flight.
const DefaultMoveTimeout = 10 * time.Second

// API is the server surface the client depends on.
type API interface {
	FetchBoard(ctx context.Context, studentID string) (*models.BoardSnapshot, error)
	MoveCard(ctx context.Context, cardID string, req dto.MoveCardRequest) (*dto.MoveCardResult, error)
}

// ErrMoveInFlight is returned while a previous move is still unresolved.
var ErrMoveInFlight = fmt.Errorf("a move is already in flight")

// ErrStale is returned when the replica must be refreshed before further
// moves are accepted.
var ErrStale = fmt.Errorf("board state is stale, refresh required")

// Client holds the local board replica.
type Client struct {
	api         API
	studentID   string
	moveTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	columns  map[models.CardStatus][]models.ProgressCard
	inFlight bool
	stale    bool
	fetched  time.Time
}

// Option tunes client construction.
type Option func(*Client)

// WithMoveTimeout overrides the in-flight move deadline.
func WithMoveTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.moveTimeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client for one student view (empty studentID shows the whole
// school board).
func New(api API, studentID string, opts ...Option) *Client {
	c := &Client{
		api:         api,
		studentID:   studentID,
		moveTimeout: DefaultMoveTimeout,
		logger:      zap.NewNop(),
		columns:     make(map[models.CardStatus][]models.ProgressCard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh replaces the replica with a fresh server snapshot.
func (c *Client) Refresh(ctx context.Context) error {
	snapshot, err := c.api.FetchBoard(ctx, c.studentID)
	if err != nil {
		return fmt.Errorf("fetch board: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.columns = make(map[models.CardStatus][]models.ProgressCard, len(snapshot.Columns))
	for _, column := range snapshot.Columns {
		cards := make([]models.ProgressCard, len(column.Cards))
		copy(cards, column.Cards)
		c.columns[column.Status] = cards
	}
	c.stale = false
	c.fetched = snapshot.FetchedAt
	return nil
}

// Board returns a copy of the replica's columns in canonical order.
// After a rejected move the replica is stale and must be refreshed first.
func (c *Client) Board() ([]models.BoardColumn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale {
		return nil, ErrStale
	}
	columns := make([]models.BoardColumn, 0, len(models.BoardColumns))
	for _, status := range models.BoardColumns {
		cards := make([]models.ProgressCard, len(c.columns[status]))
		copy(cards, c.columns[status])
		columns = append(columns, models.BoardColumn{Status: status, Cards: cards})
	}
	return columns, nil
}

// Card looks up a card in the replica by ID.
func (c *Client) Card(cardID string) (*models.ProgressCard, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cards := range c.columns {
		for _, card := range cards {
			if card.ID == cardID {
				copied := card
				return &copied, true
			}
		}
	}
	return nil, false
}

// MoveCard applies the move optimistically, then confirms it with the
// server. Only one move may be in flight at a time. On any server rejection
// the replica reverts to the exact pre-move snapshot and is marked stale.
func (c *Client) MoveCard(ctx context.Context, cardID string, newStatus models.CardStatus, newPosition int) (*dto.MoveCardResult, error) {
	if !models.ValidCardStatus(newStatus) {
		return nil, fmt.Errorf("unknown column %q", newStatus)
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrMoveInFlight
	}
	if c.stale {
		c.mu.Unlock()
		return nil, ErrStale
	}

	card, fromStatus, ok := c.locate(cardID)
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("card %s not in local board", cardID)
	}
	if fromStatus == newStatus {
		c.mu.Unlock()
		return nil, fmt.Errorf("card already in column %s", newStatus)
	}

	snapshot := c.snapshotLocked()
	c.applyLocalMove(card, fromStatus, newStatus, newPosition)
	c.inFlight = true
	c.mu.Unlock()

	moveCtx, cancel := context.WithTimeout(ctx, c.moveTimeout)
	defer cancel()

	result, err := c.api.MoveCard(moveCtx, cardID, dto.MoveCardRequest{
		NewStatus:   string(newStatus),
		NewPosition: newPosition,
		Version:     card.Version,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false

	if err != nil {
		c.columns = snapshot
		c.stale = true
		c.logger.Warn("move rejected, local board rolled back",
			zap.String("card_id", cardID), zap.Error(err))
		return nil, err
	}

	// Adopt the canonical columns so local renumbering drift disappears.
	c.columns[result.Source.Status] = append([]models.ProgressCard(nil), result.Source.Cards...)
	c.columns[result.Destination.Status] = append([]models.ProgressCard(nil), result.Destination.Cards...)
	return result, nil
}

// locate finds a card and its column. Caller holds the lock.
func (c *Client) locate(cardID string) (models.ProgressCard, models.CardStatus, bool) {
	for status, cards := range c.columns {
		for _, card := range cards {
			if card.ID == cardID {
				return card, status, true
			}
		}
	}
	return models.ProgressCard{}, "", false
}

// snapshotLocked deep-copies the replica. Caller holds the lock.
func (c *Client) snapshotLocked() map[models.CardStatus][]models.ProgressCard {
	snapshot := make(map[models.CardStatus][]models.ProgressCard, len(c.columns))
	for status, cards := range c.columns {
		copied := make([]models.ProgressCard, len(cards))
		copy(copied, cards)
		snapshot[status] = copied
	}
	return snapshot
}

// applyLocalMove splices the card out of its column and into the target,
// renumbering both densely. Caller holds the lock.
func (c *Client) applyLocalMove(card models.ProgressCard, from, to models.CardStatus, position int) {
	source := c.columns[from]
	remaining := make([]models.ProgressCard, 0, len(source))
	for _, sibling := range source {
		if sibling.ID == card.ID {
			continue
		}
		remaining = append(remaining, sibling)
	}
	for i := range remaining {
		remaining[i].Position = i
	}
	c.columns[from] = remaining

	destination := c.columns[to]
	if position > len(destination) {
		position = len(destination)
	}
	if position < 0 {
		position = 0
	}
	card.Status = to
	card.Position = position

	updated := make([]models.ProgressCard, 0, len(destination)+1)
	updated = append(updated, destination[:position]...)
	updated = append(updated, card)
	updated = append(updated, destination[position:]...)
	for i := range updated {
		updated[i].Position = i
	}
	c.columns[to] = updated
}
