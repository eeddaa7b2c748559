package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type boardCardStore interface {
	FindByID(ctx context.Context, id string) (*models.ProgressCard, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ProgressCard, error)
	ListColumnForUpdate(ctx context.Context, exec sqlx.ExtContext, schoolID string, status models.CardStatus) ([]models.ProgressCard, error)
	UpdatePosition(ctx context.Context, exec sqlx.ExtContext, id string, position int) error
	ApplyMove(ctx context.Context, exec sqlx.ExtContext, id string, status models.CardStatus, position int, version int64, updatedAt time.Time) error
	ListBoard(ctx context.Context, schoolID, studentID string) ([]models.ProgressCard, error)
	SetLock(ctx context.Context, id string, lockedBy *string) error
}

// BoardServiceConfig tunes board reads.
type BoardServiceConfig struct {
	CacheTTL time.Duration
}

// BoardService validates and persists progress-board card moves and serves
// board snapshots. Moves are optimistic: the client sends the card version
// it last read and a mismatch is rejected as a stale move.
type BoardService struct {
	cards     boardCardStore
	access    accessLogTxWriter
	cache     *CacheService
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewBoardService wires the board dependencies.
func NewBoardService(cards boardCardStore, access accessLogTxWriter, cache *CacheService, tx txProvider, validate *validator.Validate, logger *zap.Logger, cfg BoardServiceConfig) *BoardService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	return &BoardService{
		cards:     cards,
		access:    access,
		cache:     cache,
		tx:        tx,
		validator: validate,
		logger:    logger,
		cacheTTL:  cfg.CacheTTL,
	}
}

// MoveCard moves a card to a new column position. Preconditions: the card
// is unlocked (or locked by the actor), the version token is current, and
// the destination differs from the current column. Both affected columns
// are renumbered to stay dense inside the same transaction.
func (s *BoardService) MoveCard(ctx context.Context, cardID string, req dto.MoveCardRequest, actor *models.JWTClaims, meta RequestMeta) (*dto.MoveCardResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid move payload")
	}
	newStatus := models.CardStatus(req.NewStatus)
	if !models.ValidCardStatus(newStatus) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown column %q", req.NewStatus))
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open move transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	card, err := s.cards.FindByIDForUpdate(ctx, tx, cardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "card not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load card")
	}
	if err := checkSchoolScope(actor, card.SchoolID); err != nil {
		return nil, err
	}
	if card.LockedBy != nil && *card.LockedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrLocked, "card locked by another user")
	}
	if req.Version != card.Version {
		return nil, appErrors.Clone(appErrors.ErrConflict, "stale card version")
	}
	if newStatus == card.Status {
		return nil, appErrors.Clone(appErrors.ErrValidation, "card already in target column")
	}

	// Both columns lock in board order, never request order, so two
	// opposite-direction moves cannot deadlock each other.
	firstStatus, secondStatus := card.Status, newStatus
	if columnRank(newStatus) < columnRank(card.Status) {
		firstStatus, secondStatus = newStatus, card.Status
	}
	firstCards, err := s.cards.ListColumnForUpdate(ctx, tx, card.SchoolID, firstStatus)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load board column")
	}
	secondCards, err := s.cards.ListColumnForUpdate(ctx, tx, card.SchoolID, secondStatus)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load board column")
	}
	source, destination := firstCards, secondCards
	if firstStatus != card.Status {
		source, destination = secondCards, firstCards
	}

	// Close the gap left in the source column.
	remaining := make([]models.ProgressCard, 0, len(source))
	for _, sibling := range source {
		if sibling.ID == card.ID {
			continue
		}
		remaining = append(remaining, sibling)
	}
	for i := range remaining {
		if remaining[i].Position != i {
			if err := s.cards.UpdatePosition(ctx, tx, remaining[i].ID, i); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to renumber source column")
			}
			remaining[i].Position = i
		}
	}

	position := req.NewPosition
	if position > len(destination) {
		position = len(destination)
	}
	if position < 0 {
		position = 0
	}

	// Shift destination siblings at or after the insertion point.
	for i := range destination {
		target := i
		if i >= position {
			target = i + 1
		}
		if destination[i].Position != target {
			if err := s.cards.UpdatePosition(ctx, tx, destination[i].ID, target); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to renumber destination column")
			}
			destination[i].Position = target
		}
	}

	now := time.Now().UTC()
	newVersion := card.Version + 1
	if err := s.cards.ApplyMove(ctx, tx, card.ID, newStatus, position, newVersion, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist move")
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"from":     card.Status,
		"to":       newStatus,
		"position": position,
	})
	if err := s.access.CreateWithExec(ctx, tx, &models.AccessLog{
		SchoolID:   card.SchoolID,
		ActorID:    &actor.UserID,
		Action:     models.AccessActionCardMoved,
		TargetType: models.AccessTargetProgressCard,
		TargetID:   &card.ID,
		Metadata:   metadata,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write access log")
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit move")
	}
	committed = true

	if s.cache.Enabled() {
		if err := s.cache.Invalidate(ctx, boardCachePattern(card.SchoolID)); err != nil {
			s.logger.Warn("board cache invalidation failed", zap.String("school_id", card.SchoolID), zap.Error(err))
		}
	}

	sourceStatus := card.Status
	card.Status = newStatus
	card.Position = position
	card.Version = newVersion
	card.UpdatedAt = now

	// Splice the moved card into the destination snapshot at its position.
	destCards := make([]models.ProgressCard, 0, len(destination)+1)
	destCards = append(destCards, destination[:positionIndex(destination, position)]...)
	destCards = append(destCards, *card)
	destCards = append(destCards, destination[positionIndex(destination, position):]...)

	s.logger.Info("card moved",
		zap.String("card_id", card.ID),
		zap.String("school_id", card.SchoolID),
		zap.String("from", string(sourceStatus)),
		zap.String("to", string(newStatus)),
		zap.Int("position", position),
		zap.Int64("version", newVersion))

	return &dto.MoveCardResult{
		Card:        *card,
		Source:      models.BoardColumn{Status: sourceStatus, Cards: remaining},
		Destination: models.BoardColumn{Status: newStatus, Cards: destCards},
	}, nil
}

// columnRank returns the fixed board-order index of a column.
func columnRank(status models.CardStatus) int {
	for i, s := range models.BoardColumns {
		if s == status {
			return i
		}
	}
	return len(models.BoardColumns)
}

// positionIndex locates the slice index where a card with the given
// position belongs inside an already-renumbered column.
func positionIndex(cards []models.ProgressCard, position int) int {
	for i, c := range cards {
		if c.Position > position {
			return i
		}
	}
	return len(cards)
}

// GetBoard returns the board snapshot for a school, optionally scoped to a
// student. Snapshots are served from cache when fresh; the second return
// value reports whether the cache answered.
func (s *BoardService) GetBoard(ctx context.Context, filter dto.BoardFilter, actor *models.JWTClaims) (*models.BoardSnapshot, bool, error) {
	if actor == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	if err := checkSchoolScope(actor, filter.SchoolID); err != nil {
		return nil, false, err
	}

	key := boardCacheKey(filter.SchoolID, filter.StudentID)
	if s.cache.Enabled() {
		var cached models.BoardSnapshot
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	cards, err := s.cards.ListBoard(ctx, filter.SchoolID, filter.StudentID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load board")
	}

	byStatus := make(map[models.CardStatus][]models.ProgressCard, len(models.BoardColumns))
	for _, card := range cards {
		byStatus[card.Status] = append(byStatus[card.Status], card)
	}
	columns := make([]models.BoardColumn, 0, len(models.BoardColumns))
	for _, status := range models.BoardColumns {
		column := byStatus[status]
		if column == nil {
			column = []models.ProgressCard{}
		}
		columns = append(columns, models.BoardColumn{Status: status, Cards: column})
	}

	snapshot := &models.BoardSnapshot{
		SchoolID:  filter.SchoolID,
		StudentID: filter.StudentID,
		Columns:   columns,
		FetchedAt: time.Now().UTC(),
	}
	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, snapshot, s.cacheTTL); err != nil {
			s.logger.Warn("board cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return snapshot, false, nil
}

// LockCard places an advisory lock on a card for the actor.
func (s *BoardService) LockCard(ctx context.Context, cardID string, actor *models.JWTClaims) (*models.ProgressCard, error) {
	card, err := s.loadScopedCard(ctx, cardID, actor)
	if err != nil {
		return nil, err
	}
	if card.LockedBy != nil && *card.LockedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrLocked, "card locked by another user")
	}
	if err := s.cards.SetLock(ctx, card.ID, &actor.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock card")
	}
	card.LockedBy = &actor.UserID
	return card, nil
}

// UnlockCard releases an advisory lock. Only the holder or an admin may
// release it.
func (s *BoardService) UnlockCard(ctx context.Context, cardID string, actor *models.JWTClaims) (*models.ProgressCard, error) {
	card, err := s.loadScopedCard(ctx, cardID, actor)
	if err != nil {
		return nil, err
	}
	if card.LockedBy == nil {
		return card, nil
	}
	if *card.LockedBy != actor.UserID && actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lock held by another user")
	}
	if err := s.cards.SetLock(ctx, card.ID, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlock card")
	}
	card.LockedBy = nil
	return card, nil
}

func (s *BoardService) loadScopedCard(ctx context.Context, cardID string, actor *models.JWTClaims) (*models.ProgressCard, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	card, err := s.cards.FindByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "card not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load card")
	}
	if err := checkSchoolScope(actor, card.SchoolID); err != nil {
		return nil, err
	}
	return card, nil
}

func boardCacheKey(schoolID, studentID string) string {
	if studentID == "" {
		return fmt.Sprintf("board:%s:all", schoolID)
	}
	return fmt.Sprintf("board:%s:%s", schoolID, studentID)
}

func boardCachePattern(schoolID string) string {
	return fmt.Sprintf("board:%s:*", schoolID)
}
