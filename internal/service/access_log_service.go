package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type accessLogReader interface {
	List(ctx context.Context, filter models.AccessLogFilter) ([]models.AccessLog, int, error)
}

// AccessLogService serves the audit trail, scoped to the actor's school.
type AccessLogService struct {
	logs   accessLogReader
	logger *zap.Logger
}

// NewAccessLogService wires the audit read side.
func NewAccessLogService(logs accessLogReader, logger *zap.Logger) *AccessLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessLogService{logs: logs, logger: logger}
}

// List returns access log entries, newest first.
func (s *AccessLogService) List(ctx context.Context, filter models.AccessLogFilter, actor *models.JWTClaims) ([]models.AccessLog, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleSuperAdmin {
		filter.SchoolID = actor.SchoolID
	}
	if filter.SchoolID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "school_id is required")
	}

	entries, total, err := s.logs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list access logs")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
