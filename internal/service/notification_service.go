package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/pkg/jobs"
)

// Notification job types.
const (
	jobTypeDecisionApproved = "application.approved"
	jobTypeDecisionRejected = "application.rejected"
)

// DecisionSender delivers a decision notification to the primary contact.
type DecisionSender interface {
	SendApproved(ctx context.Context, result dto.ApprovalResult) error
	SendRejected(ctx context.Context, result dto.RejectionResult) error
}

// LogSender is the default sender; it records the notification instead of
// delivering it. Swap in an SMTP or gateway sender in production.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// SendApproved logs the approval notification.
func (s *LogSender) SendApproved(_ context.Context, result dto.ApprovalResult) error {
	s.logger.Info("approval notification",
		zap.String("application_id", result.Application.ID),
		zap.String("recipient", result.Application.Parent1Email),
		zap.String("child_id", result.ChildProfile.ID))
	return nil
}

// SendRejected logs the rejection notification.
func (s *LogSender) SendRejected(_ context.Context, result dto.RejectionResult) error {
	s.logger.Info("rejection notification",
		zap.String("application_id", result.Application.ID),
		zap.String("recipient", result.Application.Parent1Email))
	return nil
}

// NotificationService dispatches decision notifications onto the background
// queue so approval transactions never block on delivery.
type NotificationService struct {
	queue  *jobs.Queue
	sender DecisionSender
	logger *zap.Logger
}

// NewNotificationService builds the service and its queue. Call Start before
// serving traffic and Stop on shutdown.
func NewNotificationService(sender DecisionSender, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	s := &NotificationService{sender: sender, logger: logger}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	s.queue = jobs.NewQueue("notifications", s.handle, cfg)
	return s
}

// Start begins queue consumption.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyDecision queues an approval notification. Failures to enqueue are
// logged, never surfaced: the decision already committed.
func (s *NotificationService) NotifyDecision(result dto.ApprovalResult) {
	job := jobs.Job{ID: uuid.NewString(), Type: jobTypeDecisionApproved, Payload: result}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to queue approval notification",
			zap.String("application_id", result.Application.ID), zap.Error(err))
	}
}

// NotifyRejection queues a rejection notification.
func (s *NotificationService) NotifyRejection(result dto.RejectionResult) {
	job := jobs.Job{ID: uuid.NewString(), Type: jobTypeDecisionRejected, Payload: result}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to queue rejection notification",
			zap.String("application_id", result.Application.ID), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobTypeDecisionApproved:
		result, ok := job.Payload.(dto.ApprovalResult)
		if !ok {
			s.logger.Error("unexpected approval payload", zap.String("job_id", job.ID))
			return nil
		}
		return s.sender.SendApproved(ctx, result)
	case jobTypeDecisionRejected:
		result, ok := job.Payload.(dto.RejectionResult)
		if !ok {
			s.logger.Error("unexpected rejection payload", zap.String("job_id", job.ID))
			return nil
		}
		return s.sender.SendRejected(ctx, result)
	default:
		s.logger.Warn("unknown notification job type", zap.String("type", job.Type))
		return nil
	}
}
