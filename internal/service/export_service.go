package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/export"
	"github.com/noah-isme/school-ops-api/pkg/storage"
)

var rosterHeaders = []string{"Child", "Date of Birth", "Status", "Primary Contact", "Email", "Phone"}

type rosterSource interface {
	ListRoster(ctx context.Context, schoolID string) ([]models.RosterRow, error)
}

// ExportService renders the active-children roster as CSV or PDF, stores the
// file and returns a signed download link.
type ExportService struct {
	roster    rosterSource
	access    accessLogWriter
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	files     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExportService wires the export pipeline.
func NewExportService(roster rosterSource, access accessLogWriter, files *storage.LocalStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		roster:    roster,
		access:    access,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		files:     files,
		signer:    signer,
		validator: validate,
		logger:    logger,
	}
}

// GenerateRoster produces the roster export for the actor's school.
func (s *ExportService) GenerateRoster(ctx context.Context, req dto.RosterExportRequest, actor *models.JWTClaims, meta RequestMeta) (*dto.RosterExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}

	rows, err := s.roster.ListRoster(ctx, actor.SchoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := export.Dataset{Headers: rosterHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Child":           row.ChildName,
			"Date of Birth":   row.DateOfBirth.Format("2006-01-02"),
			"Status":          string(row.EnrollmentStatus),
			"Primary Contact": row.ParentName,
			"Email":           row.ParentEmail,
			"Phone":           row.ParentPhone,
		})
	}

	var payload []byte
	switch req.Format {
	case "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf":
		payload, err = s.pdf.Render(dataset, "Enrollment Roster")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", req.Format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	jobID := uuid.NewString()
	now := time.Now().UTC()
	fileName := fmt.Sprintf("%s/roster-%s.%s", actor.SchoolID, now.Format("20060102-150405"), req.Format)
	relPath, err := s.files.Save(fileName, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"format": req.Format,
		"rows":   len(rows),
		"file":   relPath,
	})
	if err := s.access.Create(ctx, &models.AccessLog{
		SchoolID:   actor.SchoolID,
		ActorID:    &actor.UserID,
		Action:     models.AccessActionExportGenerated,
		TargetType: models.AccessTargetExport,
		TargetID:   &jobID,
		Metadata:   metadata,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record export access log", zap.String("job_id", jobID), zap.Error(err))
	}

	s.logger.Info("roster export generated",
		zap.String("school_id", actor.SchoolID),
		zap.String("format", req.Format),
		zap.Int("rows", len(rows)))

	return &dto.RosterExportResult{
		FileName:    relPath,
		Format:      req.Format,
		RowCount:    len(rows),
		DownloadURL: fmt.Sprintf("/api/v1/exports/download?token=%s", token),
		ExpiresAt:   expiresAt,
		GeneratedAt: now,
	}, nil
}

// ResolveDownload validates a signed token and opens the referenced file.
func (s *ExportService) ResolveDownload(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	return s.files.Path(relPath), nil
}
