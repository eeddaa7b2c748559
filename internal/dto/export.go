package dto

import "time"

// RosterExportRequest selects the roster export format.
type RosterExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// RosterExportResult points at a generated export file.
type RosterExportResult struct {
	FileName    string    `json:"file_name"`
	Format      string    `json:"format"`
	RowCount    int       `json:"row_count"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	GeneratedAt time.Time `json:"generated_at"`
}
