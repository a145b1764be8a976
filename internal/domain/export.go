package domain

import "time"

// ExportJob describes one send operation. It only lives for the duration of
// the upload and is never persisted.
type ExportJob struct {
	Provider            Provider
	AudioPath           string
	TranscriptPath      string
	DestinationFolderID string
	FileBaseName        string
	IncludeTranscript   bool
	ToEmail             string
}

type ExportStatus string

const (
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusPartial   ExportStatus = "partial"
	ExportStatusFailed    ExportStatus = "failed"
	ExportStatusCancelled ExportStatus = "cancelled"
)

type ExportResult struct {
	Job         ExportJob
	Status      ExportStatus
	Destination FolderSelection
	Audio       *RemoteFile
	Transcript  *RemoteFile
	StartedAt   time.Time
	FinishedAt  time.Time
}

// ExportRecord is one row of the export history log.
type ExportRecord struct {
	ID              string
	Provider        Provider
	FileBaseName    string
	DestinationID   string
	DestinationName string
	Status          ExportStatus
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}
