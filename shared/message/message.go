// shared/message/message.go
package message

import (
	"time"
)

// Kafka topics the services exchange messages on.
const (
	TopicBuildImports   = "build-imports"
	TopicBootImports    = "boot-imports"
	TopicImportStatus   = "import-status"
	TopicReportTriggers = "report-triggers"
)

// BuildImportMessage asks the build importer to scan the artifact tree of
// one job/kernel pair. Names have already passed validation at the API.
type BuildImportMessage struct {
	ID        string    `json:"id"`
	Job       string    `json:"job"`
	Kernel    string    `json:"kernel"`
	CreatedAt time.Time `json:"created_at"`
}

// BootImportMessage asks the boot importer to pick up boot reports for one
// job/kernel pair. LabName restricts the scan to a single lab when set.
type BootImportMessage struct {
	ID        string    `json:"id"`
	Job       string    `json:"job"`
	Kernel    string    `json:"kernel"`
	LabName   string    `json:"lab_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportStatusMessage reports the progress of an import task.
type ImportStatusMessage struct {
	ImportID  string    `json:"import_id"`
	Job       string    `json:"job"`
	Kernel    string    `json:"kernel"`
	Status    string    `json:"status"` // queued, in-progress, completed, failed
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReportTriggerMessage is emitted when an import finishes so that the
// notification side can fan the result out.
type ReportTriggerMessage struct {
	ImportID    string    `json:"import_id"`
	JobID       string    `json:"job_id,omitempty"`
	Job         string    `json:"job"`
	Kernel      string    `json:"kernel"`
	Status      string    `json:"status"`
	Builds      int       `json:"builds"`
	Boots       int       `json:"boots,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
