package models

import (
	"time"

	"github.com/google/uuid"
)

// Task execution statuses persisted in Postgres.
const (
	TaskStatusPending = "PENDING"
	TaskStatusRunning = "RUNNING"
	TaskStatusSuccess = "SUCCESS"
	TaskStatusFailure = "FAILURE"
	TaskStatusRevoked = "REVOKED"
)

// taskTransitions encodes the only legal status moves. SUCCESS, FAILURE and
// REVOKED are terminal.
var taskTransitions = map[string][]string{
	TaskStatusPending: {TaskStatusRunning, TaskStatusRevoked},
	TaskStatusRunning: {TaskStatusSuccess, TaskStatusFailure},
}

// CanTransition reports whether a task status may move from one state to another.
func CanTransition(from, to string) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TerminalStatus reports whether a status admits no further transitions.
func TerminalStatus(status string) bool {
	return len(taskTransitions[status]) == 0
}

// Task is a scheduled playbook execution. Rows are created by the scheduler on
// submission and mutated only through status transitions until explicit removal.
type Task struct {
	ID               uuid.UUID      `db:"id"                json:"id"`
	PlaybookPath     *string        `db:"playbook_path"     json:"playbook_path,omitempty"`
	PlaybookContent  *string        `db:"playbook_content"  json:"playbook_content,omitempty"`
	Inventory        string         `db:"inventory"         json:"inventory"`
	RunTime          time.Time      `db:"run_time"          json:"run_time"`
	IsGenerated      bool           `db:"is_generated"      json:"is_generated"`
	SafetyValidated  bool           `db:"safety_validated"  json:"safety_validated"`
	GenerationMeta   map[string]any `db:"generation_meta"   json:"generation_metadata,omitempty"`
	Status           string         `db:"status"            json:"status"`
	QueueJobID       *string        `db:"queue_job_id"      json:"queue_job_id,omitempty"`
	ExecutionOutput  *string        `db:"execution_output"  json:"execution_output,omitempty"`
	CreatedAt        time.Time      `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"        json:"updated_at"`
}

// Playbook returns the executable document for this task: inline content when
// present, otherwise the on-disk path.
func (t *Task) Playbook() string {
	if t.PlaybookContent != nil && *t.PlaybookContent != "" {
		return *t.PlaybookContent
	}
	if t.PlaybookPath != nil {
		return *t.PlaybookPath
	}
	return ""
}
