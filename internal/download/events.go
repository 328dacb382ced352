package download

import (
	"time"

	"github.com/hogliux/collect/internal/domain"
)

type Phase string

const (
	PhaseList    Phase = "list"
	PhaseContent Phase = "content"
)

// Outcome is how a sequence ended.
type Outcome string

const (
	// OutcomeCompleted: the content phase ran to the end. Per-form failures
	// are in Result.Downloads.
	OutcomeCompleted Outcome = "completed"
	// OutcomeEmpty: the server listed no forms.
	OutcomeEmpty Outcome = "empty"
	// OutcomeListFailed: the server rejected the form list request.
	OutcomeListFailed Outcome = "list_failed"
	// OutcomeCancelled: the user or the watchdog cancelled the sequence.
	OutcomeCancelled Outcome = "cancelled"
)

type Result struct {
	SequenceID   string                `json:"sequence_id"`
	Outcome      Outcome               `json:"outcome"`
	Phase        Phase                 `json:"phase"`
	ErrorMessage string                `json:"error,omitempty"`
	TimedOut     bool                  `json:"timed_out,omitempty"`
	Forms        []domain.FormListItem `json:"forms,omitempty"`
	Downloads    map[string]string     `json:"downloads,omitempty"`
	FinishedAt   time.Time             `json:"finished_at"`
}

// ShowsError reports whether the outcome must be acknowledged by the user
// before moving on. Every other outcome proceeds to the form chooser.
func (r Result) ShowsError() bool {
	return r.Outcome == OutcomeListFailed
}

type EventType string

const (
	EventStarted   EventType = "download_started"
	EventListReady EventType = "form_list_ready"
	EventProgress  EventType = "download_progress"
	EventFinished  EventType = "download_finished"
)

type Event struct {
	Type       EventType             `json:"type"`
	SequenceID string                `json:"sequence_id"`
	Forms      []domain.FormListItem `json:"forms,omitempty"`
	Progress   *domain.Progress      `json:"progress,omitempty"`
	Result     *Result               `json:"result,omitempty"`
}
