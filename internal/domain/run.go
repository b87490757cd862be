package domain

import (
	"errors"
	"time"
)

var (
	ErrModelUnavailable = errors.New("inference model is not available")
	ErrInvalidThreshold = errors.New("invalid batch threshold")
	ErrNoSummary        = errors.New("aggregate synthesis failed")
	ErrRunInFlight      = errors.New("a run is already in flight")
)

// Route is the volume-based execution path decision.
type Route string

const (
	RouteNone     Route = "none"
	RouteOnDemand Route = "ondemand"
	RouteBatch    Route = "batch"
)

// RunState tracks orchestration progress. Transitions are strictly forward;
// Failed and NoEvents absorb.
type RunState string

const (
	StateInit                 RunState = "init"
	StateModeResolved         RunState = "mode-resolved"
	StatePreconditionsChecked RunState = "preconditions-checked"
	StateRouted               RunState = "routed"
	StateOnDemandRunning      RunState = "ondemand-running"
	StateBatchRunning         RunState = "batch-running"
	StateAggregating          RunState = "aggregating"
	StateCompleted            RunState = "completed"
	StateFailed               RunState = "failed"
	StateNoEvents             RunState = "no-events"
)

// Blocked reasons reported by the precondition gate. These are stable tokens
// consumed by operators and the monitoring surface.
const (
	BlockedModelUnavailable = "model-unavailable"
	BlockedJobInProgress    = "job-in-progress"
)

// Terminal run status strings recorded in the outcome.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusBlocked   = "blocked"
	StatusNoEvents  = "no events were found to process"
)

// RunContext is the ephemeral state of a single orchestration invocation.
type RunContext struct {
	RunID       string
	Mode        Mode
	Window      string
	StartedAt   time.Time
	EventsTotal int
	Route       Route
}

// RunOutcome is the externally visible record of a finished (or blocked) run.
type RunOutcome struct {
	RunID       string         `json:"run_id"`
	Mode        Mode           `json:"mode"`
	Route       Route          `json:"route"`
	Status      string         `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	Window      string         `json:"window,omitempty"`
	EventsTotal int            `json:"events_total"`
	EventIDs    []string       `json:"event_ids,omitempty"`
	Failures    []EventFailure `json:"failures,omitempty"`
	SummaryRef  string         `json:"summary_ref,omitempty"`

	StartedAt       time.Time `json:"started_at"`
	RoutedAt        time.Time `json:"routed_at,omitempty"`
	PathStartedAt   time.Time `json:"path_started_at,omitempty"`
	PathCompletedAt time.Time `json:"path_completed_at,omitempty"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
}
