package domain

import (
	"context"
	"errors"
)

var ErrOutcomeNotFound = errors.New("run outcome not found")

// OutcomeManager records finished runs for the status CLI and the monitoring
// server. Recording must never fail a run; callers log and continue.
type OutcomeManager interface {
	Record(ctx context.Context, outcome RunOutcome) error
	Latest(ctx context.Context, mode Mode) (RunOutcome, error)
	Recent(ctx context.Context, limit int) ([]RunOutcome, error)
}
