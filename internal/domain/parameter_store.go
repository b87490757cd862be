package domain

import (
	"context"
	"time"
)

// ParameterStore holds the small operator-managed control values that live
// outside the process: the analysis mode and the ingest watermark. The engine
// only reads; writes happen through operator tooling.
type ParameterStore interface {
	Mode(ctx context.Context) (Mode, error)
	SetMode(ctx context.Context, mode Mode) error

	EventsSince(ctx context.Context) (time.Time, error)
	SetEventsSince(ctx context.Context, since time.Time) error
}
