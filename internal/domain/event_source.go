package domain

import "context"

// EventSource feeds one mode's event stream into a run. Count is consulted by
// the router before List; both see the same ingest window.
type EventSource interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]EventRecord, error)
}
