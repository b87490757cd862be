package managers

import (
	"context"
	"sync"

	"github.com/sifthq/sift/internal/domain"
)

// memoryOutcomeManager keeps outcomes in process memory. Used when no outcome
// store is configured and in tests.
type memoryOutcomeManager struct {
	mu       sync.RWMutex
	outcomes []domain.RunOutcome // newest first
}

func NewMemoryOutcomeManager() domain.OutcomeManager {
	return &memoryOutcomeManager{}
}

func (m *memoryOutcomeManager) Record(ctx context.Context, outcome domain.RunOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outcomes = append([]domain.RunOutcome{outcome}, m.outcomes...)
	if len(m.outcomes) > recentOutcomesCap {
		m.outcomes = m.outcomes[:recentOutcomesCap]
	}

	return nil
}

func (m *memoryOutcomeManager) Latest(ctx context.Context, mode domain.Mode) (domain.RunOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, outcome := range m.outcomes {
		if outcome.Mode == mode {
			return outcome, nil
		}
	}

	return domain.RunOutcome{}, domain.ErrOutcomeNotFound
}

func (m *memoryOutcomeManager) Recent(ctx context.Context, limit int) ([]domain.RunOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.outcomes) {
		limit = len(m.outcomes)
	}

	out := make([]domain.RunOutcome, limit)
	copy(out, m.outcomes[:limit])

	return out, nil
}
