package managers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/internal/domain"
)

// recentOutcomesCap bounds the recent-runs list; older entries fall off.
const recentOutcomesCap = 100

type outcomeManager struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

type OutcomeManagerDependencies struct {
	Client    *redis.Client
	KeyPrefix string
	// TTL expires outcome keys. Zero keeps them until trimmed.
	TTL time.Duration
}

func NewOutcomeManager(deps OutcomeManagerDependencies) domain.OutcomeManager {
	keyPrefix := deps.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "sift"
	}

	return &outcomeManager{
		client:    deps.Client,
		keyPrefix: keyPrefix,
		ttl:       deps.TTL,
	}
}

func (m *outcomeManager) latestKey(mode domain.Mode) string {
	return fmt.Sprintf("%s:outcomes:latest:%s", m.keyPrefix, mode)
}

func (m *outcomeManager) recentKey() string {
	return fmt.Sprintf("%s:outcomes:recent", m.keyPrefix)
}

func (m *outcomeManager) Record(ctx context.Context, outcome domain.RunOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal run outcome: %w", err)
	}

	pipe := m.client.TxPipeline()
	if outcome.Mode != "" {
		pipe.Set(ctx, m.latestKey(outcome.Mode), data, m.ttl)
	}
	pipe.LPush(ctx, m.recentKey(), data)
	pipe.LTrim(ctx, m.recentKey(), 0, recentOutcomesCap-1)
	if m.ttl > 0 {
		pipe.Expire(ctx, m.recentKey(), m.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record run outcome: %w", err)
	}

	return nil
}

func (m *outcomeManager) Latest(ctx context.Context, mode domain.Mode) (domain.RunOutcome, error) {
	data, err := m.client.Get(ctx, m.latestKey(mode)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RunOutcome{}, domain.ErrOutcomeNotFound
		}
		return domain.RunOutcome{}, fmt.Errorf("failed to read latest outcome: %w", err)
	}

	var outcome domain.RunOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return domain.RunOutcome{}, fmt.Errorf("failed to decode latest outcome: %w", err)
	}

	return outcome, nil
}

func (m *outcomeManager) Recent(ctx context.Context, limit int) ([]domain.RunOutcome, error) {
	if limit <= 0 || limit > recentOutcomesCap {
		limit = recentOutcomesCap
	}

	entries, err := m.client.LRange(ctx, m.recentKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent outcomes: %w", err)
	}

	outcomes := make([]domain.RunOutcome, 0, len(entries))
	for _, entry := range entries {
		var outcome domain.RunOutcome
		if err := json.Unmarshal([]byte(entry), &outcome); err != nil {
			log.Warn().Err(err).Msg("Skipping undecodable outcome entry")
			continue
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}
