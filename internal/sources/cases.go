// Package sources provides the per-mode event sources. Each source owns its
// ingest window: the events-since watermark is read from the parameter store
// so that the volume decision and the listing always see the same slice.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/internal/domain"
)

const DefaultCasesPrefix = "cases"

// Cases reads merged support-case objects from the events bucket. The ingest
// side writes one JSON object per case, metadata and communication thread
// already combined.
type Cases struct {
	store  domain.ObjectStore
	params domain.ParameterStore
	prefix string
	limit  int
}

type CasesConfig struct {
	// Prefix under which the staged case objects live. Defaults to
	// DefaultCasesPrefix.
	Prefix string
	// Limit caps how many cases a single run may pick up. Zero means no cap.
	Limit int
}

func NewCases(store domain.ObjectStore, params domain.ParameterStore, cfg CasesConfig) *Cases {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultCasesPrefix
	}

	return &Cases{
		store:  store,
		params: params,
		prefix: strings.TrimSuffix(prefix, "/"),
		limit:  cfg.Limit,
	}
}

// Count reports how many cases the current window holds. It loads and
// filters the staged objects so the count always matches a subsequent List.
func (c *Cases) Count(ctx context.Context) (int, error) {
	events, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

func (c *Cases) List(ctx context.Context) ([]domain.EventRecord, error) {
	return c.load(ctx)
}

func (c *Cases) load(ctx context.Context) ([]domain.EventRecord, error) {
	since, err := c.params.EventsSince(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read events watermark: %w", err)
	}

	keys, err := c.store.List(ctx, c.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list staged cases: %w", err)
	}

	var events []domain.EventRecord

	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}

		data, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read staged case %s: %w", key, err)
		}

		var sc domain.SupportCase
		if err := json.Unmarshal(data, &sc); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping undecodable case object")
			continue
		}

		if sc.CaseID == "" {
			log.Warn().Str("key", key).Msg("Skipping case object without case id")
			continue
		}

		if !since.IsZero() && sc.CreatedAt.Before(since) {
			continue
		}

		events = append(events, sc)
	}

	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.ObservedAt().Equal(b.ObservedAt()) {
			return a.ObservedAt().Before(b.ObservedAt())
		}
		return a.ID() < b.ID()
	})

	if c.limit > 0 && len(events) > c.limit {
		log.Warn().
			Int("staged", len(events)).
			Int("limit", c.limit).
			Msg("Case window exceeds the query limit, truncating")
		events = events[:c.limit]
	}

	return events, nil
}
