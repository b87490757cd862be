// Package taxonomy loads the category taxonomy from the object store. The
// store layout is categories/<label>/... where .txt objects hold the label
// description and .jsonl objects hold exemplar events.
package taxonomy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/internal/domain"
)

const DefaultPrefix = "categories"

type Loader struct {
	store  domain.ObjectStore
	prefix string
}

func NewLoader(store domain.ObjectStore, prefix string) *Loader {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Loader{store: store, prefix: strings.TrimSuffix(prefix, "/")}
}

// Load reads every category under the prefix. The label set is derived from
// the store listing, so adding a category is a pure data operation.
func (l *Loader) Load(ctx context.Context) (domain.Taxonomy, error) {
	keys, err := l.store.List(ctx, l.prefix+"/")
	if err != nil {
		return domain.Taxonomy{}, fmt.Errorf("failed to list categories: %w", err)
	}

	byLabel := make(map[string]*domain.Category)

	for _, key := range keys {
		rest := strings.TrimPrefix(key, l.prefix+"/")
		label, _, found := strings.Cut(rest, "/")
		if !found || label == "" {
			continue
		}

		cat, ok := byLabel[label]
		if !ok {
			cat = &domain.Category{Label: label}
			byLabel[label] = cat
		}

		switch {
		case strings.HasSuffix(key, ".txt"):
			body, err := l.store.Get(ctx, key)
			if err != nil {
				return domain.Taxonomy{}, fmt.Errorf("failed to load category description %s: %w", key, err)
			}
			if cat.Description != "" {
				cat.Description += "\n"
			}
			cat.Description += strings.TrimSpace(string(body))

		case strings.HasSuffix(key, ".jsonl"):
			body, err := l.store.Get(ctx, key)
			if err != nil {
				return domain.Taxonomy{}, fmt.Errorf("failed to load category examples %s: %w", key, err)
			}
			cat.Examples = append(cat.Examples, strings.TrimSpace(string(body)))

		default:
			log.Debug().Str("key", key).Msg("Skipping unrecognized category object")
		}
	}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	categories := make([]domain.Category, 0, len(labels))
	for _, label := range labels {
		categories = append(categories, *byLabel[label])
	}

	tax, err := domain.NewTaxonomy(categories)
	if err != nil {
		return domain.Taxonomy{}, fmt.Errorf("failed to build taxonomy from %s/: %w", l.prefix, err)
	}

	log.Info().Int("categories", len(tax.Categories)).Msg("Loaded taxonomy")

	return tax, nil
}
