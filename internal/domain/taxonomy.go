package domain

import (
	"errors"
	"strings"
)

var ErrEmptyTaxonomy = errors.New("taxonomy has no categories")

// OtherCategory is the reserved fallback label. It is always present in a
// loaded taxonomy so normalization can never produce a label outside it.
const OtherCategory = "other"

type Category struct {
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Examples    []string `json:"examples,omitempty"`
}

// Taxonomy is the closed set of labels a classification may resolve to.
// It is loaded once per run and read-only afterwards.
type Taxonomy struct {
	Categories []Category
}

func NewTaxonomy(categories []Category) (Taxonomy, error) {
	if len(categories) == 0 {
		return Taxonomy{}, ErrEmptyTaxonomy
	}

	out := make([]Category, 0, len(categories)+1)
	hasOther := false

	for _, c := range categories {
		c.Label = canonicalLabel(c.Label)
		if c.Label == OtherCategory {
			hasOther = true
		}
		out = append(out, c)
	}

	if !hasOther {
		out = append(out, Category{
			Label:       OtherCategory,
			Description: "Events that do not fit any other category.",
		})
	}

	return Taxonomy{Categories: out}, nil
}

func (t Taxonomy) Labels() []string {
	labels := make([]string, 0, len(t.Categories))
	for _, c := range t.Categories {
		labels = append(labels, c.Label)
	}
	return labels
}

func (t Taxonomy) Contains(label string) bool {
	label = canonicalLabel(label)
	for _, c := range t.Categories {
		if c.Label == label {
			return true
		}
	}
	return false
}

// Normalize maps a raw model-emitted label onto the taxonomy. Labels outside
// the set collapse to OtherCategory, so results always satisfy the membership
// invariant.
func (t Taxonomy) Normalize(label string) string {
	label = canonicalLabel(label)
	if t.Contains(label) {
		return label
	}
	return OtherCategory
}

func canonicalLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
