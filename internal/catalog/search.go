package catalog

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/codex/internal/ir"
)

// Default and maximum page sizes for SearchCards.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query filters the deck. Empty filters match everything.
type Query struct {
	Keywords []string     `json:"keywords"`
	Suits    []ir.Suit    `json:"suits"`
	Elements []ir.Element `json:"elements"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
}

// Facets count the filtered result before pagination. Major cards are
// counted under the "major" suit key.
type Facets struct {
	Suits    map[string]int `json:"suits"`
	Elements map[string]int `json:"elements"`
}

// SearchResult is one page of matching cards.
type SearchResult struct {
	Items      []ir.ArcanaCard `json:"items"`
	TotalCount int             `json:"total_count"`
	Facets     Facets          `json:"facets"`
}

// SearchCards filters cards by keywords, suits and elements, ordered by
// ordinal. Every keyword must match the name or a card keyword, compared
// case-folded with underscores treated as spaces.
func (c *Catalog) SearchCards(q Query) (SearchResult, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return SearchResult{}, ir.InvalidArgument("limit and offset must be non-negative")
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	for _, e := range q.Elements {
		if !e.Valid() {
			return SearchResult{}, ir.InvalidArgument("unknown element %q", e)
		}
	}
	for _, s := range q.Suits {
		if s != "major" && !slices.Contains(ir.Suits, s) {
			return SearchResult{}, ir.InvalidArgument("unknown suit %q", s)
		}
	}

	fold := cases.Fold()
	terms := make([]string, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		if k = normalizeTerm(fold, k); k != "" {
			terms = append(terms, k)
		}
	}

	res := SearchResult{
		Items:  []ir.ArcanaCard{},
		Facets: Facets{Suits: map[string]int{}, Elements: map[string]int{}},
	}
	for i := range c.cards {
		card := c.cards[i]
		if c.cardIndex[card.ID] != i {
			continue
		}
		if len(q.Suits) > 0 && !slices.Contains(q.Suits, suitKey(card)) {
			continue
		}
		if len(q.Elements) > 0 && !slices.Contains(q.Elements, card.Element) {
			continue
		}
		if !matchesAll(fold, card, terms) {
			continue
		}

		res.Facets.Suits[string(suitKey(card))]++
		res.Facets.Elements[string(card.Element)]++
		if res.TotalCount >= q.Offset && len(res.Items) < limit {
			res.Items = append(res.Items, c.cardAt(i))
		}
		res.TotalCount++
	}
	return res, nil
}

func suitKey(card ir.ArcanaCard) ir.Suit {
	if card.Kind == ir.CardMajor {
		return "major"
	}
	return card.Suit
}

func normalizeTerm(fold cases.Caser, s string) string {
	return strings.TrimSpace(strings.ReplaceAll(fold.String(s), "_", " "))
}

func matchesAll(fold cases.Caser, card ir.ArcanaCard, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	haystack := make([]string, 0, len(card.Keywords)+1)
	haystack = append(haystack, normalizeTerm(fold, card.Name))
	for _, k := range card.Keywords {
		haystack = append(haystack, normalizeTerm(fold, k))
	}
	for _, term := range terms {
		found := slices.ContainsFunc(haystack, func(h string) bool {
			return strings.Contains(h, term)
		})
		if !found {
			return false
		}
	}
	return true
}
