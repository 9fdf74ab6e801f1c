package catalog

import (
	"fmt"
	"strings"

	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/ir"
)

// MajorCount is the number of fixed major arcana records.
const MajorCount = len(majorArcana)

// GenerateCards builds the 22 major records followed by the suit x rank
// cross product. Ordinals run 0..77 in deck order.
func GenerateCards(cfg *config.Config) []ir.ArcanaCard {
	cards := make([]ir.ArcanaCard, 0, MajorCount+len(ir.Suits)*(len(rankNames)-1))
	for ordinal, spec := range majorArcana {
		cards = append(cards, ir.ArcanaCard{
			ID:              MajorCardID(ordinal, spec.Name),
			Ordinal:         ordinal,
			Kind:            ir.CardMajor,
			Name:            spec.Name,
			Element:         spec.Element,
			Planet:          spec.Planet,
			HebrewLetter:    spec.Letter,
			FrequencyHz:     spec.Hz,
			Keywords:        append([]string(nil), spec.Keywords...),
			MirroredNodeIDs: []int{},
		})
	}

	ordinal := MajorCount
	for _, suit := range ir.Suits {
		for rank := 1; rank < len(rankNames); rank++ {
			cards = append(cards, ir.ArcanaCard{
				ID:              MinorCardID(suit, rank),
				Ordinal:         ordinal,
				Kind:            ir.CardMinor,
				Name:            minorName(suit, rank),
				Suit:            suit,
				Rank:            rank,
				Element:         suitElements[suit],
				FrequencyHz:     cfg.Tables.SolfeggioHz[(rank-1)%9],
				Keywords:        append([]string(nil), suitKeywords[suit]...),
				MirroredNodeIDs: []int{},
			})
			ordinal++
		}
	}
	return cards
}

// MajorCardID formats "card_<ordinal>_<slug>", dropping a leading "The".
func MajorCardID(ordinal int, name string) string {
	slug := strings.ToLower(name)
	slug = strings.TrimPrefix(slug, "the ")
	slug = strings.ReplaceAll(slug, " ", "_")
	return fmt.Sprintf("card_%d_%s", ordinal, slug)
}

// MinorCardID formats "card_<suit>_<rank name>".
func MinorCardID(suit ir.Suit, rank int) string {
	return fmt.Sprintf("card_%s_%s", suit, rankNames[rank])
}

func minorName(suit ir.Suit, rank int) string {
	r := rankNames[rank]
	s := string(suit)
	return strings.ToUpper(r[:1]) + r[1:] + " of " + strings.ToUpper(s[:1]) + s[1:]
}
