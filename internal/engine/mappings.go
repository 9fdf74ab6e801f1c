package engine

import (
	"github.com/roach88/codex/internal/artifact"
	"github.com/roach88/codex/internal/catalog"
	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/integrity"
	"github.com/roach88/codex/internal/resonance"
)

// MirrorArtifactName is the stem of the card/lattice mapping artifact.
const MirrorArtifactName = "cards__lattice"

// GenerateMirrorDocument builds the cards/lattice mapping document that a
// catalog built from cfg validates against.
func GenerateMirrorDocument(cfg *config.Config, opts ...catalog.Option) (map[string]any, error) {
	cat, err := catalog.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	calc := resonance.New(cfg)
	cards := cat.Cards()
	for i := range cards {
		cards[i].MirroredNodeIDs = calc.MirroredNodes(cards[i])
	}
	return artifact.MirrorDocument(cards, cfg.LatticeSize), nil
}

// GenerateArtifacts returns the generated mapping as resolved artifacts,
// ready for WithArtifacts.
func GenerateArtifacts(cfg *config.Config, opts ...catalog.Option) (map[string]integrity.Artifact, error) {
	doc, err := GenerateMirrorDocument(cfg, opts...)
	if err != nil {
		return nil, err
	}
	data, err := artifact.Encode(artifact.FormatYAML, doc)
	if err != nil {
		return nil, err
	}
	art := artifact.Parse(MirrorArtifactName, artifact.FormatYAML, data)
	if art.Err != nil {
		return nil, art.Err
	}
	return map[string]integrity.Artifact{art.Name: art}, nil
}
