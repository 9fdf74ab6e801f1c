// Package artifact loads cross-taxonomy mapping documents from disk and
// resolves them into the in-memory form the integrity validator consumes.
//
// A mapping directory holds one file per declared taxonomy pair, named after
// the pair ("cards__lattice.yaml"). YAML, JSON and TOML are accepted.
// Read and parse failures are attached to the artifact rather than returned,
// so a broken file disables one feature instead of aborting the load.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/codex/internal/integrity"
	"github.com/roach88/codex/internal/ir"
)

// Supported formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatTOML = "toml"
)

// FormatOf maps a file extension to a format, or "" if unsupported.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	}
	return ""
}

// LoadDir resolves every mapping artifact in dir, keyed by pair name.
// A missing directory yields an empty set: every declared mapping will then
// be reported missing by the validator.
//
// When two files share a pair name the first in lexical order wins.
func LoadDir(dir string) (map[string]integrity.Artifact, error) {
	out := map[string]integrity.Artifact{}
	if dir == "" {
		return out, nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("mapping directory not found", "dir", dir)
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mapping directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || FormatOf(e.Name()) == "" {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)

	for _, name := range names {
		art := LoadFile(filepath.Join(dir, name))
		if prev, dup := out[art.Name]; dup {
			slog.Warn("duplicate mapping artifact ignored",
				"pair", art.Name,
				"kept", prev.Source,
				"ignored", art.Source,
			)
			continue
		}
		out[art.Name] = art
	}
	return out, nil
}

// LoadFile reads and parses one artifact. The pair name is the file stem.
func LoadFile(path string) integrity.Artifact {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	format := FormatOf(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return integrity.Artifact{Name: name, Source: path, Format: format, Err: err}
	}
	art := Parse(name, format, data)
	art.Source = path
	return art
}

// Parse decodes data in the given format into a generic document.
func Parse(name, format string, data []byte) integrity.Artifact {
	art := integrity.Artifact{Name: name, Source: name, Format: format}

	var raw map[string]any
	var err error
	switch format {
	case FormatYAML, FormatJSON:
		// JSON is decoded through YAML so both yield the same number types.
		err = yaml.Unmarshal(data, &raw)
	case FormatTOML:
		_, err = toml.Decode(string(data), &raw)
	default:
		err = fmt.Errorf("unsupported mapping format %q", format)
	}
	if err != nil {
		art.Err = fmt.Errorf("parse %s: %w", format, err)
		return art
	}
	if raw == nil {
		art.Err = fmt.Errorf("parse %s: empty document", format)
		return art
	}
	art.Doc = normalize(raw).(map[string]any)
	return art
}

// normalize converts YAML's map[any]any nodes into map[string]any so the
// validator sees one shape regardless of format.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

// MirrorDocument builds the cards/lattice mapping document from cards whose
// mirrors have been derived. Node references are written as integers.
func MirrorDocument(cards []ir.ArcanaCard, latticeSize int) map[string]any {
	structure := make(map[string]any, len(cards))
	for _, c := range cards {
		refs := make([]any, len(c.MirroredNodeIDs))
		for i, id := range c.MirroredNodeIDs {
			refs[i] = int64(id)
		}
		structure[c.ID] = refs
	}
	return map[string]any{
		integrity.FieldMetadata: map[string]any{
			"card_count":     int64(len(cards)),
			"lattice_size":   int64(latticeSize),
			"tables_version": ir.TablesVersion,
		},
		integrity.FieldMirrorStructure: structure,
	}
}

// Encode renders a document in the given format.
func Encode(format string, doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported mapping format %q", format)
	}
	return buf.Bytes(), nil
}

// WriteFile encodes doc into dir as <name>.<format> and returns the path.
func WriteFile(dir, name, format string, doc map[string]any) (string, error) {
	data, err := Encode(format, doc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create mapping directory: %w", err)
	}
	path := filepath.Join(dir, name+"."+format)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write mapping %s: %w", path, err)
	}
	return path, nil
}
