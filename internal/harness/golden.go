package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/codex/internal/ir"
)

// GoldenDir is the default fixture directory for trace snapshots.
const GoldenDir = "testdata/golden"

// GoldenSuffix is the file suffix of trace snapshots.
const GoldenSuffix = ".golden"

// Snapshot renders a scenario trace as canonical JSON. Floats in the trace
// are already quantized to micros, so the bytes are stable across runs and
// platforms.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(ir.IRArray, len(result.Trace))
	for i, ev := range result.Trace {
		obj := ir.IRObject{
			"step":    ir.IRInt(ev.Step),
			"op":      ir.IRString(ev.Op),
			"outcome": ir.IRString(ev.Outcome),
		}
		if ev.Target != "" {
			obj["target"] = ir.IRString(ev.Target)
		}
		if len(ev.Detail) > 0 {
			obj["detail"] = ev.Detail
		}
		trace[i] = obj
	}
	return ir.MarshalCanonical(ir.IRObject{
		"scenario_name": ir.IRString(name),
		"trace":         trace,
	})
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden. Options override the fixture
// directory or other goldie settings.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result, opts...); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result, opts ...goldie.Option) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t, append([]goldie.Option{
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(GoldenSuffix),
	}, opts...)...)
	g.Assert(t, name, data)
	return nil
}

// ErrGoldenMismatch is returned by CompareGolden when the trace differs.
var ErrGoldenMismatch = errors.New("trace differs from golden file")

// CompareGolden checks a result against dir/{name}.golden outside of a test,
// for the CLI. With update set, the file is (re)written instead.
func CompareGolden(dir, name string, result *Result, update bool) error {
	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name+GoldenSuffix)
	if update {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write golden file: %w", err)
		}
		return nil
	}
	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return fmt.Errorf("%s: %w", path, ErrGoldenMismatch)
	}
	return nil
}
