package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/resonance"
)

const scenarioDir = "../harness/testdata/scenarios"

// envelope mirrors CLIResponse with the payload left raw.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func executeJSON[T any](t *testing.T, args ...string) T {
	t.Helper()
	out, err := execute(t, append(args, "--format", "json")...)
	require.NoError(t, err, out)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	require.Equal(t, "ok", env.Status)

	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func executeFailure(t *testing.T, args ...string) (*CLIError, int) {
	t.Helper()
	out, err := execute(t, append(args, "--format", "json")...)
	require.Error(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	require.Equal(t, "error", env.Status)
	require.NotNil(t, env.Error)
	return env.Error, GetExitCode(err)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "node", "node_1", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestValidateCommand(t *testing.T) {
	t.Run("without mappings", func(t *testing.T) {
		report := executeJSON[ir.ValidationReport](t, "validate")
		assert.True(t, report.Pass, "a missing mapping is soft")
		assert.Equal(t, []string{engine.FeatureMirroring}, report.DisabledFeatures)
	})

	t.Run("write mappings", func(t *testing.T) {
		dir := t.TempDir()
		report := executeJSON[ir.ValidationReport](t, "validate", "--write-mappings", dir, "--mapping-format", "toml")
		assert.True(t, report.Pass)
		assert.Empty(t, report.DisabledFeatures)
		assert.Equal(t, ir.ValidationHard, report.Mode)

		_, err := os.Stat(filepath.Join(dir, engine.MirrorArtifactName+".toml"))
		require.NoError(t, err)
	})

	t.Run("unknown mapping format", func(t *testing.T) {
		cliErr, code := executeFailure(t, "validate", "--write-mappings", t.TempDir(), "--mapping-format", "xml")
		assert.Equal(t, string(ir.CodeInvalidArgument), cliErr.Code)
		assert.Equal(t, ExitFailure, code)
	})

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "✓ Integrity check passed")
		assert.Contains(t, out, "disabled:    [mirroring]")
	})
}

func TestConfigErrorIsCommandError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codex.cue")
	require.NoError(t, os.WriteFile(path, []byte("latticeSize: 100\n"), 0o644))

	cliErr, code := executeFailure(t, "node", "node_1", "--config", path)
	assert.Equal(t, string(ir.CodeConfiguration), cliErr.Code)
	assert.Equal(t, ExitCommandError, code)
}

func TestNodeCommand(t *testing.T) {
	n := executeJSON[ir.LatticeNode](t, "node", "node_1")
	assert.Equal(t, 1, n.ID)
	assert.Equal(t, 1, n.NumerologyCore)

	bare := executeJSON[ir.LatticeNode](t, "node", "1")
	assert.Equal(t, n, bare)

	cliErr, code := executeFailure(t, "node", "node_999")
	assert.Equal(t, string(ir.CodeNotFound), cliErr.Code)
	assert.Equal(t, ExitFailure, code)
}

func TestCardCommand(t *testing.T) {
	c := executeJSON[ir.ArcanaCard](t, "card", "card_0_fool")
	assert.Equal(t, ir.CardMajor, c.Kind)
	assert.Empty(t, c.MirroredNodeIDs, "no mapping, no mirrors")

	dir := t.TempDir()
	_, err := execute(t, "validate", "--write-mappings", dir)
	require.NoError(t, err)

	mirrored := executeJSON[ir.ArcanaCard](t, "card", "card_0_fool", "--mappings", dir)
	assert.NotEmpty(t, mirrored.MirroredNodeIDs)
	assert.LessOrEqual(t, len(mirrored.MirroredNodeIDs), 3)
}

func TestSearchCommand(t *testing.T) {
	type result struct {
		Items      []ir.ArcanaCard `json:"items"`
		TotalCount int             `json:"total_count"`
	}

	res := executeJSON[result](t, "search", "--suit", "cups", "--limit", "5")
	assert.Equal(t, 14, res.TotalCount)
	require.Len(t, res.Items, 5)
	for _, c := range res.Items {
		assert.Equal(t, ir.SuitCups, c.Suit)
	}

	page := executeJSON[result](t, "search", "--suit", "cups", "--limit", "5", "--offset", "10")
	assert.Len(t, page.Items, 4)

	out, err := execute(t, "search", "--suit", "cups", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "14 card(s) match, showing 1")
}

func TestResonanceCommand(t *testing.T) {
	pair := executeJSON[ir.PairResult](t, "resonance", "card_0_fool", "node_1")
	assert.Equal(t, "card_0_fool", pair.SourceID)
	assert.Equal(t, "node_1", pair.TargetID)
	assert.GreaterOrEqual(t, pair.Resonance, 0.0)
	assert.LessOrEqual(t, pair.Resonance, 1.0)

	group := executeJSON[resonance.FusionResult](t, "resonance", "card_0_fool", "card_1_magician", "node_9")
	assert.GreaterOrEqual(t, group.PhiScore, 0.0)
	assert.LessOrEqual(t, group.PhiScore, 1.0)

	_, err := execute(t, "resonance", "card_0_fool")
	require.Error(t, err, "at least two ids")

	cliErr, _ := executeFailure(t, "resonance", "card_0_fool", "node_999")
	assert.Equal(t, string(ir.CodeNotFound), cliErr.Code)
}

func TestFuseCommand(t *testing.T) {
	t.Run("proposed", func(t *testing.T) {
		s := executeJSON[ir.FusionSession](t, "fuse", "card_0_fool", "card_1_magician", "--type", "union")
		assert.Equal(t, ir.StateProposed, s.State)
		assert.Nil(t, s.Outcome)
	})

	t.Run("resolved", func(t *testing.T) {
		s := executeJSON[ir.FusionSession](t, "fuse", "card_0_fool", "card_1_magician", "--type", "union", "--resolve")
		assert.Equal(t, ir.StateResolved, s.State)
		require.NotNil(t, s.Outcome)
		assert.ElementsMatch(t, []string{"card_0_fool", "card_1_magician"}, s.Outcome.Participants)
		assert.NotEmpty(t, s.Outcome.Digest)
	})

	t.Run("aborted", func(t *testing.T) {
		s := executeJSON[ir.FusionSession](t, "fuse", "card_0_fool", "node_1", "--type", "ritual", "--consent", "--abort", "changed mind")
		assert.Equal(t, ir.StateAborted, s.State)
		assert.Equal(t, "changed mind", s.AbortReason)
	})

	t.Run("resolve and abort", func(t *testing.T) {
		cliErr, code := executeFailure(t, "fuse", "card_0_fool", "node_1", "--type", "x", "--resolve", "--abort", "no")
		assert.Equal(t, string(ir.CodeInvalidArgument), cliErr.Code)
		assert.Equal(t, ExitFailure, code)
	})

	t.Run("unknown participant", func(t *testing.T) {
		cliErr, code := executeFailure(t, "fuse", "card_0_fool", "node_999", "--type", "union")
		assert.Equal(t, string(ir.CodeNotFound), cliErr.Code)
		assert.Equal(t, ExitFailure, code)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := execute(t, "fuse", "card_0_fool", "node_1")
		require.Error(t, err)
	})
}

func TestHealthCommand(t *testing.T) {
	report := executeJSON[ir.HealthReport](t, "health")
	assert.Len(t, report.PerEntity, 222)
	assert.Equal(t, 1.0, report.OverallHealth)
	assert.Empty(t, report.CriticalEntities)

	rec := executeJSON[ir.HealthRecord](t, "health", "node_12")
	assert.Equal(t, "node_12", rec.EntityID)
	assert.Equal(t, ir.SeverityHealthy, rec.Severity)

	cliErr, _ := executeFailure(t, "health", "node_999")
	assert.Equal(t, string(ir.CodeNotFound), cliErr.Code)
}

func TestPassCommand(t *testing.T) {
	summaries := executeJSON[[]ir.PassSummary](t, "pass", "--count", "2")
	require.Len(t, summaries, 2)
	assert.Equal(t, int64(1), summaries[0].Seq)
	assert.Equal(t, int64(2), summaries[1].Seq)
	for _, s := range summaries {
		assert.Equal(t, 222, s.Processed)
		assert.Empty(t, s.Failed)
		assert.False(t, s.Partial)
	}

	cliErr, code := executeFailure(t, "pass", "--count", "0")
	assert.Equal(t, string(ir.CodeInvalidArgument), cliErr.Code)
	assert.Equal(t, ExitFailure, code)
}

func TestAuditCommandWithDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "codex.db")

	_, err := execute(t, "fuse", "card_0_fool", "card_1_magician", "--type", "union", "--resolve", "--db", db)
	require.NoError(t, err)

	records := executeJSON[[]ir.AuditRecord](t, "audit", "--db", db)
	var actions []string
	for _, r := range records {
		actions = append(actions, r.Action)
	}
	assert.Contains(t, actions, "fusion.propose")
	assert.Contains(t, actions, "fusion.consent")
	assert.Contains(t, actions, "fusion.resolve")
	for i := 1; i < len(records); i++ {
		assert.Greater(t, records[i].Seq, records[i-1].Seq, "ordered by seq")
	}

	resolved := executeJSON[[]ir.AuditRecord](t, "audit", "--db", db, "--action", "fusion.resolve")
	require.Len(t, resolved, 1)
	assert.ElementsMatch(t, []string{"card_0_fool", "card_1_magician"}, resolved[0].EntityIDs[1:])

	last := executeJSON[[]ir.AuditRecord](t, "audit", "--db", db, "--limit", "1")
	require.Len(t, last, 1)
	assert.Equal(t, "integrity.validate", last[0].Action, "every boot validates")
	assert.Greater(t, last[0].Seq, records[len(records)-1].Seq, "seq continues across runs")
}

func TestFilterAudit(t *testing.T) {
	records := []ir.AuditRecord{
		{Seq: 1, Action: "integrity.validate"},
		{Seq: 2, Action: "fusion.propose"},
		{Seq: 3, Action: "fusion.abort"},
		{Seq: 4, Action: "fusion.propose"},
	}

	assert.Len(t, filterAudit(records, nil, 0), 4)
	assert.Len(t, filterAudit(records, []string{"fusion.propose"}, 0), 2)

	limited := filterAudit(records, []string{"fusion.propose", "fusion.abort"}, 2)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(3), limited[0].Seq)
	assert.Equal(t, int64(4), limited[1].Seq)

	assert.NotNil(t, filterAudit(nil, nil, 0))
}

func TestScenarioCommand(t *testing.T) {
	t.Run("all pass", func(t *testing.T) {
		run := executeJSON[ScenarioRun](t, "scenario", scenarioDir)
		assert.Equal(t, 4, run.Total)
		assert.Equal(t, 4, run.Passed)
		assert.Zero(t, run.Failed)
	})

	t.Run("filter", func(t *testing.T) {
		run := executeJSON[ScenarioRun](t, "scenario", scenarioDir, "--filter", "fusion_*")
		require.Equal(t, 1, run.Total)
		assert.Equal(t, "fusion_lifecycle", run.Scenarios[0].Name)
	})

	t.Run("golden round trip", func(t *testing.T) {
		golden := filepath.Join(t.TempDir(), "golden")
		file := filepath.Join(scenarioDir, "fusion_lifecycle.yaml")

		_, err := execute(t, "scenario", file, "--golden", golden, "--update")
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(golden, "fusion_lifecycle.golden"))
		require.NoError(t, err)

		run := executeJSON[ScenarioRun](t, "scenario", file, "--golden", golden)
		assert.Equal(t, 1, run.Passed)
	})

	t.Run("failing scenario", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "wrong.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`name: wrong
description: expects a lookup of an existing node to fail
steps:
  - op: node
    id: node_1
    expect: { error: NOT_FOUND }
`), 0o644))

		out, err := execute(t, "scenario", path)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "✗ wrong")
		assert.Contains(t, out, "0 passed, 1 failed, 1 total")
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := execute(t, "scenario", filepath.Join(t.TempDir(), "absent"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("update without golden", func(t *testing.T) {
		_, err := execute(t, "scenario", scenarioDir, "--update")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
