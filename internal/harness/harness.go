package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/integrity"
	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/store"
	"github.com/roach88/codex/internal/testutil"
)

// Harness executes one scenario against a fresh engine.
type Harness struct {
	engine   *engine.Engine
	clock    *testutil.FakeClock
	sessions map[string]string // As name -> session id
	result   *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh engine backed by an in-memory SQLite
// store, with a fake clock fixed at testutil.Epoch and sequential session
// ids, so identical scenarios produce identical traces.
//
// An error is returned only when the engine cannot be set up. Step and
// assertion failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg, err := scenarioConfig(scenario)
	if err != nil {
		return nil, err
	}

	arts := map[string]integrity.Artifact{}
	if scenario.Mappings != MappingsNone {
		if arts, err = engine.GenerateArtifacts(cfg); err != nil {
			return nil, fmt.Errorf("generate mappings: %w", err)
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clk := testutil.NewFakeClock(testutil.Epoch)
	eng, err := engine.New(ctx, cfg,
		engine.WithClock(clk),
		engine.WithStore(st),
		engine.WithArtifacts(arts),
		engine.WithSessionIDs(testutil.NewSequenceIDGenerator("session")),
	)
	if err != nil {
		return nil, fmt.Errorf("boot engine: %w", err)
	}
	defer eng.Dispose()

	h := &Harness{
		engine:   eng,
		clock:    clk,
		sessions: make(map[string]string),
		result:   NewResult(),
	}
	for i, step := range scenario.Steps {
		h.runStep(ctx, i, step)
		eng.Flush(ctx)
	}
	for i, a := range scenario.Assertions {
		if err := h.check(ctx, a); err != nil {
			h.result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return h.result, nil
}

func scenarioConfig(s *Scenario) (*config.Config, error) {
	if s.Config == "" {
		return config.Default()
	}
	return config.LoadBytes(s.Name+".cue", []byte(s.Config))
}

// stepOutcome is what a step observed, before expect checks.
type stepOutcome struct {
	target   string
	detail   ir.IRObject
	state    ir.SessionState
	severity ir.Severity
}

func (h *Harness) runStep(ctx context.Context, i int, step Step) {
	out, err := h.exec(ctx, step)

	outcome := OutcomeOK
	if err != nil {
		outcome = string(ir.CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	h.result.record(TraceEvent{
		Op:      step.Op,
		Target:  out.target,
		Outcome: outcome,
		Detail:  out.detail,
	})

	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}
	switch {
	case exp.Error == "" && err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Op, err))
	case exp.Error != "" && outcome != exp.Error:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s", i, step.Op, exp.Error, outcome))
	}
	if exp.State != "" && string(out.state) != exp.State {
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected state %s, got %q", i, step.Op, exp.State, out.state))
	}
	if exp.Severity != "" && string(out.severity) != exp.Severity {
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected severity %s, got %q", i, step.Op, exp.Severity, out.severity))
	}
}

func (h *Harness) exec(ctx context.Context, step Step) (stepOutcome, error) {
	e := h.engine
	switch step.Op {
	case OpCreate:
		s, err := e.CreateFusionSession(ctx, step.Participants, step.FusionType)
		if err != nil {
			return stepOutcome{target: step.As}, err
		}
		h.sessions[step.As] = s.ID
		return sessionOutcome(step.As, s), nil

	case OpConsent:
		s, err := e.ConfirmConsent(ctx, h.sessions[step.Session])
		return sessionOutcome(step.Session, s), err

	case OpResolve:
		s, err := e.Resolve(ctx, h.sessions[step.Session])
		return sessionOutcome(step.Session, s), err

	case OpAbort:
		s, err := e.Abort(ctx, h.sessions[step.Session], step.Reason)
		return sessionOutcome(step.Session, s), err

	case OpAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return stepOutcome{}, ir.InvalidArgument("invalid duration %q", step.Duration)
		}
		h.clock.Advance(d)
		return stepOutcome{detail: ir.IRObject{"ms": ir.IRInt(d.Milliseconds())}}, nil

	case OpPass:
		s, err := e.RunGlobalPass(ctx)
		if err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{detail: ir.IRObject{
			"processed":        ir.IRInt(s.Processed),
			"failed":           ir.IRInt(len(s.Failed)),
			"pairs_scored":     ir.IRInt(s.PairsScored),
			"global_resonance": ir.Micros(s.GlobalResonance),
			"alerts_raised":    ir.IRInt(s.AlertsRaised),
			"partial":          ir.IRBool(s.Partial),
		}}, nil

	case OpSync:
		res, err := e.SyncSubset(ctx, step.ID, step.Targets)
		if err != nil {
			return stepOutcome{target: step.ID}, err
		}
		return stepOutcome{target: step.ID, detail: ir.IRObject{
			"pairs":          ir.IRInt(len(res.Pairs)),
			"failed":         ir.IRInt(res.Failed),
			"mean_resonance": ir.Micros(res.MeanResonance),
			"total_energy":   ir.Micros(res.TotalEnergy),
		}}, nil

	case OpResonance:
		pr, err := e.PairResonance(step.ID, step.Targets[0])
		target := step.ID + ":" + step.Targets[0]
		if err != nil {
			return stepOutcome{target: target}, err
		}
		return stepOutcome{target: target, detail: ir.IRObject{
			"resonance":       ir.Micros(pr.Resonance),
			"energy_transfer": ir.Micros(pr.EnergyTransfer),
		}}, nil

	case OpNode:
		n, err := e.GetNode(step.ID)
		if err != nil {
			return stepOutcome{target: step.ID}, err
		}
		return stepOutcome{target: step.ID, detail: ir.IRObject{
			"numerology_core":   ir.IRInt(n.NumerologyCore),
			"element":           ir.IRString(n.Element),
			"base_frequency_hz": ir.Micros(n.BaseFrequencyHz),
			"related":           ir.Ints(n.RelatedIDs),
		}}, nil

	case OpCard:
		c, err := e.GetCard(step.ID)
		if err != nil {
			return stepOutcome{target: step.ID}, err
		}
		return stepOutcome{target: step.ID, detail: ir.IRObject{
			"element":            ir.IRString(c.Element),
			"mirrors":            ir.Ints(c.MirroredNodeIDs),
			"resonance_strength": ir.Micros(c.ResonanceStrength),
		}}, nil

	case OpHealth:
		rec, err := e.GetHealth(step.ID)
		if err != nil {
			return stepOutcome{target: step.ID}, err
		}
		return stepOutcome{target: step.ID, severity: rec.Severity, detail: ir.IRObject{
			"value":    ir.Micros(rec.Value),
			"severity": ir.IRString(rec.Severity),
			"alerts":   ir.IRInt(len(rec.ActiveAlerts)),
		}}, nil
	}
	return stepOutcome{}, ir.InvalidArgument("unknown op %q", step.Op)
}

// sessionOutcome summarizes a session. Session ids are reported by their
// scenario name so traces stay stable if id generation changes.
func sessionOutcome(name string, s ir.FusionSession) stepOutcome {
	out := stepOutcome{target: name, state: s.State}
	if s.ID == "" {
		return out
	}
	out.detail = ir.IRObject{
		"state":            ir.IRString(s.State),
		"intensity":        ir.IRInt(s.Intensity),
		"safety_protocols": ir.Strings(s.SafetyProtocols),
	}
	if s.AbortReason != "" {
		out.detail["abort_reason"] = ir.IRString(s.AbortReason)
	}
	if s.Outcome != nil {
		out.detail["outcome_digest"] = ir.IRString(s.Outcome.Digest)
		out.detail["dominant_element"] = ir.IRString(s.Outcome.DominantElement)
		out.detail["capabilities"] = ir.Strings(s.Outcome.Capabilities)
		out.detail["phi_score"] = ir.Micros(s.Outcome.PhiScore)
	}
	return out
}
