package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func (h *Harness) check(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertAuditOrder, AssertAuditCount:
		records, err := h.engine.Audit(ctx)
		if err != nil {
			return fmt.Errorf("load audit: %w", err)
		}
		actions := make([]string, len(records))
		for i, r := range records {
			actions[i] = r.Action
		}
		if a.Type == AssertAuditOrder {
			return assertAuditOrder(actions, a.Actions)
		}
		return assertAuditCount(actions, a.Action, a.Count)

	case AssertSessionState:
		s, err := h.engine.GetSession(ctx, h.sessions[a.Session])
		if err != nil {
			return &AssertionError{Type: a.Type, Expected: "session " + a.Session, Actual: err.Error()}
		}
		if string(s.State) != a.State {
			return &AssertionError{Type: a.Type, Expected: a.State, Actual: string(s.State)}
		}
		return nil

	case AssertHealthBetween:
		overall := h.engine.GetHealthReport().OverallHealth
		if overall < a.Min || (a.Max != 0 && overall > a.Max) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("overall health in [%g, %g]", a.Min, a.Max),
				Actual:   fmt.Sprintf("%g", overall),
			}
		}
		return nil

	case AssertDisabledFeatures:
		got := h.engine.BootReport().DisabledFeatures
		want := a.Features
		if want == nil {
			want = []string{}
		}
		if !slices.Equal(sortedCopy(got), sortedCopy(want)) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertAuditOrder checks that want appears in actions as a subsequence.
// Intervening actions are allowed.
func assertAuditOrder(actions, want []string) error {
	i := 0
	for _, act := range actions {
		if i < len(want) && act == want[i] {
			i++
		}
	}
	if i == len(want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertAuditOrder,
		Expected: strings.Join(want, " -> "),
		Actual:   fmt.Sprintf("matched %d of %d in [%s]", i, len(want), strings.Join(actions, ", ")),
	}
}

func assertAuditCount(actions []string, action string, want int) error {
	got := 0
	for _, act := range actions {
		if act == action {
			got++
		}
	}
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     AssertAuditCount,
		Expected: fmt.Sprintf("%d x %s", want, action),
		Actual:   fmt.Sprintf("%d", got),
	}
}

func sortedCopy(ss []string) []string {
	out := slices.Clone(ss)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return out
}

// Describe renders the failures of r followed by its step outcomes.
func (r *Result) Describe() string {
	var b strings.Builder
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	ops := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		ops[i] = ev.Op + ":" + ev.Outcome
	}
	fmt.Fprintf(&b, "  trace: %s", strings.Join(ops, " "))
	return b.String()
}
