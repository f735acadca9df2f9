package governance

import (
	"reflect"
	"testing"
)

func passingInputs() (EvalSummary, SafetyReport, ComplianceReport) {
	eval := EvalSummary{SuiteID: "suite-1", SampleCount: 10, PassRate: 0.9, MeanScore: 0.85, Pass: true}
	safety := SafetyReport{Scanned: 10, Flagged: 0, Pass: true}
	compliance := ComplianceReport{CostActualUSD: 12.5, CostBudgetUSD: 250, Tracked: true, Pass: true}
	return eval, safety, compliance
}

func TestEvaluateApprovedWhenAllPass(t *testing.T) {
	v := Evaluate(passingInputs())
	if v.Decision != DecisionApproved {
		t.Fatalf("decision = %q, want %q", v.Decision, DecisionApproved)
	}
	if len(v.Reasons) != 0 {
		t.Fatalf("approved verdict carries reasons: %v", v.Reasons)
	}
	if !v.SafetyPass || !v.CompliancePass {
		t.Fatalf("pass flags = safety %v compliance %v", v.SafetyPass, v.CompliancePass)
	}
}

func TestEvaluateOneReasonPerFailedCheck(t *testing.T) {
	eval, safety, compliance := passingInputs()
	eval.Pass = false
	safety.Pass = false
	safety.Flagged = 2
	compliance.Pass = false

	v := Evaluate(eval, safety, compliance)
	if v.Decision != DecisionRejected {
		t.Fatalf("decision = %q, want %q", v.Decision, DecisionRejected)
	}
	if len(v.Reasons) != 3 {
		t.Fatalf("reasons = %v, want exactly 3", v.Reasons)
	}
}

func TestEvaluateSingleFailureRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*EvalSummary, *SafetyReport, *ComplianceReport)
	}{
		{"eval fails", func(e *EvalSummary, _ *SafetyReport, _ *ComplianceReport) { e.Pass = false }},
		{"safety fails", func(_ *EvalSummary, s *SafetyReport, _ *ComplianceReport) { s.Pass = false }},
		{"compliance fails", func(_ *EvalSummary, _ *SafetyReport, c *ComplianceReport) { c.Pass = false }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eval, safety, compliance := passingInputs()
			tc.mutate(&eval, &safety, &compliance)
			v := Evaluate(eval, safety, compliance)
			if v.Decision != DecisionRejected {
				t.Fatalf("decision = %q, want rejected", v.Decision)
			}
			if len(v.Reasons) != 1 {
				t.Fatalf("reasons = %v, want exactly 1", v.Reasons)
			}
		})
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eval, safety, compliance := passingInputs()
	eval.Pass = false
	compliance.Pass = false

	first := Evaluate(eval, safety, compliance)
	for i := 0; i < 10; i++ {
		got := Evaluate(eval, safety, compliance)
		if !reflect.DeepEqual(first, got) {
			t.Fatalf("verdict changed between runs: %+v vs %+v", first, got)
		}
	}
}
