package evaluation

import (
	"math"
	"testing"
)

func TestScoreExactMatch(t *testing.T) {
	if got := Score("Paris", "paris"); got != 1.0 {
		t.Fatalf("score = %v, want 1.0", got)
	}
}

func TestScoreContainment(t *testing.T) {
	if got := Score("Paris", "The capital of France is Paris."); got != 1.0 {
		t.Fatalf("score = %v, want 1.0", got)
	}
}

func TestScoreTokenOverlap(t *testing.T) {
	got := Score("the quick brown fox", "a quick fox appeared")
	if got <= 0 || got >= 1 {
		t.Fatalf("partial overlap score = %v, want in (0, 1)", got)
	}
}

func TestScoreNoOverlap(t *testing.T) {
	if got := Score("alpha beta", "gamma delta"); got != 0 {
		t.Fatalf("score = %v, want 0", got)
	}
}

func TestScoreEmptyExpected(t *testing.T) {
	if got := Score("", "anything"); got != 0 {
		t.Fatalf("score = %v, want 0", got)
	}
}

func TestScoreNormalizesPunctuation(t *testing.T) {
	if got := Score("Hello, World!", "hello world"); got != 1.0 {
		t.Fatalf("score = %v, want 1.0", got)
	}
}

func TestGradeThreshold(t *testing.T) {
	pass := Grade("q", "exact answer", "exact answer")
	if !pass.Pass || pass.Score != 1.0 {
		t.Fatalf("exact match result = %+v", pass)
	}
	fail := Grade("q", "alpha beta", "gamma delta")
	if fail.Pass {
		t.Fatalf("zero-score sample passed: %+v", fail)
	}
}

func TestAggregate(t *testing.T) {
	results := []SampleResult{
		{Score: 1.0, Pass: true},
		{Score: 1.0, Pass: true},
		{Score: 1.0, Pass: true},
		{Score: 0.0, Pass: false},
	}
	m := Aggregate(results)
	if m.SampleCount != 4 || m.PassCount != 3 {
		t.Fatalf("counts = %d/%d", m.PassCount, m.SampleCount)
	}
	if m.PassRate != 0.75 {
		t.Fatalf("pass rate = %v, want 0.75", m.PassRate)
	}
	if math.Abs(m.MeanScore-0.75) > 1e-9 {
		t.Fatalf("mean score = %v, want 0.75", m.MeanScore)
	}
	if !m.Pass {
		t.Fatal("run with 0.75 pass rate should pass the 0.7 threshold")
	}
}

func TestAggregateBelowThresholdFails(t *testing.T) {
	results := []SampleResult{
		{Score: 1.0, Pass: true},
		{Score: 0.0, Pass: false},
	}
	if m := Aggregate(results); m.Pass {
		t.Fatalf("run with 0.5 pass rate passed: %+v", m)
	}
}

func TestAggregateEmpty(t *testing.T) {
	m := Aggregate(nil)
	if m.SampleCount != 0 || m.Pass {
		t.Fatalf("empty aggregate = %+v", m)
	}
}

func TestMetricsSummary(t *testing.T) {
	m := Metrics{SampleCount: 5, PassRate: 0.8, MeanScore: 0.7, Pass: true}
	s := m.Summary("suite-1")
	if s.SuiteID != "suite-1" || s.SampleCount != 5 || !s.Pass {
		t.Fatalf("summary = %+v", s)
	}
}
