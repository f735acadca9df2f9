package evaluation

import (
	"strings"

	"github.com/modelplane/modelplane/internal/governance"
)

// Score thresholds. A sample passes at or above SampleThreshold; a run
// passes when its pass rate reaches SuiteThreshold.
const (
	SampleThreshold = 0.5
	SuiteThreshold  = 0.7
)

// SampleResult is one scored model response.
type SampleResult struct {
	Input    string  `json:"input"`
	Expected string  `json:"expected"`
	Output   string  `json:"output"`
	Score    float64 `json:"score"`
	Pass     bool    `json:"pass"`
}

// Metrics aggregates a full run.
type Metrics struct {
	SampleCount int            `json:"sample_count"`
	PassCount   int            `json:"pass_count"`
	PassRate    float64        `json:"pass_rate"`
	MeanScore   float64        `json:"mean_score"`
	Pass        bool           `json:"pass"`
	Results     []SampleResult `json:"results"`
}

// Score rates a model output against the expected answer: exact match after
// normalization scores 1.0, otherwise token-overlap F1.
func Score(expected, output string) float64 {
	exp := normalize(expected)
	out := normalize(output)
	if exp == "" {
		return 0
	}
	if exp == out || strings.Contains(out, exp) {
		return 1.0
	}
	return tokenF1(strings.Fields(exp), strings.Fields(out))
}

// Grade wraps Score with the sample pass threshold.
func Grade(input, expected, output string) SampleResult {
	score := Score(expected, output)
	return SampleResult{
		Input:    input,
		Expected: expected,
		Output:   output,
		Score:    score,
		Pass:     score >= SampleThreshold,
	}
}

// Aggregate folds sample results into run metrics.
func Aggregate(results []SampleResult) Metrics {
	m := Metrics{SampleCount: len(results), Results: results}
	if len(results) == 0 {
		return m
	}
	var total float64
	for _, r := range results {
		total += r.Score
		if r.Pass {
			m.PassCount++
		}
	}
	m.PassRate = float64(m.PassCount) / float64(m.SampleCount)
	m.MeanScore = total / float64(m.SampleCount)
	m.Pass = m.PassRate >= SuiteThreshold
	return m
}

// Summary condenses metrics for the promotion gate.
func (m Metrics) Summary(suiteID string) governance.EvalSummary {
	return governance.EvalSummary{
		SuiteID:     suiteID,
		SampleCount: m.SampleCount,
		PassRate:    m.PassRate,
		MeanScore:   m.MeanScore,
		Pass:        m.Pass,
	}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenF1(expected, output []string) float64 {
	if len(expected) == 0 || len(output) == 0 {
		return 0
	}
	counts := map[string]int{}
	for _, t := range expected {
		counts[t]++
	}
	overlap := 0
	for _, t := range output {
		if counts[t] > 0 {
			counts[t]--
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	precision := float64(overlap) / float64(len(output))
	recall := float64(overlap) / float64(len(expected))
	return 2 * precision * recall / (precision + recall)
}
