package governance

import "fmt"

// EvalSummary condenses a completed eval run for the promotion gate.
type EvalSummary struct {
	SuiteID     string  `json:"suite_id,omitempty"`
	SampleCount int     `json:"sample_count"`
	PassRate    float64 `json:"pass_rate"`
	MeanScore   float64 `json:"mean_score"`
	Pass        bool    `json:"pass"`
}

// SafetyReport is the content-safety scan result over model outputs.
type SafetyReport struct {
	Scanned    int      `json:"scanned"`
	Flagged    int      `json:"flagged"`
	Categories []string `json:"categories,omitempty"`
	Pass       bool     `json:"pass"`
}

// ComplianceReport is the cost/compliance check for the training run that
// produced the model version. Cost figures come from external collaborators;
// the gate only combines the verdict.
type ComplianceReport struct {
	CostActualUSD float64 `json:"cost_actual_usd"`
	CostBudgetUSD float64 `json:"cost_budget_usd"`
	Tracked       bool    `json:"tracked"`
	Pass          bool    `json:"pass"`
}

type Verdict struct {
	Decision       string   `json:"decision"`
	Reasons        []string `json:"reasons"`
	SafetyPass     bool     `json:"safety_pass"`
	CompliancePass bool     `json:"compliance_pass"`
}

const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Evaluate combines the eval, safety and compliance verdicts into a single
// promotion decision. Pure: same inputs always produce the same verdict and
// the same reason list, one reason per failed check, never merged.
func Evaluate(eval EvalSummary, safety SafetyReport, compliance ComplianceReport) Verdict {
	v := Verdict{
		SafetyPass:     safety.Pass,
		CompliancePass: compliance.Pass,
	}

	if !eval.Pass {
		v.Reasons = append(v.Reasons,
			fmt.Sprintf("eval suite failed: pass rate %.2f over %d samples", eval.PassRate, eval.SampleCount))
	}
	if !safety.Pass {
		v.Reasons = append(v.Reasons,
			fmt.Sprintf("content safety failed: %d of %d outputs flagged", safety.Flagged, safety.Scanned))
	}
	if !compliance.Pass {
		v.Reasons = append(v.Reasons,
			fmt.Sprintf("cost compliance failed: actual $%.2f against budget $%.2f", compliance.CostActualUSD, compliance.CostBudgetUSD))
	}

	if len(v.Reasons) == 0 {
		v.Decision = DecisionApproved
	} else {
		v.Decision = DecisionRejected
	}
	return v
}
