package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/service/triage"
	"github.com/vaidya-health/vaidya/pkg/usecase"
)

var (
	headerColor   = color.New(color.Bold)
	labelColor    = color.New(color.FgCyan)
	degradedColor = color.New(color.FgYellow)
)

func riskColor(level types.RiskLevel) *color.Color {
	switch level {
	case types.RiskLevelCritical:
		return color.New(color.FgHiRed, color.Bold)
	case types.RiskLevelHigh:
		return color.New(color.FgRed, color.Bold)
	case types.RiskLevelMedium:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgGreen, color.Bold)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to encode output")
	}
	return nil
}

func printTriage(w io.Writer, res *usecase.TriageResult) {
	headerColor.Fprintln(w, "Triage result")
	labelColor.Fprint(w, "  Risk level:  ")
	riskColor(res.RiskLevel).Fprintf(w, "%s", res.RiskLevel)
	fmt.Fprintf(w, " (score %.2f, confidence %.1f%%)\n", res.RiskScore, res.Confidence*100)
	labelColor.Fprint(w, "  Department:  ")
	fmt.Fprintln(w, res.Department)
	labelColor.Fprint(w, "  Reasoning:   ")
	fmt.Fprintln(w, res.Explanation.Reasoning)

	if len(res.Explanation.TopFeatures) > 0 {
		headerColor.Fprintln(w, "Top features")
		for _, f := range res.Explanation.TopFeatures {
			fmt.Fprintf(w, "  %-32s %.4f\n", f.Feature, f.Importance)
		}
	}
	if len(res.RetrievedMedicalContext) > 0 {
		headerColor.Fprintln(w, "Medical context")
		for _, r := range res.RetrievedMedicalContext {
			fmt.Fprintf(w, "  [%s %.3f] %s\n", r.DocType, r.Similarity, r.Excerpt)
		}
	}
	printStageErrors(w, res.Errors)
}

func printStageErrors(w io.Writer, errs []usecase.StageError) {
	for _, e := range errs {
		if e.Degraded {
			degradedColor.Fprintf(w, "  degraded %s: %s\n", e.Stage, e.Message)
		} else {
			color.New(color.FgRed).Fprintf(w, "  failed %s: %s\n", e.Stage, e.Message)
		}
	}
}

func printReport(w io.Writer, title string, r triage.Report) {
	headerColor.Fprintf(w, "%s accuracy: %.3f\n", title, r.Accuracy)
	fmt.Fprintf(w, "  %-20s %9s %9s %9s %8s\n", "class", "precision", "recall", "f1", "support")
	for _, name := range r.ClassNames() {
		m := r.Classes[name]
		fmt.Fprintf(w, "  %-20s %9.3f %9.3f %9.3f %8d\n", name, m.Precision, m.Recall, m.F1, m.Support)
	}
}
