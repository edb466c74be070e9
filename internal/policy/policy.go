// Package policy holds the escalation contract Stage 2 output is held to.
package policy

import "fmt"

// EscalationThreshold is the overall risk at or above which a message must be escalated.
const EscalationThreshold = 60

// WarnThreshold is the overall risk at or above which a warning is the minimum action.
const WarnThreshold = 30

// severeCategories are moderation categories that force escalation on their
// own once clearly present.
var severeCategories = []string{"harassment", "hate_speech", "self_harm", "threat_violence"}

// Assessment is the part of a severity record the contract inspects.
type Assessment struct {
	OverallRisk       int
	Moderation        map[string]int
	Escalate          bool
	EscalationReasons int
}

type Violation struct {
	Rule   string
	Detail string
}

// ExpectedEscalation reports whether a record with this assessment must be escalated.
func ExpectedEscalation(a Assessment) bool {
	if a.OverallRisk >= EscalationThreshold {
		return true
	}
	for _, c := range severeCategories {
		if a.Moderation[c] >= EscalationThreshold {
			return true
		}
	}
	return false
}

// Tier returns the least severe action acceptable for a risk score.
func Tier(risk int) string {
	switch {
	case risk >= EscalationThreshold:
		return "manual_review"
	case risk >= WarnThreshold:
		return "warn"
	default:
		return "none"
	}
}

// Check returns every contract rule the assessment breaks.
func Check(a Assessment) []Violation {
	var out []Violation
	if ExpectedEscalation(a) && !a.Escalate {
		out = append(out, Violation{
			Rule:   "escalate_required",
			Detail: fmt.Sprintf("overall_risk=%d but escalate=false", a.OverallRisk),
		})
	}
	if a.Escalate && a.EscalationReasons == 0 {
		out = append(out, Violation{Rule: "reasons_required", Detail: "escalate=true with no escalation_reasons"})
	}
	if !a.Escalate && a.EscalationReasons > 0 {
		out = append(out, Violation{Rule: "reasons_without_escalation", Detail: fmt.Sprintf("%d reasons but escalate=false", a.EscalationReasons)})
	}
	return out
}
