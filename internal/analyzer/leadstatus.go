package analyzer

import "strings"

// LeadStatuses is the fixed enumeration from spec.md §6. vvi ("very, very
// interested") is the strongest positive code — it alone triggers messaging
// dispatch by lead status, per §4.6 rule 4.
var LeadStatuses = []string{
	"vvi", "maybe", "enrolled", "junk_lead", "not_required", "enrolled_other",
	"decline", "not_eligible", "wrong_number", "hot_followup", "cold_followup",
	"schedule", "not_connected",
}

const (
	LeadStatusStrongestPositive = "vvi"
	LeadStatusMaybe             = "maybe"
	LeadStatusNotConnected      = "not_connected"
)

// ValidLeadStatus reports whether code is a member of the fixed enumeration,
// case-insensitively.
func ValidLeadStatus(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, s := range LeadStatuses {
		if s == code {
			return true
		}
	}
	return false
}

// normalizeLeadStatus lowercases and trims a candidate code for storage and
// comparison, since the LLM's raw output may carry stray casing/whitespace.
func normalizeLeadStatus(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
