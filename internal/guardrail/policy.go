// Package guardrail enforces content policies on specialist-generated text
// before it is returned to callers. Evaluation is pure: identical text and
// policy always produce identical output, with no I/O or shared state.
package guardrail

// RedactionMarker replaces the enclosing sentence of every policy violation.
const RedactionMarker = "[Removed: contains prohibited automotive advice]"

// Policy is the set of rules enforced on generated text. It is supplied
// fresh per evaluation and never mutated. A zero-value policy means no
// active rules and leaves text unchanged.
type Policy struct {
	// ProhibitedPhrases maps a category label to literal phrases matched
	// case-insensitively anywhere in the text.
	ProhibitedPhrases map[string][]string
	// RegexRules are evaluated in order after the phrase scan.
	RegexRules []RegexRule
	// Disclaimers are appended, one per line in order, when not already
	// present verbatim in the text.
	Disclaimers []string
}

// RegexRule is a labeled pattern enforced on generated text. A pattern that
// fails to compile is skipped rather than blocking the response path.
type RegexRule struct {
	ID      string
	Pattern string
}

// Violation records a single policy hit in the evaluated text.
type Violation struct {
	// RuleID is the phrase category or regex rule id that matched.
	RuleID string
	// MatchedText is the exact span that triggered the rule.
	MatchedText string
	// Position is the byte offset of the match in the original text.
	Position int
}

// DefaultAutomotivePolicy returns the built-in policy for vehicle-shopping
// assistants. It blocks purchase pressure, financial guarantees, legal
// advice, and mechanical diagnosis claims.
func DefaultAutomotivePolicy() Policy {
	return Policy{
		ProhibitedPhrases: map[string][]string{
			"purchase_decisions": {
				"you should definitely buy",
				"i recommend you purchase",
				"you need to buy this now",
				"this is the best deal you'll ever find",
			},
			"financial_guarantees": {
				"i guarantee your rate will be",
				"you will definitely get approved",
				"your monthly payment will be exactly",
				"i promise this financing",
			},
			"legal_advice": {
				"legally you should",
				"your legal rights are",
				"you should sue",
			},
			"mechanical_diagnosis": {
				"this engine will last",
				"this car will never break down",
				"i guarantee no mechanical issues",
			},
		},
		RegexRules: []RegexRule{
			{
				ID:      "apr_promises",
				Pattern: `(?i)your\s+apr\s+(?:will|is\s+going\s+to)\s+be\s+\d`,
			},
			{
				ID: "credit_score_diagnosis",
				Pattern: `(?i)(?:your|with\s+a)\s+credit\s+score\s+(?:of\s+)?\d+\s+` +
					`(?:means|guarantees|qualifies\s+you)`,
			},
		},
		Disclaimers: []string{
			"Warranty terms vary by make, trim, and in-service date. Always confirm exact coverage with the manufacturer or dealer.",
			"Financing figures are estimates only; actual rates and approval depend on lender review of your application.",
		},
	}
}
