package domain

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/drivelane/drivelane/internal/guardrail"
)

// PolicyPayload is the wire shape of a guardrail policy override.
type PolicyPayload struct {
	ProhibitedPhrases map[string][]string `json:"prohibited_phrases,omitempty" jsonschema:"category to literal phrases matched case-insensitively"`
	RegexRules        []RegexRulePayload  `json:"regex_rules,omitempty" jsonschema:"labeled regex rules evaluated in order"`
	Disclaimers       []string            `json:"disclaimers,omitempty" jsonschema:"disclaimers appended when not already present"`
}

// RegexRulePayload is the wire shape of one regex guardrail rule.
type RegexRulePayload struct {
	ID      string `json:"id" jsonschema:"rule identifier reported in violations"`
	Pattern string `json:"pattern" jsonschema:"regular expression enforced on the text"`
}

// ViolationPayload is the wire shape of one guardrail violation.
type ViolationPayload struct {
	RuleID      string `json:"rule_id" jsonschema:"phrase category or regex rule that matched"`
	MatchedText string `json:"matched_text" jsonschema:"the exact span that triggered the rule"`
	Position    int    `json:"position" jsonschema:"byte offset of the match in the input text"`
}

// EvaluateGuardrailsInput represents the MCP tool input for guardrail
// evaluation.
type EvaluateGuardrailsInput struct {
	Text string `json:"text" jsonschema:"specialist text to evaluate before it reaches the shopper"`
	// Policy overrides the built-in automotive policy when provided.
	Policy *PolicyPayload `json:"policy,omitempty" jsonschema:"policy override; defaults to the built-in automotive policy"`
}

// EvaluateGuardrailsResult represents the annotated text after evaluation.
type EvaluateGuardrailsResult struct {
	Text       string             `json:"text" jsonschema:"final text with violating sentences redacted and disclaimers appended"`
	Violations []ViolationPayload `json:"violations" jsonschema:"violations ordered by position"`
	Modified   bool               `json:"modified" jsonschema:"whether the text was changed"`
}

// EvaluateGuardrailsTool defines the MCP tool schema for guardrail evaluation.
func EvaluateGuardrailsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "evaluate_guardrails",
		Description: "Scans specialist text against the automotive content policy, redacts violating sentences, and appends required disclaimers.",
	}
}

// EvaluateGuardrailsHandler executes a guardrail evaluation request.
func EvaluateGuardrailsHandler() mcp.ToolHandlerFor[EvaluateGuardrailsInput, EvaluateGuardrailsResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input EvaluateGuardrailsInput) (*mcp.CallToolResult, EvaluateGuardrailsResult, error) {
		policy := guardrail.DefaultAutomotivePolicy()
		if input.Policy != nil {
			policy = toGuardrailPolicy(*input.Policy)
		}

		text, violations, modified := guardrail.Evaluate(input.Text, policy)
		result := EvaluateGuardrailsResult{
			Text:       text,
			Violations: make([]ViolationPayload, 0, len(violations)),
			Modified:   modified,
		}
		for _, violation := range violations {
			result.Violations = append(result.Violations, ViolationPayload{
				RuleID:      violation.RuleID,
				MatchedText: violation.MatchedText,
				Position:    violation.Position,
			})
		}
		return nil, result, nil
	}
}

func toGuardrailPolicy(payload PolicyPayload) guardrail.Policy {
	policy := guardrail.Policy{
		ProhibitedPhrases: payload.ProhibitedPhrases,
		Disclaimers:       payload.Disclaimers,
	}
	for _, rule := range payload.RegexRules {
		policy.RegexRules = append(policy.RegexRules, guardrail.RegexRule{
			ID:      rule.ID,
			Pattern: rule.Pattern,
		})
	}
	return policy
}
