package guardrail

import (
	"regexp"
	"sort"
	"strings"
)

// Evaluate scans text against policy and returns the final text, the
// violations found ordered by position, and whether the text was modified.
//
// Each violation's enclosing sentence is replaced with RedactionMarker so the
// result stays grammatical. Policy disclaimers not already present verbatim
// are appended one per line. Evaluating the returned text again with the same
// policy reports no modification.
func Evaluate(text string, policy Policy) (string, []Violation, bool) {
	violations := scanPhrases(text, policy.ProhibitedPhrases)
	violations = append(violations, scanRegexRules(text, policy.RegexRules)...)

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Position != violations[j].Position {
			return violations[i].Position < violations[j].Position
		}
		return violations[i].RuleID < violations[j].RuleID
	})

	out := text
	modified := false
	if len(violations) > 0 {
		out = redactSentences(text, violations)
		modified = out != text
	}

	for _, disclaimer := range policy.Disclaimers {
		if disclaimer == "" || strings.Contains(out, disclaimer) {
			continue
		}
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += disclaimer
		modified = true
	}

	return out, violations, modified
}

func scanPhrases(text string, categories map[string][]string) []Violation {
	var violations []Violation
	for category, phrases := range categories {
		for _, phrase := range phrases {
			if phrase == "" {
				continue
			}
			re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(phrase))
			if err != nil {
				continue
			}
			for _, loc := range re.FindAllStringIndex(text, -1) {
				violations = append(violations, Violation{
					RuleID:      category,
					MatchedText: text[loc[0]:loc[1]],
					Position:    loc[0],
				})
			}
		}
	}
	return violations
}

func scanRegexRules(text string, rules []RegexRule) []Violation {
	var violations []Violation
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			// A malformed rule must never block the response path.
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			violations = append(violations, Violation{
				RuleID:      rule.ID,
				MatchedText: text[loc[0]:loc[1]],
				Position:    loc[0],
			})
		}
	}
	return violations
}

// sentenceSpan is a half-open byte range covering one sentence.
type sentenceSpan struct {
	start int
	end   int
}

// sentenceSpans splits text on sentence-terminating punctuation and
// newlines. Every byte of text belongs to exactly one span.
func sentenceSpans(text string) []sentenceSpan {
	var spans []sentenceSpan
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			spans = append(spans, sentenceSpan{start: start, end: i + 1})
			start = i + 1
		case '.', '!', '?':
			// Terminal punctuation only ends a sentence before whitespace,
			// so decimals like "4.5%" stay in one span.
			if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\t' && text[i+1] != '\n' {
				continue
			}
			spans = append(spans, sentenceSpan{start: start, end: i + 1})
			start = i + 1
		}
	}
	if start < len(text) {
		spans = append(spans, sentenceSpan{start: start, end: len(text)})
	}
	return spans
}

func redactSentences(text string, violations []Violation) string {
	spans := sentenceSpans(text)
	flagged := make(map[int]bool, len(violations))
	for _, v := range violations {
		for i, span := range spans {
			if v.Position >= span.start && v.Position < span.end {
				flagged[i] = true
				break
			}
		}
	}

	var b strings.Builder
	for i, span := range spans {
		if !flagged[i] {
			b.WriteString(text[span.start:span.end])
			continue
		}
		sentence := text[span.start:span.end]
		leading := sentence[:len(sentence)-len(strings.TrimLeft(sentence, " \t"))]
		b.WriteString(leading)
		b.WriteString(RedactionMarker)
		if strings.HasSuffix(sentence, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
