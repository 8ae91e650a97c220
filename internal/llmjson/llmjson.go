// Package llmjson parses JSON out of raw model output. Model responses are
// not guaranteed to be valid JSON: they arrive wrapped in markdown fences,
// with trailing commas, with JavaScript string concatenation, or truncated
// mid-object. Parsing runs cheapest-first and stops at the first success.
package llmjson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// RepairBudget bounds how long the general repair stage may run.
const RepairBudget = 5 * time.Second

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	stringConcatRe  = regexp.MustCompile(`"\s*\+\s*"`)
)

// ParseError is returned when every strategy failed. The snippet carries the
// beginning of the offending payload for operational inspection.
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse llm json: %v (input: %.200s)", e.Err, e.Snippet)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Unmarshal runs the full pipeline: extract the JSON object from surrounding
// text, try a direct parse, apply quick syntactic fixes, then a bounded
// general repair. It never fabricates data: on total failure the target is
// left untouched and a *ParseError is returned.
func Unmarshal(text string, v any) error {
	jsonStr, err := ExtractObject(text)
	if err != nil {
		return &ParseError{Snippet: text, Err: err}
	}

	if err := json.Unmarshal([]byte(jsonStr), v); err == nil {
		return nil
	}

	fixed := QuickFix(jsonStr)
	if err := json.Unmarshal([]byte(fixed), v); err == nil {
		return nil
	}

	repaired, ok := Repair(jsonStr, RepairBudget)
	if ok {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}

	return &ParseError{Snippet: jsonStr, Err: fmt.Errorf("invalid json after all repair attempts")}
}

// ExtractObject pulls the JSON object out of text. Tried in order: a
// ```json fence, a generic ``` fence, text that already starts with '{',
// and finally the span from the first '{' to the last '}'.
func ExtractObject(text string) (string, error) {
	if strings.Contains(text, "```json") {
		after := strings.SplitN(text, "```json", 2)[1]
		body, _, found := strings.Cut(after, "```")
		if !found {
			return "", fmt.Errorf("unterminated json code block")
		}
		return strings.TrimSpace(body), nil
	}

	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		// Skip an optional language identifier on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			body := rest[nl+1:]
			if end := strings.Index(body, "```"); end >= 0 {
				return strings.TrimSpace(body[:end]), nil
			}
		}
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no json object found in response")
	}
	end := strings.LastIndexByte(text, '}')
	if end < 0 {
		return "", fmt.Errorf("incomplete json object in response")
	}
	if start >= end {
		return "", fmt.Errorf("invalid json boundaries in response")
	}
	return text[start : end+1], nil
}

// QuickFix applies the two syntactic fixes that cover most malformed model
// output: adjacent-string concatenation ("a" + "b" -> "ab") and trailing
// commas before a closing brace or bracket.
func QuickFix(jsonStr string) string {
	fixed := stringConcatRe.ReplaceAllString(jsonStr, "")
	return trailingCommaRe.ReplaceAllString(fixed, "$1")
}

// Repair is the general-purpose stage: a single pass over the input that
// rewrites single-quoted strings, quotes bare object keys, drops trailing
// commas, closes an unterminated string, and balances brackets. Returns
// false when the budget is exhausted or the input has no salvageable shape.
func Repair(jsonStr string, budget time.Duration) (string, bool) {
	deadline := time.Now().Add(budget)
	in := []rune(QuickFix(jsonStr))

	var out strings.Builder
	out.Grow(len(in))

	var stack []rune
	inString := false
	escaped := false

	for i := 0; i < len(in); i++ {
		if i%1024 == 0 && time.Now().After(deadline) {
			return "", false
		}
		r := in[i]

		if inString {
			out.WriteRune(r)
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
			out.WriteRune(r)
		case '\'':
			// Rewrite a single-quoted string as double-quoted.
			out.WriteRune('"')
			for i++; i < len(in); i++ {
				if in[i] == '\\' && i+1 < len(in) {
					out.WriteRune(in[i])
					i++
					out.WriteRune(in[i])
					continue
				}
				if in[i] == '\'' {
					break
				}
				if in[i] == '"' {
					out.WriteString(`\"`)
					continue
				}
				out.WriteRune(in[i])
			}
			out.WriteRune('"')
		case '{', '[':
			stack = append(stack, r)
			out.WriteRune(r)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
				out.WriteRune(r)
			}
			// A closer with no opener is dropped.
		default:
			if isBareKeyStart(r) && expectsKey(in, i, stack) {
				j := i
				for j < len(in) && isBareKeyRune(in[j]) {
					j++
				}
				k := j
				for k < len(in) && unicode.IsSpace(in[k]) {
					k++
				}
				if k < len(in) && in[k] == ':' {
					out.WriteByte('"')
					out.WriteString(string(in[i:j]))
					out.WriteByte('"')
					i = j - 1
					continue
				}
			}
			out.WriteRune(r)
		}
	}

	if inString {
		out.WriteRune('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out.WriteRune('}')
		} else {
			out.WriteRune(']')
		}
	}

	repaired := trailingCommaRe.ReplaceAllString(out.String(), "$1")
	if !strings.HasPrefix(strings.TrimSpace(repaired), "{") {
		return "", false
	}
	return repaired, true
}

func isBareKeyStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isBareKeyRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}

// expectsKey reports whether position i inside an object is where a key may
// start (right after '{' or ',' modulo whitespace).
func expectsKey(in []rune, i int, stack []rune) bool {
	if len(stack) == 0 || stack[len(stack)-1] != '{' {
		return false
	}
	for j := i - 1; j >= 0; j-- {
		if unicode.IsSpace(in[j]) {
			continue
		}
		return in[j] == '{' || in[j] == ','
	}
	return false
}
