package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrDecode marks classifier output that could not be parsed into records.
var ErrDecode = errors.New("undecodable classifier output")

// DecodeError carries the raw classifier text for diagnostics. Raw must never
// be shown to end users.
type DecodeError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode output: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// RepairImpactSigns drops a '+' that sits between a colon and a run of digits
// outside of JSON strings, turning `"impact": +30` into `"impact": 30`.
// Text inside string literals is never touched. Input without such a pattern
// is returned unchanged.
func RepairImpactSigns(raw string) string {
	if !strings.Contains(raw, "+") {
		return raw
	}

	var sb strings.Builder
	sb.Grow(len(raw))
	inString, escaped, afterColon := false, false, false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			sb.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			afterColon = false
		case c == ':':
			afterColon = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			// whitespace keeps the colon context
		case c == '+' && afterColon && i+1 < len(raw) && isDigit(raw[i+1]):
			afterColon = false
			continue
		default:
			afterColon = false
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Decode parses raw classifier output as a strict JSON value of type T. When
// repair is set the impact-sign fix is applied first; no other leniency is
// attempted.
func Decode[T any](stage, raw string, repair bool) (T, error) {
	var out T
	text := strings.TrimSpace(raw)
	if repair {
		text = RepairImpactSigns(text)
	}

	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return out, &DecodeError{Stage: stage, Raw: raw, Err: err}
	}
	return out, nil
}
