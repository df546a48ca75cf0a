// Package helper decodes the envelope protocol spoken by helper
// commands: a JSON document bracketed by JSON_START and JSON_END marker
// lines embedded in the helper's stdout.
package helper

import (
	"encoding/json"
	"strings"

	"github.com/SouthHost/the-bastion/internal/result"
)

// Envelope markers. Lines must match exactly; surrounding whitespace is
// expected to have been stripped with the line terminator already.
const (
	MarkerStart = "JSON_START"
	MarkerEnd   = "JSON_END"
)

// Extract scans lines for JSON_START/JSON_END bracketed payloads and
// decodes the last completed one. Lines inside the brackets are re-joined
// with newlines to form the document.
//
// Outcomes: no completed block yields ERR_HELPER_RETURN_EMPTY; a block
// that does not decode as JSON yields ERR_HELPER_RETURN_INVALID with the
// decoder's message; otherwise the decoded value under kind OK.
func Extract(lines []string) *result.Result {
	var (
		payload  string
		captured bool
		inside   bool
		acc      []string
	)
	for _, line := range lines {
		switch {
		case !inside && line == MarkerStart:
			inside = true
			acc = acc[:0]
		case inside && line == MarkerEnd:
			inside = false
			payload = strings.Join(acc, "\n")
			captured = true
		case inside:
			acc = append(acc, line)
		}
	}

	if !captured {
		return result.R(result.KindErrHelperEmpty, nil, "helper returned no envelope")
	}

	var value interface{}
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return result.R(result.KindErrHelperInvalid, nil, err.Error())
	}
	return result.R(result.KindOK, value, "")
}

// ExtractString splits a raw capture on newlines, strips trailing
// whitespace per line, and runs Extract.
func ExtractString(raw string) *result.Result {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return Extract(lines)
}

// Unwrap projects a decoded envelope value, expected to be an object with
// error_code, value and error_message keys, into a Result of its own.
// Anything else is ERR_HELPER_RETURN_INVALID.
func Unwrap(decoded *result.Result) *result.Result {
	if decoded.IsErr() {
		return decoded
	}
	obj, ok := decoded.Value.(map[string]interface{})
	if !ok {
		return result.R(result.KindErrHelperInvalid, nil, "envelope payload is not an object")
	}
	code, ok := obj["error_code"].(string)
	if !ok || code == "" {
		return result.R(result.KindErrHelperInvalid, nil, "envelope payload has no error_code")
	}
	msg, _ := obj["error_message"].(string)
	return result.R(result.Kind(code), obj["value"], msg)
}
