// Package taint screens command-argument tokens for bytes that have no
// business in an exec argument vector. Detection is advisory: the engine
// warns on a tainted token but still attempts the spawn, which is then
// expected to fail on its own.
package taint

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Policy selects which classes of content are considered tainted.
// The zero value checks control bytes (line terminators included) and
// UTF-8 validity; shell metacharacters are not flagged.
type Policy struct {
	// AllowNewlines permits \n and \r inside tokens. Off by default:
	// embedded line terminators are the classic way to smuggle content
	// past line-oriented logs.
	AllowNewlines bool
	// DenyShellMeta additionally flags shell metacharacters. Arguments
	// are never passed through a shell, so this is off by default and
	// exists for callers that forward tokens into shell contexts.
	DenyShellMeta bool
}

const shellMeta = "`$|;&<>"

// Check returns a non-nil error describing the first taint found in token.
func (p Policy) Check(token string) error {
	if !utf8.ValidString(token) {
		return fmt.Errorf("token contains invalid UTF-8")
	}
	for i, r := range token {
		if r == 0 {
			return fmt.Errorf("token contains NUL at offset %d", i)
		}
		if (r == '\n' || r == '\r') && !p.AllowNewlines {
			return fmt.Errorf("token contains line terminator at offset %d", i)
		}
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return fmt.Errorf("token contains control byte 0x%02x at offset %d", r, i)
		}
	}
	if p.DenyShellMeta && strings.ContainsAny(token, shellMeta) {
		return fmt.Errorf("token contains shell metacharacter")
	}
	return nil
}

// CheckArgs applies Check to every token and returns one error per
// tainted token, in argument order.
func (p Policy) CheckArgs(args []string) []error {
	var errs []error
	for i, tok := range args {
		if err := p.Check(tok); err != nil {
			errs = append(errs, fmt.Errorf("argument %d: %w", i, err))
		}
	}
	return errs
}
