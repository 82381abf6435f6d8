// Package render implements the webhook message template mini-language: a
// single-pass, non-recursive substitution of "$dotted.path$" and
// "$dotted.path[i]$" references against an extracted field value map.
//
// Substitution is intentionally not a general templating engine (no
// conditionals, no loops, no function calls) and never re-scans its own
// output, which keeps it O(n) and immune to template-injection escalation
// even when a webhook payload itself contains literal "$" characters.
package render

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rakunlabs/webhookgw/internal/pattern"
)

// ErrBadTemplate is returned when a template contains an odd number of "$"
// delimiters.
var ErrBadTemplate = errors.New("bad template")

// reference matches the inside of a "$...$" pair that is a variable
// reference: IDENT(\.IDENT)*(\[INT\])?
var reference = regexp.MustCompile(`^[^.\[\]$,{}\s]+(\.[^.\[\]$,{}\s]+)*(\[[0-9]+\])?$`)

// Render substitutes every "$...$" variable reference in tpl using values.
// Anything between two "$" delimiters that is not a valid reference is
// emitted verbatim, delimiters included. Unknown variables render as the
// empty string; out-of-range indices render as the empty string.
func Render(tpl string, values pattern.ValueMap) (string, error) {
	if strings.Count(tpl, "$")%2 != 0 {
		return "", fmt.Errorf("%w: odd number of '$' delimiters", ErrBadTemplate)
	}

	var out strings.Builder
	rest := tpl
	for {
		open := strings.IndexByte(rest, '$')
		if open == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:open])
		rest = rest[open+1:]

		closeIdx := strings.IndexByte(rest, '$')
		if closeIdx == -1 {
			// Unreachable given the even-count check above, but keep the
			// renderer total rather than panicking on a logic slip.
			out.WriteByte('$')
			out.WriteString(rest)
			break
		}

		candidate := rest[:closeIdx]
		rest = rest[closeIdx+1:]

		if reference.MatchString(candidate) {
			out.WriteString(substitute(candidate, values))
		} else {
			out.WriteByte('$')
			out.WriteString(candidate)
			out.WriteByte('$')
		}
	}

	return out.String(), nil
}

// substitute resolves a single already-validated variable reference
// ("a.b.c" or "a.b.c[2]") against values.
func substitute(ref string, values pattern.ValueMap) string {
	path := ref
	index := -1

	if open := strings.IndexByte(ref, '['); open != -1 {
		path = ref[:open]
		close := strings.IndexByte(ref, ']')
		if close > open {
			if n, err := strconv.Atoi(ref[open+1 : close]); err == nil {
				index = n
			}
		}
	}

	v, ok := values[path]
	if !ok {
		return ""
	}

	if index >= 0 {
		item, inRange := v.At(index)
		if !inRange {
			return ""
		}
		return pattern.Value{item}.Join()
	}

	return v.Join()
}
