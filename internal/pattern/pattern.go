// Package pattern parses the field-pattern mini-language used by webhook
// configurations and walks a decoded JSON value to pull out the fields it
// names.
//
// Grammar:
//
//	patternlist := pattern ("," pattern)*
//	pattern     := IDENT ( "{" patternlist "}" )*
//
// An identifier is any run of characters other than '{', '}', ',' and
// whitespace. Multiple brace groups following the same root are a
// conjunction of descents: their children are merged under the same root.
package pattern

import (
	"errors"
	"fmt"
)

// ErrBadPattern is returned (wrapped) when a field-pattern expression does
// not match the grammar above.
var ErrBadPattern = errors.New("bad field pattern")

// Node is a single parsed step of a field-pattern expression. A Node with no
// Children is a leaf: its value, once reached, is recorded.
type Node struct {
	Name     string
	Children []*Node
}

// Parse parses a comma-separated field-pattern expression into its forest of
// root nodes. It never partially succeeds: any grammar violation returns
// ErrBadPattern.
func Parse(expr string) ([]*Node, error) {
	p := &parser{src: expr}
	nodes, err := p.patternList()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrBadPattern, p.src[p.pos:], p.pos)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrBadPattern)
	}
	return nodes, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func (p *parser) patternList() ([]*Node, error) {
	var nodes []*Node
	for {
		p.skipSpace()
		n, err := p.pattern()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)

		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == ',' {
			p.pos++
			continue
		}
		break
	}
	return nodes, nil
}

func (p *parser) pattern() (*Node, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}

	node := &Node{Name: name}

	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '{' {
			break
		}
		p.pos++ // consume '{'

		children, err := p.patternList()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '}' {
			return nil, fmt.Errorf("%w: unterminated group for %q", ErrBadPattern, name)
		}
		p.pos++ // consume '}'

		node.Children = append(node.Children, children...)
	}

	return node, nil
}

func (p *parser) ident() (string, error) {
	start := p.pos
	for p.pos < len(p.src) && !isDelim(p.src[p.pos]) {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return "", fmt.Errorf("%w: expected identifier at offset %d", ErrBadPattern, start)
	}
	return name, nil
}

func isDelim(b byte) bool {
	switch b {
	case '{', '}', ',':
		return true
	default:
		return isSpace(b)
	}
}
