// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// =============================================================================
// Literal parser
// =============================================================================

// ParseLiteral parses the data literal written by `phc -x`.
//
// # Description
//
// Recognizes a closed grammar and never evaluates anything:
//
//	value  := list | tuple | dict | string | number
//	list   := '[' [value {',' value} [',']] ']'
//	tuple  := '(' [value {',' value} [',']] ')'
//	dict   := '{' [string ':' value {',' string ':' value} [',']] '}'
//	number := term {('+'|'-') term}
//	term   := factor {'*' factor}
//	factor := ('+'|'-') factor | real | real 'j' | '(' number ')'
//	        | 'complex' '(' number ',' number ')'
//
// so `1.5E-01 + 2.0E-17*1j`, `3j`, `(1-2j)` and `complex(1.0, -2.0)` are all
// complex numbers.
//
// # Outputs
//
//   - any: []any for lists and tuples, map[string]any for dicts, string,
//     or complex128 for every number
//   - error: Position and reason of the first syntax error
func ParseLiteral(text string) (any, error) {
	p := &literalParser{src: text}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

// maxDepth bounds nesting so hostile input cannot exhaust the stack.
const maxDepth = 64

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *literalParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *literalParser) value() (any, error) {
	return p.valueAt(0)
}

func (p *literalParser) valueAt(depth int) (any, error) {
	if depth > maxDepth {
		return nil, p.errorf("nesting deeper than %d", maxDepth)
	}
	switch c := p.peek(); c {
	case '[':
		p.pos++
		return p.sequence(']', depth)
	case '{':
		p.pos++
		return p.dict(depth)
	case '\'', '"':
		return p.str()
	case '(':
		// A parenthesized number or a tuple; try the number first.
		start := p.pos
		if n, err := p.number(depth); err == nil {
			if next := p.peek(); next == ',' || next == ']' || next == '}' || next == ')' || next == 0 {
				return n, nil
			}
		}
		p.pos = start + 1
		return p.sequence(')', depth)
	case 0:
		return nil, p.errorf("unexpected end of input")
	default:
		return p.number(depth)
	}
}

func (p *literalParser) sequence(closer byte, depth int) (any, error) {
	out := []any{}
	for {
		if p.peek() == closer {
			p.pos++
			return out, nil
		}
		v, err := p.valueAt(depth + 1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		switch p.peek() {
		case ',':
			p.pos++
		case closer:
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or %q", closer)
		}
	}
}

func (p *literalParser) dict(depth int) (any, error) {
	out := map[string]any{}
	for {
		c := p.peek()
		if c == '}' {
			p.pos++
			return out, nil
		}
		if c != '\'' && c != '"' {
			return nil, p.errorf("dictionary keys must be strings")
		}
		k, err := p.str()
		if err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		v, err := p.valueAt(depth + 1)
		if err != nil {
			return nil, err
		}
		out[k] = v
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *literalParser) str() (string, error) {
	quote := p.peek()
	start := p.pos
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\' && p.pos+1 < len(p.src):
			b.WriteByte(p.src[p.pos+1])
			p.pos += 2
		case c == '\n':
			return "", p.errorf("newline in string")
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	p.pos = start
	return "", p.errorf("unterminated string")
}

// number := term {('+'|'-') term}
func (p *literalParser) number(depth int) (complex128, error) {
	v, err := p.term(depth)
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			t, err := p.term(depth)
			if err != nil {
				return 0, err
			}
			v += t
		case '-':
			p.pos++
			t, err := p.term(depth)
			if err != nil {
				return 0, err
			}
			v -= t
		default:
			return v, nil
		}
	}
}

// term := factor {'*' factor}
func (p *literalParser) term(depth int) (complex128, error) {
	v, err := p.factor(depth)
	if err != nil {
		return 0, err
	}
	for p.peek() == '*' {
		p.pos++
		f, err := p.factor(depth)
		if err != nil {
			return 0, err
		}
		v *= f
	}
	return v, nil
}

func (p *literalParser) factor(depth int) (complex128, error) {
	if depth > maxDepth {
		return 0, p.errorf("nesting deeper than %d", maxDepth)
	}
	switch c := p.peek(); {
	case c == '+':
		p.pos++
		return p.factor(depth + 1)
	case c == '-':
		p.pos++
		f, err := p.factor(depth + 1)
		return -f, err
	case c == '(':
		p.pos++
		v, err := p.number(depth + 1)
		if err != nil {
			return 0, err
		}
		return v, p.expect(')')
	case c == '.' || (c >= '0' && c <= '9'):
		return p.real()
	case strings.HasPrefix(p.src[p.pos:], "complex"):
		p.pos += len("complex")
		if err := p.expect('('); err != nil {
			return 0, err
		}
		re, err := p.number(depth + 1)
		if err != nil {
			return 0, err
		}
		if err := p.expect(','); err != nil {
			return 0, err
		}
		im, err := p.number(depth + 1)
		if err != nil {
			return 0, err
		}
		if err := p.expect(')'); err != nil {
			return 0, err
		}
		return re + im*1i, nil
	default:
		return 0, p.errorf("unexpected %q", c)
	}
}

// real scans an unsigned decimal literal with an optional exponent and an
// optional imaginary suffix.
func (p *literalParser) real() (complex128, error) {
	start := p.pos
	digits := func() {
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
	}
	digits()
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		digits()
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.src) && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
			p.pos++
		}
		digits()
	}
	text := p.src[start:p.pos]
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.pos = start
		return 0, p.errorf("bad number %q", text)
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'j' || p.src[p.pos] == 'J') {
		p.pos++
		return complex(0, f), nil
	}
	return complex(f, 0), nil
}
