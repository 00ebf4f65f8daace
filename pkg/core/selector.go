// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Selector is the subset of JMS message selectors the bridge evaluates
// itself: comparisons of a header or property against a literal, with = or
// <>, joined by AND.
type Selector struct {
	raw   string
	terms []selectorTerm
}

type selectorTerm struct {
	ident  string
	negate bool
	value  any
}

func CorrelationSelector(id string) string {
	return "JMSCorrelationID = '" + strings.ReplaceAll(id, "'", "''") + "'"
}

func ParseSelector(s string) (*Selector, error) {
	sel := &Selector{raw: s}
	if strings.TrimSpace(s) == "" {
		return sel, nil
	}
	toks, err := tokenizeSelector(s)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(toks); {
		if len(toks)-i < 3 {
			return nil, fmt.Errorf("selector %q: incomplete comparison: %w", s, ErrUnsupported)
		}
		ident, op, lit := toks[i], toks[i+1], toks[i+2]
		if ident.kind != tokIdent || op.kind != tokOp || lit.kind != tokLiteral {
			return nil, fmt.Errorf("selector %q: expected <identifier> <op> <literal>: %w", s, ErrUnsupported)
		}
		sel.terms = append(sel.terms, selectorTerm{ident: ident.text, negate: op.text == "<>", value: lit.value})
		i += 3
		if i == len(toks) {
			break
		}
		if toks[i].kind != tokIdent || !strings.EqualFold(toks[i].text, "AND") {
			return nil, fmt.Errorf("selector %q: only AND is supported: %w", s, ErrUnsupported)
		}
		i++
		if i == len(toks) {
			return nil, fmt.Errorf("selector %q: trailing AND: %w", s, ErrUnsupported)
		}
	}
	return sel, nil
}

func (s *Selector) String() string { return s.raw }

func (s *Selector) Empty() bool { return s == nil || len(s.terms) == 0 }

func (s *Selector) Matches(m *Message) bool {
	if s.Empty() {
		return true
	}
	for _, t := range s.terms {
		v, ok := headerValue(m, t.ident)
		eq := ok && valuesEqual(v, t.value)
		if eq == t.negate {
			return false
		}
	}
	return true
}

func headerValue(m *Message, ident string) (any, bool) {
	switch ident {
	case "JMSCorrelationID":
		return m.CorrelationID, m.CorrelationID != ""
	case "JMSMessageID":
		return m.MessageID, m.MessageID != ""
	case "JMSType":
		return m.Type, m.Type != ""
	case "JMSPriority":
		return int64(m.Priority), true
	case "JMSDeliveryMode":
		if m.DeliveryMode == NonPersistent {
			return "NON_PERSISTENT", true
		}
		return "PERSISTENT", true
	}
	v, ok := m.Properties[ident]
	return v, ok && v != nil
}

func valuesEqual(a, b any) bool {
	switch bv := b.(type) {
	case string:
		return FormatValue(a) == bv
	case bool:
		ab, ok := a.(bool)
		return ok && ab == bv
	case float64:
		af, err := strconv.ParseFloat(FormatValue(a), 64)
		return err == nil && af == bv
	}
	return false
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokOp
	tokLiteral
)

type token struct {
	kind  tokenKind
	text  string
	value any
}

func tokenizeSelector(s string) ([]token, error) {
	var toks []token
	r := []rune(s)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '=':
			toks = append(toks, token{kind: tokOp, text: "="})
			i++
		case c == '<' && i+1 < len(r) && r[i+1] == '>':
			toks = append(toks, token{kind: tokOp, text: "<>"})
			i += 2
		case c == '\'':
			var b strings.Builder
			i++
			closed := false
			for i < len(r) {
				if r[i] == '\'' {
					if i+1 < len(r) && r[i+1] == '\'' {
						b.WriteRune('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteRune(r[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("selector %q: unterminated string literal", s)
			}
			toks = append(toks, token{kind: tokLiteral, text: b.String(), value: b.String()})
		case c == '-' || c == '.' || unicode.IsDigit(c):
			j := i + 1
			for j < len(r) && (unicode.IsDigit(r[j]) || r[j] == '.' || r[j] == 'e' || r[j] == 'E') {
				j++
			}
			f, err := strconv.ParseFloat(string(r[i:j]), 64)
			if err != nil {
				return nil, fmt.Errorf("selector %q: bad number %q", s, string(r[i:j]))
			}
			toks = append(toks, token{kind: tokLiteral, text: string(r[i:j]), value: f})
			i = j
		case unicode.IsLetter(c) || c == '_' || c == '$':
			j := i + 1
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_' || r[j] == '$' || r[j] == '.') {
				j++
			}
			word := string(r[i:j])
			switch strings.ToUpper(word) {
			case "TRUE":
				toks = append(toks, token{kind: tokLiteral, text: word, value: true})
			case "FALSE":
				toks = append(toks, token{kind: tokLiteral, text: word, value: false})
			default:
				toks = append(toks, token{kind: tokIdent, text: word})
			}
			i = j
		default:
			return nil, fmt.Errorf("selector %q: unexpected %q: %w", s, string(c), ErrUnsupported)
		}
	}
	return toks, nil
}
