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

// Package contenttype decides the content type of an inbound message.
package contenttype

import (
	"fmt"
	"sort"
	"strings"

	"github.com/elnormous/contenttype"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

const (
	OctetStream = "application/octet-stream"
	TextPlain   = "text/plain"
)

type Info struct {
	ContentType string
	// Property is set when the type was read from a message property.
	Property string
}

type Rule interface {
	Match(msg *core.Message) (Info, bool)
}

type PropertyRule struct {
	Property string
}

func (r PropertyRule) Match(msg *core.Message) (Info, bool) {
	v, ok := msg.StringProperty(r.Property)
	if !ok {
		return Info{}, false
	}
	ct, err := Normalize(v)
	if err != nil {
		return Info{}, false
	}
	return Info{ContentType: ct, Property: r.Property}, true
}

type MessageTypeRule struct {
	Kind        core.BodyKind
	ContentType string
}

func (r MessageTypeRule) Match(msg *core.Message) (Info, bool) {
	if msg.Kind != r.Kind {
		return Info{}, false
	}
	return Info{ContentType: r.ContentType}, true
}

type DefaultRule struct {
	ContentType string
}

func (r DefaultRule) Match(*core.Message) (Info, bool) {
	return Info{ContentType: r.ContentType}, true
}

// RuleSet tries its rules in order; the first match wins.
type RuleSet struct {
	rules []Rule
}

func NewRuleSet(rules ...Rule) *RuleSet {
	return &RuleSet{rules: rules}
}

// DefaultRuleSet reads the Content-Type property, then falls back to
// octet-stream for bytes and text/plain for text messages. Map messages
// without the property are left unresolved.
func DefaultRuleSet() *RuleSet {
	return NewRuleSet(
		PropertyRule{Property: "Content-Type"},
		MessageTypeRule{Kind: core.BodyBytes, ContentType: OctetStream},
		MessageTypeRule{Kind: core.BodyText, ContentType: TextPlain},
	)
}

func (rs *RuleSet) Resolve(msg *core.Message) (Info, error) {
	for _, r := range rs.rules {
		if info, ok := r.Match(msg); ok {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("no rule matched %s message: %w", msg.Kind, core.ErrContentTypeUnresolved)
}

// Property is the name of the first property rule, if any.
func (rs *RuleSet) Property() string {
	for _, r := range rs.rules {
		if p, ok := r.(PropertyRule); ok {
			return p.Property
		}
	}
	return ""
}

// Config is the descriptor form of a rule set.
type Config struct {
	Property string `yaml:"property"`
	Text     string `yaml:"text"`
	Bytes    string `yaml:"bytes"`
	Map      string `yaml:"map"`
	Default  string `yaml:"default"`
}

func (c Config) IsZero() bool {
	return c == Config{}
}

// RuleSet builds the rules in the order property, message type, default.
// Unset message-type entries keep the defaults for bytes and text.
func (c Config) RuleSet() (*RuleSet, error) {
	if c.IsZero() {
		return DefaultRuleSet(), nil
	}
	prop := c.Property
	if prop == "" {
		prop = "Content-Type"
	}
	rules := []Rule{PropertyRule{Property: prop}}
	for _, mt := range []struct {
		kind core.BodyKind
		val  string
		def  string
	}{
		{core.BodyBytes, c.Bytes, OctetStream},
		{core.BodyText, c.Text, TextPlain},
		{core.BodyMap, c.Map, ""},
	} {
		v := mt.val
		if v == "" {
			v = mt.def
		}
		if v == "" {
			continue
		}
		ct, err := Normalize(v)
		if err != nil {
			return nil, err
		}
		rules = append(rules, MessageTypeRule{Kind: mt.kind, ContentType: ct})
	}
	if c.Default != "" {
		ct, err := Normalize(c.Default)
		if err != nil {
			return nil, err
		}
		rules = append(rules, DefaultRule{ContentType: ct})
	}
	return NewRuleSet(rules...), nil
}

// Normalize validates a media type and renders the type, subtype and
// parameter names lower case with parameters sorted by name. Parameter
// values keep their original spelling; boundary and charset values are
// passed on as sent.
func Normalize(s string) (string, error) {
	mt := contenttype.NewMediaType(s)
	if mt.Type == "" || mt.Subtype == "" {
		return "", fmt.Errorf("invalid media type %q", s)
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(mt.Type))
	b.WriteByte('/')
	b.WriteString(strings.ToLower(mt.Subtype))
	params := rawParameters(s)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("; ")
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String(), nil
}

// rawParameters splits the parameters of a media type without touching
// the case of their values. Quoted values keep their quotes.
func rawParameters(s string) map[string]string {
	params := make(map[string]string)
	var parts []string
	quoted := false
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case '\\':
			if quoted {
				i++
			}
		case ';':
			if !quoted {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		params[k] = v
	}
	return params
}

// Matches reports whether ct has the same type and subtype as want,
// ignoring parameters.
func Matches(ct, want string) bool {
	return contenttype.NewMediaType(ct).Matches(contenttype.NewMediaType(want))
}
