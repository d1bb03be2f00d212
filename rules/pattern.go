// Copyright 2020 Fugue, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// DynamicFill is substituted for wildcard values that are only discoverable
// after the producing job has run.
const DynamicFill = "__loom_dynamic__"

// PatternFlags mark special handling for files matched by a Pattern
type PatternFlags struct {
	Temp      bool
	Protected bool
	Dynamic   bool
}

// Pattern is a file path template containing named wildcards, for example
// "out/{sample}.txt". A wildcard may carry a regex constraint using the
// form "{name,[0-9]+}". A Pattern with no wildcards matches literally.
type Pattern struct {
	raw   string
	re    *regexp.Regexp
	names []string
	flags PatternFlags
}

// NewPattern parses a pattern string and associates the given flags with it
func NewPattern(raw string, flags PatternFlags) (*Pattern, error) {
	names, re, err := compilePattern(raw)
	if err != nil {
		return nil, err
	}
	return &Pattern{raw: raw, re: re, names: names, flags: flags}, nil
}

// MustPattern parses a pattern and panics on error. Intended for tests and
// programmatically built rules with known-good patterns.
func MustPattern(raw string, flags PatternFlags) *Pattern {
	p, err := NewPattern(raw, flags)
	if err != nil {
		panic(err)
	}
	return p
}

func compilePattern(raw string) ([]string, *regexp.Regexp, error) {
	var names []string
	var expr strings.Builder
	expr.WriteString("^")
	rest := raw
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			expr.WriteString(regexp.QuoteMeta(rest))
			break
		}
		expr.WriteString(regexp.QuoteMeta(rest[:open]))
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return nil, nil, fmt.Errorf("unclosed wildcard in pattern %q", raw)
		}
		inner := rest[open+1 : open+closing]
		name := inner
		constraint := ".+?"
		if comma := strings.IndexByte(inner, ','); comma >= 0 {
			name = inner[:comma]
			constraint = inner[comma+1:]
		}
		if name == "" {
			return nil, nil, fmt.Errorf("empty wildcard name in pattern %q", raw)
		}
		names = append(names, name)
		expr.WriteString(fmt.Sprintf("(?P<%s>%s)", name, constraint))
		rest = rest[open+closing+1:]
	}
	expr.WriteString("$")
	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid pattern %q: %s", raw, err)
	}
	return names, re, nil
}

// String returns the original pattern text
func (p *Pattern) String() string {
	return p.raw
}

// Flags returns the flags associated with this Pattern
func (p *Pattern) Flags() PatternFlags {
	return p.flags
}

// Names returns the wildcard names in order of appearance
func (p *Pattern) Names() []string {
	return p.names
}

// WildcardCount returns the number of wildcards in the pattern. Patterns
// with fewer wildcards are considered more specific.
func (p *Pattern) WildcardCount() int {
	return len(p.names)
}

// IsLiteral returns true if the pattern contains no wildcards
func (p *Pattern) IsLiteral() bool {
	return len(p.names) == 0
}

// Match tests a concrete path against the pattern. On a match it returns
// the wildcard values bound by the path.
func (p *Pattern) Match(path string) (Wildcards, bool) {
	if p.IsLiteral() {
		if path == p.raw {
			return Wildcards{}, true
		}
		return nil, false
	}
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	wc := Wildcards{}
	for i, name := range p.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		wc[name] = m[i]
	}
	return wc, true
}

// Fill substitutes wildcard values into the pattern. Wildcards missing from
// the binding are filled with the fallback value.
func (p *Pattern) Fill(wc Wildcards, fallback string) string {
	if p.IsLiteral() {
		return p.raw
	}
	var out strings.Builder
	rest := p.raw
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:open])
		closing := strings.IndexByte(rest[open:], '}')
		inner := rest[open+1 : open+closing]
		name := inner
		if comma := strings.IndexByte(inner, ','); comma >= 0 {
			name = inner[:comma]
		}
		if value, ok := wc[name]; ok {
			out.WriteString(value)
		} else {
			out.WriteString(fallback)
		}
		rest = rest[open+closing+1:]
	}
	return out.String()
}

// Expand produces concrete patterns by substituting the given wildcard
// value tuples. The lists in values are aligned: index i across all names
// forms one tuple. Wildcards not present in values remain in the result.
func (p *Pattern) Expand(values map[string][]string) ([]*Pattern, error) {
	n := 0
	for _, name := range p.names {
		if vs, ok := values[name]; ok && len(vs) > n {
			n = len(vs)
		}
	}
	if n == 0 {
		return []*Pattern{p}, nil
	}
	seen := map[string]bool{}
	var result []*Pattern
	for i := 0; i < n; i++ {
		wc := Wildcards{}
		for name, vs := range values {
			if i < len(vs) {
				wc[name] = vs[i]
			}
		}
		raw := p.fillKeep(wc)
		if seen[raw] {
			continue
		}
		seen[raw] = true
		flags := p.flags
		flags.Dynamic = false
		expanded, err := NewPattern(raw, flags)
		if err != nil {
			return nil, err
		}
		result = append(result, expanded)
	}
	return result, nil
}

// fillKeep substitutes the given wildcard values and leaves wildcards
// missing from the binding in place
func (p *Pattern) fillKeep(wc Wildcards) string {
	if p.IsLiteral() {
		return p.raw
	}
	var out strings.Builder
	rest := p.raw
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:open])
		closing := strings.IndexByte(rest[open:], '}')
		inner := rest[open+1 : open+closing]
		name := inner
		if comma := strings.IndexByte(inner, ','); comma >= 0 {
			name = inner[:comma]
		}
		if value, ok := wc[name]; ok {
			out.WriteString(value)
		} else {
			out.WriteString(rest[open : open+closing+1])
		}
		rest = rest[open+closing+1:]
	}
	return out.String()
}

// staticPrefix returns the part of the pattern before its first wildcard
func (p *Pattern) staticPrefix() string {
	if open := strings.IndexByte(p.raw, '{'); open >= 0 {
		return p.raw[:open]
	}
	return p.raw
}
