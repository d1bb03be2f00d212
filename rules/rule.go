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
	"sync/atomic"
)

var ruleIDCounter int64

// Rule is a templated recipe producing output files from input files.
// Output patterns are parameterised by wildcards that are bound when a
// requested file is matched against them.
type Rule struct {
	id       int64
	name     string
	order    int
	lineno   int
	source   string
	priority int
	command  string
	input    []*Pattern
	output   []*Pattern
}

// RuleOpts configures a new Rule
type RuleOpts struct {
	Name     string
	Order    int
	Lineno   int
	Source   string
	Priority int
	Command  string
	Input    []*Pattern
	Output   []*Pattern
}

// NewRule constructs a Rule
func NewRule(opts RuleOpts) *Rule {
	return &Rule{
		id:       atomic.AddInt64(&ruleIDCounter, 1),
		name:     opts.Name,
		order:    opts.Order,
		lineno:   opts.Lineno,
		source:   opts.Source,
		priority: opts.Priority,
		command:  opts.Command,
		input:    opts.Input,
		output:   opts.Output,
	}
}

// ID returns a process-unique identifier for this Rule instance. Rules
// derived via DynamicBranch receive fresh identifiers.
func (r *Rule) ID() int64 {
	return r.id
}

// Name returns the rule name
func (r *Rule) Name() string {
	return r.name
}

// Order returns the definition order of the rule, used to break ties when
// selecting among ambiguous producers
func (r *Rule) Order() int {
	return r.order
}

// Lineno returns the line of the rule definition, when known
func (r *Rule) Lineno() int {
	return r.lineno
}

// Source returns the file the rule was defined in, when known
func (r *Rule) Source() string {
	return r.source
}

// Location formats the source location of the rule for diagnostics
func (r *Rule) Location() string {
	if r.source == "" {
		return ""
	}
	if r.lineno > 0 {
		return fmt.Sprintf("%s:%d", r.source, r.lineno)
	}
	return r.source
}

// Priority returns the priority class of the rule
func (r *Rule) Priority() int {
	return r.priority
}

// Command returns the shell command template executed for this rule
func (r *Rule) Command() string {
	return r.command
}

// Input returns the input patterns in declaration order
func (r *Rule) Input() []*Pattern {
	return r.input
}

// Output returns the output patterns in declaration order
func (r *Rule) Output() []*Pattern {
	return r.output
}

// HasOutput returns true if the rule declares any outputs
func (r *Rule) HasOutput() bool {
	return len(r.output) > 0
}

// HasDynamicOutput returns true if any output pattern is dynamic
func (r *Rule) HasDynamicOutput() bool {
	for _, p := range r.output {
		if p.flags.Dynamic {
			return true
		}
	}
	return false
}

// HasDynamicInput returns true if any input pattern is dynamic
func (r *Rule) HasDynamicInput() bool {
	for _, p := range r.input {
		if p.flags.Dynamic {
			return true
		}
	}
	return false
}

// IsProducer reports whether a concrete filename matches one of the rule's
// output patterns
func (r *Rule) IsProducer(path string) bool {
	for _, p := range r.output {
		if _, ok := p.Match(path); ok {
			return true
		}
	}
	return false
}

// MatchOutput matches a target file against the output patterns, returning
// the bound wildcards and the matched pattern
func (r *Rule) MatchOutput(path string) (Wildcards, *Pattern, bool) {
	for _, p := range r.output {
		if wc, ok := p.Match(path); ok {
			return wc, p, true
		}
	}
	return nil, nil, false
}

// DynamicBranch derives a concrete Rule by expanding the rule's dynamic
// patterns with the discovered wildcard values. With input set, the dynamic
// input patterns are expanded and the returned residual binding is nil; the
// result is nil if the rule has no dynamic input. Otherwise the dynamic
// output patterns are expanded and the residual binding carries the
// wildcard values that are unique across the discovery, for formatting the
// remaining non-dynamic patterns.
func (r *Rule) DynamicBranch(values map[string][]string, input bool) (*Rule, Wildcards, error) {
	if input {
		if !r.HasDynamicInput() {
			return nil, nil, nil
		}
		branched, err := r.branch(r.input, values)
		if err != nil {
			return nil, nil, err
		}
		clone := r.clone()
		clone.input = branched
		return clone, nil, nil
	}
	if !r.HasDynamicOutput() {
		return nil, nil, nil
	}
	branched, err := r.branch(r.output, values)
	if err != nil {
		return nil, nil, err
	}
	clone := r.clone()
	clone.output = branched
	residual := Wildcards{}
	for name, vs := range values {
		if unique(vs) {
			residual[name] = vs[0]
		}
	}
	return clone, residual, nil
}

func (r *Rule) branch(patterns []*Pattern, values map[string][]string) ([]*Pattern, error) {
	var result []*Pattern
	for _, p := range patterns {
		if !p.flags.Dynamic {
			result = append(result, p)
			continue
		}
		expanded, err := p.Expand(values)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %s", r.name, err)
		}
		result = append(result, expanded...)
	}
	return result, nil
}

func (r *Rule) clone() *Rule {
	clone := *r
	clone.id = atomic.AddInt64(&ruleIDCounter, 1)
	return &clone
}

func unique(values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// NodeID makes Rules adhere to the graph.Node interface
func (r *Rule) NodeID() string {
	return r.name
}
