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
package dag

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/loomworks/loom/rules"
)

// MissingRuleError indicates that no rule produces the requested file
type MissingRuleError struct {
	TargetFile string
}

func (e *MissingRuleError) Error() string {
	return fmt.Sprintf("no rule to produce %s", e.TargetFile)
}

// MissingInputError indicates that a job's inputs can neither be produced
// by a rule nor found on disk. Causes discovered while trying alternate
// producers of the inputs are carried along.
type MissingInputError struct {
	Rule   *rules.Rule
	Files  []string
	Causes *multierror.Error
}

func (e *MissingInputError) Error() string {
	msg := fmt.Sprintf("missing input files for rule %s", ruleRef(e.Rule))
	if len(e.Files) > 0 {
		msg += ": " + strings.Join(e.Files, ", ")
	}
	if e.Causes != nil && len(e.Causes.Errors) > 0 {
		msg += "\n" + e.Causes.Error()
	}
	return msg
}

// AmbiguousRuleError indicates that two producers tie under the job
// ordering for the same file
type AmbiguousRuleError struct {
	File string
	R1   *rules.Rule
	R2   *rules.Rule
}

func (e *AmbiguousRuleError) Error() string {
	return fmt.Sprintf(
		"rules %s and %s are ambiguous for file %s; "+
			"set rule priorities or enable ambiguity resolution",
		ruleRef(e.R1), ruleRef(e.R2), e.File)
}

// CyclicGraphError indicates that expanding a producer revisited a job
// already on the current resolution path
type CyclicGraphError struct {
	Rule *rules.Rule
	File string
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("cyclic dependency on rule %s for file %s",
		ruleRef(e.Rule), e.File)
}

// MissingOutputError indicates that a declared output was not on disk
// after its job finished
type MissingOutputError struct {
	File string
	Rule *rules.Rule
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("output file %s not produced by rule %s",
		e.File, ruleRef(e.Rule))
}

// RecursionError indicates that resolution recursed beyond the depth
// limit, which usually points at infinitely filled wildcards
type RecursionError struct {
	File string
	Rule *rules.Rule
}

func (e *RecursionError) Error() string {
	return fmt.Sprintf(
		"maximum recursion depth exceeded resolving %s via rule %s; "+
			"maybe a cyclic dependency due to infinitely filled wildcards?",
		e.File, ruleRef(e.Rule))
}

// resolvable reports whether an error may be recovered from by trying an
// alternate producer during resolution
func resolvable(err error) bool {
	switch err.(type) {
	case *MissingInputError, *CyclicGraphError:
		return true
	}
	return false
}

func ruleRef(r *rules.Rule) string {
	if r == nil {
		return "<unknown>"
	}
	if loc := r.Location(); loc != "" {
		return fmt.Sprintf("%s (%s)", r.Name(), loc)
	}
	return r.Name()
}
