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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
)

// HighestPriority is assigned to jobs upstream of prioritised targets
const HighestPriority = int(^uint(0) >> 1)

// Job is a Rule plus a concrete wildcard binding. Two jobs constructed from
// the same rule and binding are interchangeable; the DAG interns them so
// that equal jobs share identity.
type Job struct {
	rule        *Rule
	targetFile  string
	wildcards   Wildcards
	specificity int
	priority    int

	input        []*File
	output       []*File
	dynamicInput *FileSet
	tempOutput   *FileSet
	protectedOut *FileSet
}

// NewJob constructs a Job for a rule. When a target file is given, the
// wildcards are bound by matching it against the rule's output patterns.
func NewJob(rule *Rule, targetFile string) *Job {
	wc := Wildcards{}
	specificity := 0
	if targetFile != "" {
		if bound, pattern, ok := rule.MatchOutput(targetFile); ok {
			wc = bound
			specificity = pattern.WildcardCount()
		}
	}
	return newJob(rule, targetFile, wc, specificity)
}

// NewJobWithWildcards constructs a Job from an explicit wildcard binding,
// with no file context. Used for target rules and dynamic re-expansion.
func NewJobWithWildcards(rule *Rule, wc Wildcards) *Job {
	if wc == nil {
		wc = Wildcards{}
	}
	return newJob(rule, "", wc, 0)
}

func newJob(rule *Rule, targetFile string, wc Wildcards, specificity int) *Job {
	j := &Job{
		rule:         rule,
		targetFile:   targetFile,
		wildcards:    wc,
		specificity:  specificity,
		priority:     rule.Priority(),
		dynamicInput: NewFileSet(),
		tempOutput:   NewFileSet(),
		protectedOut: NewFileSet(),
	}
	for _, p := range rule.Input() {
		f := NewFile(p.Fill(wc, DynamicFill), p.Flags())
		j.input = append(j.input, f)
		if p.Flags().Dynamic {
			j.dynamicInput.Add(f)
		}
	}
	for _, p := range rule.Output() {
		f := NewFile(p.Fill(wc, DynamicFill), p.Flags())
		j.output = append(j.output, f)
		if p.Flags().Temp {
			j.tempOutput.Add(f)
		}
		if p.Flags().Protected {
			j.protectedOut.Add(f)
		}
	}
	return j
}

// Rule returns the rule this job instantiates
func (j *Job) Rule() *Rule {
	return j.rule
}

// TargetFile returns the file that caused this job to exist, if any
func (j *Job) TargetFile() string {
	return j.targetFile
}

// Wildcards returns the job's wildcard binding
func (j *Job) Wildcards() Wildcards {
	return j.wildcards
}

// Key identifies the job by rule instance and wildcard binding
func (j *Job) Key() string {
	return fmt.Sprintf("%d|%s", j.rule.ID(), j.wildcards.Key())
}

// String renders the job for logs and diagnostics
func (j *Job) String() string {
	if len(j.wildcards) == 0 {
		return j.rule.Name()
	}
	pairs := make([]string, 0, len(j.wildcards))
	for _, pair := range j.wildcards.Pairs() {
		pairs = append(pairs, fmt.Sprintf("%s=%s", pair.Name, pair.Value))
	}
	return fmt.Sprintf("%s %s", j.rule.Name(), strings.Join(pairs, " "))
}

// Input returns the concrete input files in declaration order
func (j *Job) Input() []*File {
	return j.input
}

// HasInputPath reports whether the given path is among the job's inputs
func (j *Job) HasInputPath(path string) bool {
	for _, f := range j.input {
		if f.Path() == path {
			return true
		}
	}
	return false
}

// ExpandedOutput returns the concrete output files in declaration order
func (j *Job) ExpandedOutput() []*File {
	return j.output
}

// Output is an alias for ExpandedOutput
func (j *Job) Output() []*File {
	return j.output
}

// HasOutput returns true if the job produces any files
func (j *Job) HasOutput() bool {
	return len(j.output) > 0
}

// MissingInput returns input files that are not present on disk
func (j *Job) MissingInput() []*File {
	var missing []*File
	for _, f := range j.input {
		if !f.Exists() {
			missing = append(missing, f)
		}
	}
	return missing
}

// MissingOutput returns output files not present on disk. When requested is
// non-nil, only files whose paths appear in it are considered.
func (j *Job) MissingOutput(requested map[string]bool) []*File {
	var missing []*File
	for _, f := range j.output {
		if requested != nil && !requested[f.Path()] {
			continue
		}
		if !f.Exists() {
			missing = append(missing, f)
		}
	}
	return missing
}

// OutputMintime returns the smallest modification time over the outputs
// that exist, or the zero time if none exist
func (j *Job) OutputMintime() time.Time {
	var min time.Time
	for _, f := range j.output {
		mod := f.ModTime()
		if mod.IsZero() {
			continue
		}
		if min.IsZero() || mod.Before(min) {
			min = mod
		}
	}
	return min
}

// TempOutput returns the outputs marked temp
func (j *Job) TempOutput() *FileSet {
	return j.tempOutput
}

// ProtectedOutput returns the outputs marked protected
func (j *Job) ProtectedOutput() *FileSet {
	return j.protectedOut
}

// DynamicOutput returns true if the job's rule declares dynamic outputs
func (j *Job) DynamicOutput() bool {
	return j.rule.HasDynamicOutput()
}

// DynamicInput returns true if the job's rule declares dynamic inputs
func (j *Job) DynamicInput() bool {
	return j.rule.HasDynamicInput()
}

// IsDynamicInput reports whether the given input path stems from a dynamic
// input pattern
func (j *Job) IsDynamicInput(path string) bool {
	return j.dynamicInput.Contains(path)
}

// Priority returns the effective priority of the job
func (j *Job) Priority() int {
	return j.priority
}

// SetPriority overrides the job's priority
func (j *Job) SetPriority(priority int) {
	j.priority = priority
}

// Compare defines the total order used to select among ambiguous producers.
// A positive result means this job is preferred over the other: higher rule
// priority wins, then the more specific output match (fewer wildcards),
// then the rule defined earlier.
func (j *Job) Compare(other *Job) int {
	if j.rule.Priority() != other.rule.Priority() {
		if j.rule.Priority() > other.rule.Priority() {
			return 1
		}
		return -1
	}
	if j.specificity != other.specificity {
		if j.specificity < other.specificity {
			return 1
		}
		return -1
	}
	if j.rule.Order() != other.rule.Order() {
		if j.rule.Order() < other.rule.Order() {
			return 1
		}
		return -1
	}
	return 0
}

// Less returns true if this job is strictly less preferred than the other
func (j *Job) Less(other *Job) bool {
	return j.Compare(other) < 0
}

// DynamicWildcards discovers the wildcard values bound by the job's
// materialised dynamic outputs. The returned lists are aligned per name:
// index i across all names corresponds to one discovered file. Returns an
// empty map when nothing has been materialised yet.
func (j *Job) DynamicWildcards() map[string][]string {
	type tuple struct {
		key    string
		values Wildcards
	}
	var names []string
	seenName := map[string]bool{}
	var tuples []tuple
	seenTuple := map[string]bool{}

	for _, p := range j.rule.Output() {
		if !p.Flags().Dynamic {
			continue
		}
		for _, name := range p.Names() {
			if !seenName[name] {
				seenName[name] = true
				names = append(names, name)
			}
		}
		dir := filepath.Dir(p.staticPrefix() + "x")
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		godirwalk.Walk(dir, &godirwalk.Options{
			Callback: func(path string, de *godirwalk.Dirent) error {
				if de.IsDir() {
					return nil
				}
				wc, ok := p.Match(path)
				if !ok {
					return nil
				}
				for _, value := range wc {
					if strings.Contains(value, DynamicFill) {
						return nil
					}
				}
				key := wc.Key()
				if !seenTuple[key] {
					seenTuple[key] = true
					tuples = append(tuples, tuple{key: key, values: wc})
				}
				return nil
			},
			Unsorted: true,
		})
	}
	if len(tuples) == 0 {
		return nil
	}
	sort.Slice(tuples, func(a, b int) bool {
		return tuples[a].key < tuples[b].key
	})
	result := map[string][]string{}
	for _, t := range tuples {
		for _, name := range names {
			result[name] = append(result[name], t.values[name])
		}
	}
	return result
}
