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

// Package workflow assembles a rule set from its YAML definition and
// builds the dependency DAG for a set of requested targets.
package workflow

import (
	"fmt"
	"strings"

	glob "github.com/bmatcuk/doublestar"
	"github.com/loomworks/loom/dag"
	"github.com/loomworks/loom/definitions"
	"github.com/loomworks/loom/persist"
	"github.com/loomworks/loom/rules"
)

// Workflow holds the compiled rule set of one workflow definition
type Workflow struct {
	def         *definitions.Workflow
	dir         string
	rules       []*rules.Rule
	byName      map[string]*rules.Rule
	persistence *persist.Persistence
}

// Load reads a workflow definition from the given path and compiles it.
// The metadata directory is created below dir.
func Load(path, dir string) (*Workflow, error) {
	def, err := definitions.LoadWorkflowFromPath(path)
	if err != nil {
		return nil, err
	}
	return New(def, dir)
}

// New compiles a workflow definition
func New(def *definitions.Workflow, dir string) (*Workflow, error) {
	w := &Workflow{def: def, dir: dir, byName: map[string]*rules.Rule{}}
	for i, rdef := range def.Rules {
		r, err := compileRule(rdef.ApplyDefaults(def.Defaults), i, def.Path)
		if err != nil {
			return nil, err
		}
		w.rules = append(w.rules, r)
		w.byName[r.Name()] = r
	}
	persistence, err := persist.New(dir)
	if err != nil {
		return nil, err
	}
	w.persistence = persistence
	return w, nil
}

func compileRule(def definitions.Rule, order int, source string) (*rules.Rule, error) {
	dynamic := map[string]bool{}
	for _, raw := range def.Dynamic {
		dynamic[raw] = true
	}
	temp := map[string]bool{}
	for _, raw := range def.Temp {
		temp[raw] = true
	}
	protected := map[string]bool{}
	for _, raw := range def.Protected {
		protected[raw] = true
	}

	var input []*rules.Pattern
	for _, raw := range def.Input {
		p, err := rules.NewPattern(raw, rules.PatternFlags{Dynamic: dynamic[raw]})
		if err != nil {
			return nil, fmt.Errorf("rule %s: %s", def.Name, err)
		}
		input = append(input, p)
	}
	var output []*rules.Pattern
	for _, raw := range def.Output {
		p, err := rules.NewPattern(raw, rules.PatternFlags{
			Temp:      temp[raw],
			Protected: protected[raw],
			Dynamic:   dynamic[raw],
		})
		if err != nil {
			return nil, fmt.Errorf("rule %s: %s", def.Name, err)
		}
		output = append(output, p)
	}
	return rules.NewRule(rules.RuleOpts{
		Name:     def.Name,
		Order:    order,
		Source:   source,
		Priority: def.Priority,
		Command:  def.Command,
		Input:    input,
		Output:   output,
	}), nil
}

// Rules returns the compiled rules in definition order
func (w *Workflow) Rules() []*rules.Rule {
	return w.rules
}

// Rule returns the rule with the given name
func (w *Workflow) Rule(name string) (*rules.Rule, bool) {
	r, ok := w.byName[name]
	return r, ok
}

// Persistence returns the incomplete-job tracker for this workflow
func (w *Workflow) Persistence() *persist.Persistence {
	return w.persistence
}

// SelectTargets splits the requested targets into target rules (arguments
// naming a rule) and target files. File arguments may use glob patterns,
// which are expanded against the files present on disk.
func (w *Workflow) SelectTargets(args []string) ([]string, []*rules.Rule, error) {
	var files []string
	var targetRules []*rules.Rule
	for _, arg := range args {
		if r, ok := w.byName[arg]; ok {
			targetRules = append(targetRules, r)
			continue
		}
		if strings.ContainsAny(arg, "*?[") {
			matches, err := glob.Glob(arg)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid target glob %s", arg)
			}
			if len(matches) == 0 {
				return nil, nil, fmt.Errorf("no files match target glob %s", arg)
			}
			files = append(files, matches...)
			continue
		}
		files = append(files, arg)
	}
	return files, targetRules, nil
}

// BuildOpts configure DAG construction for a set of targets
type BuildOpts struct {
	Targets         []string
	ForceAll        bool
	ForceTargets    bool
	ForceRules      []string
	ForceFiles      []string
	PriorityRules   []string
	PriorityFiles   []string
	IgnoreAmbiguity bool
}

// BuildDAG resolves the requested targets into an initialised DAG
func (w *Workflow) BuildDAG(opts BuildOpts) (*dag.DAG, error) {
	targetFiles, targetRules, err := w.SelectTargets(opts.Targets)
	if err != nil {
		return nil, err
	}
	forceRules, err := w.rulesByName(opts.ForceRules)
	if err != nil {
		return nil, err
	}
	priorityRules, err := w.rulesByName(opts.PriorityRules)
	if err != nil {
		return nil, err
	}
	d := dag.New(dag.Options{
		Rules:           w.rules,
		TargetFiles:     targetFiles,
		TargetRules:     targetRules,
		ForceAll:        opts.ForceAll,
		ForceTargets:    opts.ForceTargets,
		ForceRules:      forceRules,
		ForceFiles:      opts.ForceFiles,
		PriorityRules:   priorityRules,
		PriorityFiles:   opts.PriorityFiles,
		IgnoreAmbiguity: opts.IgnoreAmbiguity,
		Persistence:     w.persistence,
	})
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (w *Workflow) rulesByName(names []string) ([]*rules.Rule, error) {
	var result []*rules.Rule
	for _, name := range names {
		r, ok := w.byName[name]
		if !ok {
			return nil, fmt.Errorf("no rule named %s", name)
		}
		result = append(result, r)
	}
	return result, nil
}
