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

// Package dag resolves which jobs produce a set of requested files, builds
// the dependency graph over those jobs, decides which of them must run, and
// maintains the ready frontier while an executor drives them to completion.
package dag

import (
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/loomworks/loom/rules"
	"github.com/sirupsen/logrus"
)

// Persistence is probed for jobs whose previous execution was interrupted,
// leaving their outputs in an undefined state
type Persistence interface {
	Incomplete(job *rules.Job) bool
}

// Options configure a DAG
type Options struct {
	Rules           []*rules.Rule
	TargetFiles     []string
	TargetRules     []*rules.Rule
	ForceAll        bool
	ForceTargets    bool
	ForceRules      []*rules.Rule
	ForceFiles      []string
	PriorityRules   []*rules.Rule
	PriorityFiles   []string
	IgnoreAmbiguity bool
	Persistence     Persistence
}

// DAG is the dependency graph over jobs. The two edge maps are kept in
// insertion order so that iteration, and therefore scheduling and
// visualisation, is deterministic across runs.
type DAG struct {
	ruleset         []*rules.Rule
	targetFiles     []string
	targetFileSet   map[string]bool
	targetRules     map[*rules.Rule]bool
	targetRuleOrder []*rules.Rule
	ignoreAmbiguity bool
	persistence     Persistence

	deps  map[*rules.Job]*edges
	rdeps map[*rules.Job]*edges

	interned map[string]*rules.Job

	targetJobs  *jobSet
	needrun     map[*rules.Job]bool
	reasons     map[*rules.Job]*Reason
	finished    map[*rules.Job]bool
	dynamicJobs map[*rules.Job]bool
	ready       *jobSet
	omitForce   map[*rules.Job]bool

	forceRules    map[*rules.Rule]bool
	forceFiles    map[string]bool
	priorityRules map[*rules.Rule]bool
	priorityFiles map[string]bool

	length int
}

// New constructs a DAG from the given options. Call Init to populate it.
func New(opts Options) *DAG {
	d := &DAG{
		ruleset:         append([]*rules.Rule{}, opts.Rules...),
		targetFiles:     append([]string{}, opts.TargetFiles...),
		targetFileSet:   map[string]bool{},
		targetRules:     map[*rules.Rule]bool{},
		targetRuleOrder: opts.TargetRules,
		ignoreAmbiguity: opts.IgnoreAmbiguity,
		persistence:     opts.Persistence,
		deps:            map[*rules.Job]*edges{},
		rdeps:           map[*rules.Job]*edges{},
		interned:        map[string]*rules.Job{},
		targetJobs:      newJobSet(),
		needrun:         map[*rules.Job]bool{},
		reasons:         map[*rules.Job]*Reason{},
		finished:        map[*rules.Job]bool{},
		dynamicJobs:     map[*rules.Job]bool{},
		ready:           newJobSet(),
		omitForce:       map[*rules.Job]bool{},
		forceRules:      map[*rules.Rule]bool{},
		forceFiles:      map[string]bool{},
		priorityRules:   map[*rules.Rule]bool{},
		priorityFiles:   map[string]bool{},
	}
	for i, f := range opts.TargetFiles {
		d.targetFiles[i] = filepath.Clean(f)
		d.targetFileSet[d.targetFiles[i]] = true
	}
	for _, r := range opts.TargetRules {
		d.targetRules[r] = true
	}
	if opts.ForceAll {
		for _, r := range d.ruleset {
			d.forceRules[r] = true
		}
	} else {
		for _, r := range opts.ForceRules {
			d.forceRules[r] = true
		}
	}
	if opts.ForceTargets {
		for _, r := range opts.TargetRules {
			d.forceRules[r] = true
		}
		for _, f := range d.targetFiles {
			d.forceFiles[f] = true
		}
	}
	for _, f := range opts.ForceFiles {
		d.forceFiles[filepath.Clean(f)] = true
	}
	for _, r := range opts.PriorityRules {
		d.priorityRules[r] = true
	}
	for _, f := range opts.PriorityFiles {
		d.priorityFiles[f] = true
	}
	return d
}

// Init resolves the requested target rules and files into jobs, expands
// their dependencies into the graph, and runs the initial postprocess.
// Missing rules for target files are collected into a combined error;
// any other resolution failure aborts immediately.
func (d *DAG) Init() error {
	for _, r := range d.targetRuleOrder {
		job, err := d.update([]*rules.Job{d.ruleToJob(r)}, "", nil, false, 0)
		if err != nil {
			return err
		}
		d.targetJobs.Add(job)
	}

	var missing *multierror.Error
	for _, file := range d.targetFiles {
		candidates, err := d.fileToJobs(file)
		if err != nil {
			missing = multierror.Append(missing, err)
			continue
		}
		job, err := d.update(candidates, file, nil, false, 0)
		if err != nil {
			return err
		}
		d.targetJobs.Add(job)
	}
	if err := missing.ErrorOrNil(); err != nil {
		return err
	}

	d.updateNeedrun()

	// Dynamic jobs that are already satisfied can be concretised from the
	// outputs present on disk before anything runs.
	for _, job := range d.Jobs() {
		if job.DynamicOutput() && !d.Needrun(job) {
			if _, err := d.updateDynamic(job); err != nil {
				return err
			}
		}
	}
	d.Postprocess()
	return nil
}

// Rules returns the current rule set, including rules concretised by
// dynamic re-expansion
func (d *DAG) Rules() []*rules.Rule {
	return d.ruleset
}

// Jobs returns all jobs in the DAG, in breadth-first order from the
// target jobs towards their producers
func (d *DAG) Jobs() []*rules.Job {
	return d.bfs(d.depsOf, d.targetJobs.Jobs(), nil)
}

// TargetJobs returns the jobs resolved from the requested targets
func (d *DAG) TargetJobs() []*rules.Job {
	return d.targetJobs.Jobs()
}

// NeedrunJobs returns the jobs that must be executed, skipping the
// producers of finished jobs
func (d *DAG) NeedrunJobs() []*rules.Job {
	var result []*rules.Job
	for _, job := range d.bfs(d.depsOf, d.targetJobs.Jobs(), d.Finished) {
		if d.needrun[job] {
			result = append(result, job)
		}
	}
	return result
}

// ReadyJobs returns a snapshot of the jobs that are ready to execute
func (d *DAG) ReadyJobs() []*rules.Job {
	return append([]*rules.Job{}, d.ready.Jobs()...)
}

// Producers returns the jobs supplying inputs of the given job, in edge
// insertion order
func (d *DAG) Producers(job *rules.Job) []*rules.Job {
	if producers, ok := d.deps[job]; ok {
		return append([]*rules.Job{}, producers.order...)
	}
	return nil
}

// Consumers returns the jobs requiring outputs of the given job, in edge
// insertion order
func (d *DAG) Consumers(job *rules.Job) []*rules.Job {
	if consumers, ok := d.rdeps[job]; ok {
		return append([]*rules.Job{}, consumers.order...)
	}
	return nil
}

// Ready returns whether the given job is ready to execute
func (d *DAG) Ready(job *rules.Job) bool {
	return d.ready.Has(job)
}

// Needrun returns whether the given job must be executed
func (d *DAG) Needrun(job *rules.Job) bool {
	return d.needrun[job]
}

// Finished returns whether the given job has finished
func (d *DAG) Finished(job *rules.Job) bool {
	return d.finished[job]
}

// Dynamic returns whether the given job is a placeholder to be replaced
// once the producing dynamic-output job has finished
func (d *DAG) Dynamic(job *rules.Job) bool {
	return d.dynamicJobs[job]
}

// Reason returns the reason the given job must be executed
func (d *DAG) Reason(job *rules.Job) *Reason {
	reason, ok := d.reasons[job]
	if !ok {
		reason = NewReason()
		d.reasons[job] = reason
	}
	return reason
}

// Len returns the number of jobs that must be executed
func (d *DAG) Len() int {
	return d.length
}

func (d *DAG) noneedrunFinished(job *rules.Job) bool {
	return !d.needrun[job] || d.finished[job]
}

// Finish marks a job as finished, promotes newly eligible consumers into
// the ready set, and triggers dynamic re-expansion for jobs with dynamic
// output unless updateDynamic is false.
func (d *DAG) Finish(job *rules.Job, updateDynamic bool) error {
	d.finished[job] = true
	d.ready.Remove(job)
	if consumers, ok := d.rdeps[job]; ok {
		for _, consumer := range consumers.order {
			if d.needrun[consumer] && !d.finished[consumer] && d.isReady(consumer) {
				d.ready.Add(consumer)
			}
		}
	}

	if updateDynamic && job.DynamicOutput() {
		logrus.Warn("dynamically updating jobs")
		newjob, err := d.updateDynamic(job)
		if err != nil {
			return err
		}
		if newjob != nil {
			// The replacement job stands for work that already ran;
			// record it so a later postprocess does not force it again.
			d.omitForce[newjob] = true
			d.needrun[newjob] = true
			d.finished[newjob] = true
			d.Postprocess()
		}
	}
	return nil
}

// CheckOutput verifies that the declared outputs of a finished job are
// present on disk
func (d *DAG) CheckOutput(job *rules.Job) error {
	for _, f := range job.ExpandedOutput() {
		if !f.Exists() {
			return &MissingOutputError{File: f.Path(), Rule: job.Rule()}
		}
	}
	return nil
}

// HandleProtected write-protects output files marked protected
func (d *DAG) HandleProtected(job *rules.Job) {
	for _, f := range job.ExpandedOutput() {
		if !job.ProtectedOutput().Contains(f.Path()) {
			continue
		}
		logrus.Warnf("write protecting output file %s", f.Path())
		if err := f.Protect(); err != nil {
			logrus.Warnf("failed to protect %s: %s", f.Path(), err)
		}
	}
}

// HandleTemp removes temp files supplied to the given job once no other
// unfinished consumer still needs them
func (d *DAG) HandleTemp(job *rules.Job) {
	needed := func(producer *rules.Job, path string) bool {
		consumers, ok := d.rdeps[producer]
		if !ok {
			return false
		}
		for _, consumer := range consumers.order {
			if consumer == job || d.finished[consumer] {
				continue
			}
			if consumers.files[consumer].Contains(path) {
				return true
			}
		}
		return false
	}
	producers, ok := d.deps[job]
	if !ok {
		return
	}
	for _, producer := range producers.order {
		supplied := producers.files[producer]
		for _, f := range producer.TempOutput().Files() {
			if !supplied.Contains(f.Path()) {
				continue
			}
			if !needed(producer, f.Path()) {
				logrus.Warnf("removing temporary output file %s", f.Path())
				if err := f.Remove(); err != nil {
					logrus.Warnf("failed to remove %s: %s", f.Path(), err)
				}
			}
		}
	}
}

// MissingTemp reports whether a file consumed from the given job by a
// consumer that still needs to run is missing from disk
func (d *DAG) MissingTemp(job *rules.Job) bool {
	consumers, ok := d.rdeps[job]
	if !ok {
		return false
	}
	for _, consumer := range consumers.order {
		if !d.needrun[consumer] {
			continue
		}
		for _, f := range consumers.files[consumer].Files() {
			if !f.Exists() {
				return true
			}
		}
	}
	return false
}

// NewWildcards returns the wildcard bindings introduced by the given job,
// i.e. those that none of its producers already carry
func (d *DAG) NewWildcards(job *rules.Job) []rules.WildcardPair {
	pairs := job.Wildcards().Pairs()
	producers, ok := d.deps[job]
	if !ok || len(pairs) == 0 {
		return pairs
	}
	inherited := map[rules.WildcardPair]bool{}
	for _, producer := range producers.order {
		for _, pair := range producer.Wildcards().Pairs() {
			inherited[pair] = true
		}
	}
	var fresh []rules.WildcardPair
	for _, pair := range pairs {
		if !inherited[pair] {
			fresh = append(fresh, pair)
		}
	}
	return fresh
}

// edges is an insertion-ordered adjacency map from a job to the files it
// exchanges with each neighbour
type edges struct {
	order []*rules.Job
	files map[*rules.Job]*rules.FileSet
}

func newEdges() *edges {
	return &edges{files: map[*rules.Job]*rules.FileSet{}}
}

func (e *edges) add(job *rules.Job, f *rules.File) {
	set, ok := e.files[job]
	if !ok {
		set = rules.NewFileSet()
		e.files[job] = set
		e.order = append(e.order, job)
	}
	set.Add(f)
}

func (e *edges) addSet(job *rules.Job, fs *rules.FileSet) {
	set, ok := e.files[job]
	if !ok {
		set = rules.NewFileSet()
		e.files[job] = set
		e.order = append(e.order, job)
	}
	set.AddAll(fs)
}

func (e *edges) remove(job *rules.Job) {
	if _, ok := e.files[job]; !ok {
		return
	}
	delete(e.files, job)
	for i, j := range e.order {
		if j == job {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *edges) len() int {
	return len(e.order)
}

// jobSet is an insertion-ordered set of jobs
type jobSet struct {
	order []*rules.Job
	has   map[*rules.Job]bool
}

func newJobSet() *jobSet {
	return &jobSet{has: map[*rules.Job]bool{}}
}

func (s *jobSet) Add(job *rules.Job) {
	if s.has[job] {
		return
	}
	s.has[job] = true
	s.order = append(s.order, job)
}

func (s *jobSet) Remove(job *rules.Job) {
	if !s.has[job] {
		return
	}
	delete(s.has, job)
	for i, j := range s.order {
		if j == job {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *jobSet) Has(job *rules.Job) bool {
	return s.has[job]
}

func (s *jobSet) Jobs() []*rules.Job {
	return s.order
}

func (s *jobSet) Len() int {
	return len(s.order)
}
