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
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/loomworks/loom/rules"
	"github.com/sirupsen/logrus"
)

// maxResolveDepth bounds the recursive descent. Overflowing it almost
// always means a wildcard is being filled with ever-growing values.
const maxResolveDepth = 400

// intern returns the canonical Job for the candidate's (rule, wildcards)
// identity, so that equal jobs share identity in the graph
func (d *DAG) intern(job *rules.Job) *rules.Job {
	if existing, ok := d.interned[job.Key()]; ok {
		return existing
	}
	d.interned[job.Key()] = job
	return job
}

// ruleToJob constructs the target job for a rule named directly as target
func (d *DAG) ruleToJob(r *rules.Rule) *rules.Job {
	return d.intern(rules.NewJobWithWildcards(r, nil))
}

// fileToJobs enumerates candidate jobs for the rules producing the given
// file, in rule definition order
func (d *DAG) fileToJobs(file string) ([]*rules.Job, error) {
	var candidates []*rules.Job
	for _, r := range d.ruleset {
		if r.IsProducer(file) {
			candidates = append(candidates, d.intern(rules.NewJob(r, file)))
		}
	}
	if len(candidates) == 0 {
		return nil, &MissingRuleError{TargetFile: file}
	}
	return candidates, nil
}

// update selects one producer job for file among the candidates, expands
// it recursively and inserts it into the graph. Candidates are tried in
// preferred-first order; failures that may be recovered by an alternate
// producer are buffered and only surfaced if every candidate fails.
func (d *DAG) update(candidates []*rules.Job, file string, visited map[*rules.Job]bool,
	skipUntilDynamic bool, depth int) (*rules.Job, error) {

	if depth > maxResolveDepth {
		var r *rules.Rule
		if len(candidates) > 0 {
			r = candidates[0].Rule()
		}
		return nil, &RecursionError{File: file, Rule: r}
	}
	if visited == nil {
		visited = map[*rules.Job]bool{}
	}

	sorted := append([]*rules.Job{}, candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) > 0
	})

	var producer *rules.Job
	var buffered []error
	var cycles []*rules.Job
	for i, job := range sorted {
		// Producing a file from itself, or revisiting a job already on
		// this resolution path, would close a cycle for this branch.
		if (file != "" && job.HasInputPath(file)) || visited[job] {
			cycles = append(cycles, job)
			continue
		}
		if err := d.updateOne(job, copyVisited(visited), skipUntilDynamic, depth); err != nil {
			if resolvable(err) {
				buffered = append(buffered, err)
				continue
			}
			return nil, err
		}
		if i > 0 {
			if job.Less(sorted[i-1]) || d.ignoreAmbiguity {
				break
			}
			if producer != nil {
				return nil, &AmbiguousRuleError{
					File: file, R1: job.Rule(), R2: sorted[i-1].Rule()}
			}
		}
		producer = job
	}
	if producer == nil {
		if len(cycles) > 0 {
			return nil, &CyclicGraphError{Rule: cycles[0].Rule(), File: file}
		}
		if len(buffered) > 0 {
			return nil, buffered[0]
		}
	}
	return producer, nil
}

// updateOne expands a single candidate job: it resolves a producer for
// each of its inputs, records the edges, and fails with MissingInput if
// an input can neither be produced nor found on disk.
func (d *DAG) updateOne(job *rules.Job, visited map[*rules.Job]bool,
	skipUntilDynamic bool, depth int) error {

	if _, ok := d.deps[job]; ok {
		return nil
	}
	visited[job] = true
	dependencies := newEdges()
	d.deps[job] = dependencies

	potential := d.potentialDeps(job)
	skipUntilDynamic = skipUntilDynamic && !job.DynamicOutput()

	producers := map[string]*rules.Job{}
	failures := map[string]error{}
	for _, pd := range potential {
		producer, err := d.update(pd.candidates, pd.file.Path(), copyVisited(visited),
			skipUntilDynamic || job.IsDynamicInput(pd.file.Path()), depth+1)
		if err != nil {
			if resolvable(err) {
				failures[pd.file.Path()] = err
				continue
			}
			return err
		}
		producers[pd.file.Path()] = producer
	}

	for _, pd := range potential {
		producer, ok := producers[pd.file.Path()]
		if !ok {
			continue
		}
		dependencies.add(producer, pd.file)
		d.ensureRdeps(producer).add(job, pd.file)
	}

	var noProducer []string
	var causes *multierror.Error
	for _, f := range job.MissingInput() {
		if _, ok := producers[f.Path()]; ok {
			continue
		}
		if err, ok := failures[f.Path()]; ok {
			causes = multierror.Append(causes, err)
		} else {
			noProducer = append(noProducer, f.Path())
		}
	}
	if len(noProducer) > 0 || causes.ErrorOrNil() != nil {
		d.deleteJob(job, false)
		return &MissingInputError{Rule: job.Rule(), Files: noProducer, Causes: causes}
	}

	if skipUntilDynamic {
		d.dynamicJobs[job] = true
	}
	return nil
}

// potentialDep pairs an input file with the candidate jobs producing it
type potentialDep struct {
	file       *rules.File
	candidates []*rules.Job
}

// potentialDeps collects the producible inputs of a job in declaration
// order. Inputs with no producing rule are assumed to be external and are
// silently dropped here; updateOne reports them if they are also absent
// from disk.
func (d *DAG) potentialDeps(job *rules.Job) []potentialDep {
	seen := map[string]bool{}
	var result []potentialDep
	for _, f := range job.Input() {
		if seen[f.Path()] {
			continue
		}
		seen[f.Path()] = true
		candidates, err := d.fileToJobs(f.Path())
		if err != nil {
			continue
		}
		result = append(result, potentialDep{file: f, candidates: candidates})
	}
	return result
}

func (d *DAG) ensureDeps(job *rules.Job) *edges {
	e, ok := d.deps[job]
	if !ok {
		e = newEdges()
		d.deps[job] = e
	}
	return e
}

func (d *DAG) ensureRdeps(job *rules.Job) *edges {
	e, ok := d.rdeps[job]
	if !ok {
		e = newEdges()
		d.rdeps[job] = e
	}
	return e
}

// deleteJob removes a job from both edge maps and all derived sets. With
// recursive set, former producers left with no remaining consumer are
// deleted as well.
func (d *DAG) deleteJob(job *rules.Job, recursive bool) {
	if consumers, ok := d.rdeps[job]; ok {
		for _, consumer := range append([]*rules.Job{}, consumers.order...) {
			if dm, ok := d.deps[consumer]; ok {
				dm.remove(job)
			}
		}
	}
	delete(d.rdeps, job)
	if producers, ok := d.deps[job]; ok {
		for _, producer := range append([]*rules.Job{}, producers.order...) {
			rm, ok := d.rdeps[producer]
			if !ok {
				continue
			}
			rm.remove(job)
			if rm.len() == 0 && recursive {
				d.deleteJob(producer, true)
			}
		}
	}
	delete(d.deps, job)
	if d.needrun[job] {
		d.length--
		delete(d.needrun, job)
		delete(d.reasons, job)
	}
	delete(d.finished, job)
	delete(d.dynamicJobs, job)
	d.ready.Remove(job)
}

// replaceJob swaps a job for its replacement while preserving consumers.
// Consumers whose rule carries dynamic input are not re-attached; the
// dynamic re-expander rewrites those separately.
func (d *DAG) replaceJob(job, newjob *rules.Job) error {
	var consumers []*rules.Job
	var consumerFiles []*rules.FileSet
	if rm, ok := d.rdeps[job]; ok {
		for _, c := range rm.order {
			consumers = append(consumers, c)
			consumerFiles = append(consumerFiles, rm.files[c])
		}
	}
	wasFinished := d.finished[job]
	wasTarget := d.targetJobs.Has(job)

	d.deleteJob(job, true)
	if wasFinished {
		d.finished[newjob] = true
	}
	if _, err := d.update([]*rules.Job{newjob}, "", nil, false, 0); err != nil {
		return err
	}
	for i, consumer := range consumers {
		if consumer.DynamicInput() {
			continue
		}
		d.ensureDeps(consumer).addSet(newjob, consumerFiles[i])
		d.ensureRdeps(newjob).addSet(consumer, consumerFiles[i])
	}
	if wasTarget {
		d.targetJobs.Remove(job)
		d.targetJobs.Add(newjob)
	}
	return nil
}

// replaceRule swaps a rule for its concretised branch in the rule set
func (d *DAG) replaceRule(old, branched *rules.Rule) {
	for i, r := range d.ruleset {
		if r == old {
			d.ruleset = append(d.ruleset[:i], d.ruleset[i+1:]...)
			break
		}
	}
	d.ruleset = append(d.ruleset, branched)
	if d.forceRules[old] {
		d.forceRules[branched] = true
	}
}

// updateDynamic rewrites a finished dynamic-output job with the wildcard
// values discovered from its materialised outputs, and splices concretised
// jobs in place of the unfinished downstream jobs that consume them.
// Returns nil without changes if no outputs have materialised, which is
// the case e.g. during a dry run.
func (d *DAG) updateDynamic(job *rules.Job) (*rules.Job, error) {
	wildcards := job.DynamicWildcards()
	if len(wildcards) == 0 {
		return nil, nil
	}
	var downstream []*rules.Job
	for _, j := range d.bfs(d.rdepsOf, []*rules.Job{job}, nil) {
		if !d.finished[j] {
			downstream = append(downstream, j)
		}
	}

	branched, residual, err := job.Rule().DynamicBranch(wildcards, false)
	if err != nil {
		return nil, err
	}
	if branched == nil {
		return nil, nil
	}
	d.replaceRule(job.Rule(), branched)

	newjob := d.intern(rules.NewJobWithWildcards(branched, residual))
	if err := d.replaceJob(job, newjob); err != nil {
		return nil, err
	}

	for _, consumer := range downstream {
		if consumer == job || !consumer.DynamicInput() {
			continue
		}
		concretised, _, err := consumer.Rule().DynamicBranch(wildcards, true)
		if err != nil {
			return nil, err
		}
		if concretised == nil {
			continue
		}
		d.replaceRule(consumer.Rule(), concretised)
		if !d.Dynamic(consumer) {
			replacement := d.intern(rules.NewJob(concretised, consumer.TargetFile()))
			if err := d.replaceJob(consumer, replacement); err != nil {
				return nil, err
			}
		}
	}
	logrus.Debugf("dynamic update of %s complete", newjob)
	return newjob, nil
}

func copyVisited(visited map[*rules.Job]bool) map[*rules.Job]bool {
	dup := make(map[*rules.Job]bool, len(visited))
	for job := range visited {
		dup[job] = true
	}
	return dup
}
