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
	"time"

	"github.com/loomworks/loom/rules"
)

// Postprocess recomputes the needrun set, job priorities, and the ready
// frontier. It is idempotent given unchanged filesystem and DAG state.
func (d *DAG) Postprocess() {
	d.updateNeedrun()
	d.updatePriority()
	d.updateReady()
}

// outputMintime returns the oldest existing output among the job itself
// and the jobs reachable in the consumer direction
func (d *DAG) outputMintime(job *rules.Job) time.Time {
	var min time.Time
	for _, j := range d.bfs(d.rdepsOf, []*rules.Job{job}, nil) {
		if t := j.OutputMintime(); !t.IsZero() && (min.IsZero() || t.Before(min)) {
			min = t
		}
	}
	return min
}

// updateNeedrun assigns each job a Reason and populates the needrun set.
// Seeded reasons (force, target demands, updated inputs) are propagated
// upstream to producers with missing or incomplete outputs and downstream
// to consumers whose inputs will be refreshed.
func (d *DAG) updateNeedrun() {
	seed := func(job *rules.Job) {
		reason := d.Reason(job)
		if (!d.omitForce[job] && d.forceRules[job.Rule()]) || d.outputInForceFiles(job) {
			reason.Forced = true
		} else if d.targetJobs.Has(job) {
			if !job.HasOutput() {
				if len(job.Input()) > 0 {
					for _, f := range job.Input() {
						if !f.Exists() {
							reason.UpdatedInputRun.Add(f)
						}
					}
				} else {
					reason.NoIO = true
				}
			} else {
				var requested map[string]bool
				if !d.targetRules[job.Rule()] {
					requested = map[string]bool{}
					if consumers, ok := d.rdeps[job]; ok {
						for _, c := range consumers.order {
							for _, path := range consumers.files[c].Paths() {
								requested[path] = true
							}
						}
					}
					for path := range d.targetFileSet {
						requested[path] = true
					}
				}
				for _, f := range job.MissingOutput(requested) {
					reason.MissingOutput.Add(f)
				}
			}
		}
		if reason.Empty() {
			if t := d.outputMintime(job); !t.IsZero() {
				for _, f := range job.Input() {
					if f.Exists() && f.IsNewer(t) {
						reason.UpdatedInput.Add(f)
					}
				}
			}
		}
	}

	var queue []*rules.Job
	visited := map[*rules.Job]bool{}
	for _, job := range d.Jobs() {
		seed(job)
		if !d.Reason(job).Empty() {
			queue = append(queue, job)
			visited[job] = true
		}
	}

	for len(queue) > 0 {
		job := queue[0]
		queue = queue[1:]
		d.needrun[job] = true

		if producers, ok := d.deps[job]; ok {
			for _, producer := range producers.order {
				requested := map[string]bool{}
				for _, path := range producers.files[producer].Paths() {
					requested[path] = true
				}
				missingOutput := producer.MissingOutput(requested)
				var incompleteOutput []*rules.File
				if d.persistence != nil && d.persistence.Incomplete(producer) {
					incompleteOutput = producer.Output()
				}
				reason := d.Reason(producer)
				for _, f := range missingOutput {
					reason.MissingOutput.Add(f)
				}
				for _, f := range incompleteOutput {
					reason.IncompleteOutput.Add(f)
				}
				if (len(missingOutput) > 0 || len(incompleteOutput) > 0) && !visited[producer] {
					visited[producer] = true
					queue = append(queue, producer)
				}
			}
		}

		if consumers, ok := d.rdeps[job]; ok {
			for _, consumer := range consumers.order {
				d.Reason(consumer).UpdatedInputRun.AddAll(consumers.files[consumer])
				if !visited[consumer] {
					visited[consumer] = true
					queue = append(queue, consumer)
				}
			}
		}
	}

	d.length = len(d.needrun)
}

func (d *DAG) outputInForceFiles(job *rules.Job) bool {
	if len(d.forceFiles) == 0 {
		return false
	}
	for _, f := range job.Output() {
		if d.forceFiles[f.Path()] {
			return true
		}
	}
	return false
}

func (d *DAG) outputInPriorityFiles(job *rules.Job) bool {
	if len(d.priorityFiles) == 0 {
		return false
	}
	for _, f := range job.Output() {
		if d.priorityFiles[f.Path()] {
			return true
		}
	}
	return false
}

// updatePriority raises the priority of every job upstream of a
// prioritised needrun job, stopping at jobs that are already satisfied
func (d *DAG) updatePriority() {
	var roots []*rules.Job
	for _, job := range d.NeedrunJobs() {
		if d.priorityRules[job.Rule()] || d.outputInPriorityFiles(job) {
			roots = append(roots, job)
		}
	}
	if len(roots) == 0 {
		return
	}
	for _, job := range d.bfs(d.depsOf, roots, d.noneedrunFinished) {
		job.SetPriority(rules.HighestPriority)
	}
}

// updateReady recomputes the ready frontier from scratch over needrun
func (d *DAG) updateReady() {
	for _, job := range d.Jobs() {
		if d.needrun[job] && !d.finished[job] && d.isReady(job) {
			d.ready.Add(job)
		}
	}
}

// isReady reports whether every producer of the job that must run has
// finished. Producers outside needrun are treated as pre-satisfied.
func (d *DAG) isReady(job *rules.Job) bool {
	producers, ok := d.deps[job]
	if !ok {
		return true
	}
	for _, producer := range producers.order {
		if d.needrun[producer] && !d.finished[producer] {
			return false
		}
	}
	return true
}
