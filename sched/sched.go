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
package sched

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/loomworks/loom/rules"
	"github.com/sirupsen/logrus"
)

// NewDAGScheduler returns the default scheduler
func NewDAGScheduler() Scheduler {
	return &dagScheduler{}
}

type dagScheduler struct{}

// Run drains the DAG's ready jobs with a pool of workers. The scheduler
// goroutine owns the DAG: workers only execute commands and report back,
// so Finish and the follow-up handlers never run concurrently.
func (s *dagScheduler) Run(ctx context.Context, opts Options) error {

	if opts.Workers < 1 {
		opts.Workers = 1
	}
	executor := opts.Executor
	if executor == nil {
		executor = NewBashExecutor()
	}
	execOpts := ExecOpts{
		BuildID: opts.BuildID,
		Output:  opts.Output,
	}

	var wg sync.WaitGroup
	var errs *multierror.Error
	jobs := make(chan *rules.Job)
	results := make(chan *workerResult, opts.Workers)
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go worker(ctx, executor, execOpts, jobs, results, &wg)
	}

	// Signal the workers to exit once draining is done and wait for them
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	running := 0
	dispatched := map[*rules.Job]bool{}
	failed := map[*rules.Job]bool{}

	// Send ready jobs to idle workers, preferring higher priorities.
	// Returns the number of ready jobs that could not be dispatched.
	dispatch := func() int {
		ready := opts.DAG.ReadyJobs()
		sort.SliceStable(ready, func(i, j int) bool {
			return ready[i].Priority() > ready[j].Priority()
		})
		pending := 0
		for _, job := range ready {
			if dispatched[job] {
				continue
			}
			select {
			case jobs <- job:
				dispatched[job] = true
				running++
				if opts.Persistence != nil {
					if err := opts.Persistence.Started(job, opts.BuildID); err != nil {
						logrus.Warnf("failed to record job start: %s", err)
					}
				}
			default:
				// All workers busy
				pending++
			}
		}
		return pending
	}

	handleResult := func(result *workerResult) {
		running--
		job := result.Job
		if result.Error != nil {
			errs = multierror.Append(errs, result.Error)
			failed[job] = true
			return
		}
		if err := opts.DAG.CheckOutput(job); err != nil {
			errs = multierror.Append(errs, err)
			failed[job] = true
			return
		}
		if opts.Persistence != nil {
			if err := opts.Persistence.Finished(job); err != nil {
				logrus.Warnf("failed to record job completion: %s", err)
			}
		}
		opts.DAG.HandleProtected(job)
		if err := opts.DAG.Finish(job, true); err != nil {
			errs = multierror.Append(errs, err)
			return
		}
		opts.DAG.HandleTemp(job)
	}

	for {
		pending := dispatch()
		if running == 0 && pending == 0 {
			break
		}
		select {
		case result := <-results:
			handleResult(result)
		case <-ctx.Done():
			return multierror.Append(errs, ctx.Err()).ErrorOrNil()
		case <-time.After(20 * time.Millisecond):
			// Avoid a hard loop while jobs are running
		}
	}

	// Confirm every needed job finished or produce an error
	for _, job := range opts.DAG.NeedrunJobs() {
		if !opts.DAG.Finished(job) && !failed[job] {
			errs = multierror.Append(errs,
				fmt.Errorf("job did not run: %s", job))
		}
	}
	return errs.ErrorOrNil()
}
