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
	"sync"

	"github.com/loomworks/loom/rules"
)

// workerResult carries the outcome of one job execution back to the
// scheduler loop
type workerResult struct {
	Job   *rules.Job
	Error error
}

// worker executes jobs received on the jobs channel until it is closed.
// Workers only run commands; all DAG mutation happens on the scheduler
// goroutine, which keeps Finish calls serialised.
func worker(
	ctx context.Context,
	executor Executor,
	opts ExecOpts,
	jobs <-chan *rules.Job,
	results chan<- *workerResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()
	for job := range jobs {
		err := executor.Execute(ctx, job, opts)
		results <- &workerResult{Job: job, Error: err}
	}
}
