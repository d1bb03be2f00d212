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
	"io"

	"github.com/loomworks/loom/dag"
	"github.com/loomworks/loom/persist"
)

// Options used to configure the Scheduler
type Options struct {
	BuildID     string
	DAG         *dag.DAG
	Executor    Executor
	Persistence *persist.Persistence
	Workers     int
	Output      io.Writer
}

// Scheduler drains the ready jobs of a DAG until every job that must run
// has finished
type Scheduler interface {

	// Run the needrun jobs of the DAG
	Run(context.Context, Options) error
}
