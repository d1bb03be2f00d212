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
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loomworks/loom/rules"
	"github.com/sirupsen/logrus"
)

// ExecOpts carry per-run settings into an Executor
type ExecOpts struct {
	BuildID     string
	Output      io.Writer
	DebugOutput io.Writer
}

// Executor runs the command of a single job
type Executor interface {

	// Execute a job
	Execute(ctx context.Context, job *rules.Job, opts ExecOpts) error
}

// BashExecutor runs job commands via bash
type BashExecutor struct{}

// NewBashExecutor returns an Executor that runs commands via bash
func NewBashExecutor() Executor {
	return &BashExecutor{}
}

// Execute runs the job's command with the job environment applied. Output
// directories are created beforehand so commands can write directly.
func (e *BashExecutor) Execute(ctx context.Context, job *rules.Job, opts ExecOpts) error {
	command := job.Rule().Command()
	if command == "" {
		return nil
	}
	for _, f := range job.ExpandedOutput() {
		dir := filepath.Dir(f.Path())
		if dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	logrus.Debugf("executing rule %s: %s", job.Rule().Name(), command)
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Env = append(os.Environ(), jobEnvironment(job, opts.BuildID)...)
	cmd.Stdout = opts.Output
	cmd.Stderr = opts.Output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rule %s failed: %s", job.Rule().Name(), err)
	}
	return nil
}

// jobEnvironment returns the variables exposed to a job's command: the
// first and full input and output lists, the rule name, the build ID, and
// one variable per wildcard.
func jobEnvironment(job *rules.Job, buildID string) []string {
	var firstIn, firstOut string
	inputs := make([]string, 0, len(job.Input()))
	for _, f := range job.Input() {
		inputs = append(inputs, f.Path())
	}
	if len(inputs) > 0 {
		firstIn = inputs[0]
	}
	outputs := make([]string, 0, len(job.Output()))
	for _, f := range job.Output() {
		outputs = append(outputs, f.Path())
	}
	if len(outputs) > 0 {
		firstOut = outputs[0]
	}
	env := []string{
		fmt.Sprintf("INPUT=%s", firstIn),
		fmt.Sprintf("INPUTS=%s", strings.Join(inputs, " ")),
		fmt.Sprintf("OUTPUT=%s", firstOut),
		fmt.Sprintf("OUTPUTS=%s", strings.Join(outputs, " ")),
		fmt.Sprintf("RULE=%s", job.Rule().Name()),
		fmt.Sprintf("BUILD_ID=%s", buildID),
	}
	for _, pair := range job.Wildcards().Pairs() {
		env = append(env, fmt.Sprintf("WILDCARD_%s=%s",
			strings.ToUpper(pair.Name), pair.Value))
	}
	sort.Strings(env)
	return env
}
