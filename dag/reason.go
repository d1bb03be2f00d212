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

	"github.com/loomworks/loom/rules"
)

// Reason records why a job must be executed. A job is in the needrun set
// iff its Reason is non-empty.
type Reason struct {
	Forced           bool
	NoIO             bool
	MissingOutput    *rules.FileSet
	IncompleteOutput *rules.FileSet
	UpdatedInput     *rules.FileSet
	UpdatedInputRun  *rules.FileSet
}

// NewReason returns an empty Reason
func NewReason() *Reason {
	return &Reason{
		MissingOutput:    rules.NewFileSet(),
		IncompleteOutput: rules.NewFileSet(),
		UpdatedInput:     rules.NewFileSet(),
		UpdatedInputRun:  rules.NewFileSet(),
	}
}

// Empty returns true if no condition requires the job to run
func (r *Reason) Empty() bool {
	return !r.Forced && !r.NoIO &&
		r.MissingOutput.Len() == 0 &&
		r.IncompleteOutput.Len() == 0 &&
		r.UpdatedInput.Len() == 0 &&
		r.UpdatedInputRun.Len() == 0
}

// String renders the reason for user-facing output
func (r *Reason) String() string {
	var parts []string
	if r.Forced {
		parts = append(parts, "forced execution")
	}
	if r.NoIO {
		parts = append(parts, "rule declares neither input nor output")
	}
	if r.MissingOutput.Len() > 0 {
		parts = append(parts, fmt.Sprintf("missing output files: %s",
			strings.Join(r.MissingOutput.Paths(), ", ")))
	}
	if r.IncompleteOutput.Len() > 0 {
		parts = append(parts, fmt.Sprintf("incomplete output files: %s",
			strings.Join(r.IncompleteOutput.Paths(), ", ")))
	}
	if r.UpdatedInput.Len() > 0 {
		parts = append(parts, fmt.Sprintf("updated input files: %s",
			strings.Join(r.UpdatedInput.Paths(), ", ")))
	}
	if r.UpdatedInputRun.Len() > 0 {
		parts = append(parts, fmt.Sprintf(
			"input files updated by another job: %s",
			strings.Join(r.UpdatedInputRun.Paths(), ", ")))
	}
	if len(parts) == 0 {
		return "up to date"
	}
	return strings.Join(parts, "; ")
}
