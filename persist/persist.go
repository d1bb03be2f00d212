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

// Package persist tracks jobs that were started but never reported
// finished. A marker file is written when a job starts and removed when it
// completes; a marker that is still present on the next run means the
// job's outputs are in an undefined state and must be rebuilt.
package persist

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/loomworks/loom/hash"
	"github.com/loomworks/loom/rules"
)

const metadataDir = ".loom"

// Marker records the execution attempt of a job
type Marker struct {
	Rule      string            `yaml:"rule"`
	Wildcards map[string]string `yaml:"wildcards,omitempty"`
	Outputs   []string          `yaml:"outputs,omitempty"`
	BuildID   string            `yaml:"build_id"`
	StartedAt string            `yaml:"started_at"`
}

// Persistence stores job markers below a workflow's metadata directory
type Persistence struct {
	dir    string
	hasher hash.Hasher
}

// New returns a Persistence rooted at the given workflow directory
func New(root string) (*Persistence, error) {
	dir := filepath.Join(root, metadataDir, "incomplete")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{dir: dir, hasher: hash.SHA1()}, nil
}

// Started records that a job is about to execute
func (p *Persistence) Started(job *rules.Job, buildID string) error {
	marker := Marker{
		Rule:      job.Rule().Name(),
		Wildcards: job.Wildcards(),
		BuildID:   buildID,
		StartedAt: time.Now().Format(time.RFC3339),
	}
	for _, f := range job.Output() {
		marker.Outputs = append(marker.Outputs, f.Path())
	}
	data, err := yaml.Marshal(&marker)
	if err != nil {
		return err
	}
	path, err := p.markerPath(job)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0644)
}

// Finished records that a job completed successfully
func (p *Persistence) Finished(job *rules.Job) error {
	path, err := p.markerPath(job)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Incomplete reports whether a previous execution of the job was
// interrupted. Satisfies the probe consumed by the DAG.
func (p *Persistence) Incomplete(job *rules.Job) bool {
	path, err := p.markerPath(job)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (p *Persistence) markerPath(job *rules.Job) (string, error) {
	key, err := p.hasher.Object(struct {
		Rule      string            `json:"rule"`
		Wildcards map[string]string `json:"wildcards"`
	}{
		Rule:      job.Rule().Name(),
		Wildcards: job.Wildcards(),
	})
	if err != nil {
		return "", err
	}
	return filepath.Join(p.dir, key), nil
}
