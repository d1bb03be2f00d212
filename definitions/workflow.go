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
package definitions

import (
	"fmt"
	"io/ioutil"

	"github.com/go-yaml/yaml"
)

// Rule defines one build step in YAML: patterns for its inputs and
// outputs, subsets of those patterns with special handling, a priority
// class, and the command executed to materialise the outputs
type Rule struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Input       []string `yaml:"input"`
	Output      []string `yaml:"output"`
	Temp        []string `yaml:"temp"`
	Protected   []string `yaml:"protected"`
	Dynamic     []string `yaml:"dynamic"`
	Priority    int      `yaml:"priority"`
	Command     string   `yaml:"command"`
}

// Defaults are applied to every rule that does not override them
type Defaults struct {
	Priority int    `yaml:"priority"`
	Command  string `yaml:"command"`
}

// Workflow defines a workflow configuration in YAML. Rules are a list so
// that their definition order is preserved; the order breaks ties when
// two rules could produce the same file.
type Workflow struct {
	Name     string   `yaml:"name"`
	Defaults Defaults `yaml:"defaults"`
	Rules    []Rule   `yaml:"rules"`
	Path     string
}

// LoadWorkflow loads a workflow definition from the given text
func LoadWorkflow(text []byte) (*Workflow, error) {
	def := &Workflow{}
	if err := yaml.Unmarshal(text, def); err != nil {
		return nil, err
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadWorkflowFromPath loads a workflow definition from the specified file
func LoadWorkflowFromPath(path string) (*Workflow, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := LoadWorkflow(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %s", path, err)
	}
	def.Path = path
	return def, nil
}

func (w *Workflow) validate() error {
	seen := map[string]bool{}
	for _, r := range w.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule with empty name")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate rule name: %s", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
