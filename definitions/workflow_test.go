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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workflowYaml = `
name: example
defaults:
  priority: 1
rules:
  - name: split
    input: [data.txt]
    output: ["chunks/{i}.txt"]
    dynamic: ["chunks/{i}.txt"]
    command: split -l 100 $INPUT chunks/
  - name: merge
    input: ["chunks/{i}.txt"]
    output: [merged.txt]
    temp: [merged.txt]
    dynamic: ["chunks/{i}.txt"]
    priority: 5
    command: cat $INPUTS > $OUTPUT
`

func TestLoadWorkflow(t *testing.T) {

	def, err := LoadWorkflow([]byte(workflowYaml))
	require.Nil(t, err)

	assert.Equal(t, "example", def.Name)
	require.Len(t, def.Rules, 2)

	split := def.Rules[0]
	assert.Equal(t, "split", split.Name)
	assert.Equal(t, []string{"data.txt"}, split.Input)
	assert.Equal(t, []string{"chunks/{i}.txt"}, split.Dynamic)

	merge := def.Rules[1].ApplyDefaults(def.Defaults)
	assert.Equal(t, 5, merge.Priority)

	withDefaults := split.ApplyDefaults(def.Defaults)
	assert.Equal(t, 1, withDefaults.Priority)
	assert.Equal(t, split.Command, withDefaults.Command)
}

func TestLoadWorkflowRejectsDuplicates(t *testing.T) {

	_, err := LoadWorkflow([]byte(`
rules:
  - name: a
  - name: a
`))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "duplicate rule name")
}

func TestLoadWorkflowRejectsUnnamed(t *testing.T) {

	_, err := LoadWorkflow([]byte(`
rules:
  - input: [a.txt]
`))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "empty name")
}
