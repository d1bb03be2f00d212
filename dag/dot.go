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

// Dot emits the DAG as a graphviz digraph. Each job is a node coloured by
// rule, with hue rotating over the rule set; the node style encodes
// whether the job is running, not running, or dynamic. Edges point from
// producer to consumer. A legend is included when more than one style is
// in use.
func (d *DAG) Dot() string {
	ruleColor := map[*rules.Rule]string{}
	hueFactor := 0.0
	if len(d.ruleset) > 1 {
		hueFactor = 2.0 / (3.0 * float64(len(d.ruleset)-1))
	}
	for i, r := range d.ruleset {
		ruleColor[r] = fmt.Sprintf("%.2f 0.6 0.85", float64(i)*hueFactor)
	}

	jobs := d.Jobs()
	jobID := map[*rules.Job]int{}
	for i, job := range jobs {
		jobID[job] = i
	}

	types := []string{"running job", "not running job", "dynamic job"}
	styles := []string{
		`style="rounded"`,
		`style="rounded,dashed"`,
		`style="rounded,dotted"`,
	}
	usedTypes := map[int]bool{}

	var nodes []string
	var edgeLines []string
	for _, job := range jobs {
		label := job.Rule().Name()
		for _, pair := range d.NewWildcards(job) {
			value := pair.Value
			if strings.Contains(value, rules.DynamicFill) {
				value = "..."
			}
			label += fmt.Sprintf("\\n%s: %s", pair.Name, value)
		}
		t := 0
		if !d.needrun[job] {
			t = 1
		}
		if d.Dynamic(job) || job.DynamicInput() {
			t = 2
		}
		usedTypes[t] = true
		nodes = append(nodes, fmt.Sprintf("\t%d[label = \"%s\", color=\"%s\", %s];",
			jobID[job], label, ruleColor[job.Rule()], styles[t]))
		if producers, ok := d.deps[job]; ok {
			for _, producer := range producers.order {
				edgeLines = append(edgeLines, fmt.Sprintf("\t%d -> %d;",
					jobID[producer], jobID[job]))
			}
		}
	}

	var legend []string
	if len(usedTypes) > 1 {
		for t := range types {
			if !usedTypes[t] {
				continue
			}
			legend = append(legend, fmt.Sprintf("\tlegend%d[label=\"%s\", %s];",
				t, types[t], styles[t]))
			for _, target := range d.targetJobs.Jobs() {
				legend = append(legend, fmt.Sprintf("\t%d -> legend%d[style=invis];",
					jobID[target], t))
			}
		}
	}

	var out strings.Builder
	out.WriteString("digraph loom_dag {\n")
	out.WriteString("\tgraph[bgcolor=white];\n")
	out.WriteString("\tnode[shape=box, style=rounded, fontname=sans, fontsize=10, penwidth=2];\n")
	out.WriteString("\tedge[penwidth=2, color=grey];\n")
	out.WriteString(strings.Join(nodes, "\n"))
	out.WriteString("\n")
	out.WriteString(strings.Join(edgeLines, "\n"))
	if len(legend) > 0 {
		out.WriteString("\n")
		out.WriteString(strings.Join(legend, "\n"))
	}
	out.WriteString("\n}\n")
	return out.String()
}
