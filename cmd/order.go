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
package cmd

import (
	"fmt"

	"github.com/loomworks/loom/graph"
	"github.com/spf13/cobra"
)

// NewOrderCommand returns a command that prints the rules involved in
// building the requested targets, in dependency order
func NewOrderCommand() *cobra.Command {

	cmd := &cobra.Command{
		Use:   "order [targets...]",
		Short: "Print the rules for the requested targets in dependency order",
		Run: func(cmd *cobra.Command, args []string) {
			opts := getLoomOptions()
			wf, err := getWorkflow(opts)
			if err != nil {
				fatal(err)
			}
			d, err := wf.BuildDAG(getBuildOpts(cmd, opts, args))
			if err != nil {
				fatal(err)
			}

			// Collapse the job graph to the rule level and sort it
			g := graph.NewGraph()
			for _, job := range d.Jobs() {
				g.Add(job.Rule())
				for _, producer := range d.Producers(job) {
					if producer.Rule() != job.Rule() {
						g.Connect(job.Rule(), producer.Rule())
					}
				}
			}
			sorted, err := g.Sort()
			if err != nil {
				fatal(err)
			}
			// Dependencies come last in the sort; print them first
			for i := len(sorted) - 1; i >= 0; i-- {
				fmt.Println(sorted[i].NodeID())
			}
		},
	}
	addForceFlags(cmd)
	return cmd
}
