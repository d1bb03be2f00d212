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

	"github.com/spf13/cobra"
)

// NewDotCommand returns a command that prints the job graph in graphviz
// dot format
func NewDotCommand() *cobra.Command {

	cmd := &cobra.Command{
		Use:   "dot [targets...]",
		Short: "Print the job dependency graph in dot format",
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
			fmt.Print(d.Dot())
		},
	}
	addForceFlags(cmd)
	return cmd
}
