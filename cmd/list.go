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
	"strings"

	"github.com/loomworks/loom/format"
	"github.com/spf13/cobra"
)

type ruleRow struct {
	Name     string
	Input    string
	Output   string
	Priority int
}

// NewListCommand returns a command listing the rules of the workflow
func NewListCommand() *cobra.Command {

	return &cobra.Command{
		Use:   "list",
		Short: "List the rules declared in the workflow",
		Run: func(cmd *cobra.Command, args []string) {
			opts := getLoomOptions()
			wf, err := getWorkflow(opts)
			if err != nil {
				fatal(err)
			}
			rows := []interface{}{}
			for _, r := range wf.Rules() {
				var inputs, outputs []string
				for _, p := range r.Input() {
					inputs = append(inputs, p.String())
				}
				for _, p := range r.Output() {
					outputs = append(outputs, p.String())
				}
				rows = append(rows, ruleRow{
					Name:     r.Name(),
					Input:    strings.Join(inputs, " "),
					Output:   strings.Join(outputs, " "),
					Priority: r.Priority(),
				})
			}
			lines, err := format.Table(format.TableOpts{
				Rows:       rows,
				Columns:    []string{"Name", "Input", "Output", "Priority"},
				ShowHeader: true,
			})
			if err != nil {
				fatal(err)
			}
			for _, line := range lines {
				fmt.Println(line)
			}
		},
	}
}
