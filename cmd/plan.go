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

	"github.com/loomworks/loom/format"
	"github.com/spf13/cobra"
)

type planRow struct {
	Rule      string
	Wildcards string
	Reason    string
}

// NewPlanCommand returns a command showing which jobs would run and why
func NewPlanCommand() *cobra.Command {

	cmd := &cobra.Command{
		Use:   "plan [targets...]",
		Short: "Show the jobs that would run for the requested targets",
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

			jobs := d.NeedrunJobs()
			if len(jobs) == 0 {
				fmt.Println(Green("Nothing to be done."))
				return
			}
			rows := make([]interface{}, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, planRow{
					Rule:      job.Rule().Name(),
					Wildcards: job.Wildcards().Key(),
					Reason:    d.Reason(job).String(),
				})
			}
			lines, err := format.Table(format.TableOpts{
				Rows:       rows,
				Columns:    []string{"Rule", "Wildcards", "Reason"},
				ShowHeader: true,
			})
			if err != nil {
				fatal(err)
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			fmt.Printf("\n%s of %d total\n",
				Bright(fmt.Sprintf("%d jobs to run", d.Len())), len(d.Jobs()))
		},
	}

	addForceFlags(cmd)
	return cmd
}
