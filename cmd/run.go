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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomworks/loom/format"
	"github.com/loomworks/loom/sched"
	uuid "github.com/satori/go.uuid"
	"github.com/spf13/cobra"
)

func closeHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		fmt.Println(Yellow(" Cleaning up before exiting..."))
	}()
}

// NewRunCommand returns a command that builds the requested targets
func NewRunCommand() *cobra.Command {

	cmd := &cobra.Command{
		Use:   "run [targets...]",
		Short: "Build the requested target files or rules",
		Run: func(cmd *cobra.Command, args []string) {

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			closeHandler(cancel)

			opts := getLoomOptions()
			workers, _ := cmd.Flags().GetInt("workers")
			if workers < 1 {
				workers = 1
			}

			wf, err := getWorkflow(opts)
			if err != nil {
				fatal(err)
			}
			d, err := wf.BuildDAG(getBuildOpts(cmd, opts, args))
			if err != nil {
				fatal(err)
			}
			if d.Len() == 0 {
				fmt.Println(Green("Nothing to be done."))
				return
			}

			buildID := uuid.NewV4().String()
			started := time.Now()
			err = sched.NewDAGScheduler().Run(ctx, sched.Options{
				BuildID:     buildID,
				DAG:         d,
				Persistence: wf.Persistence(),
				Workers:     workers,
				Output:      os.Stdout,
			})
			if err != nil {
				fatal(err)
			}
			fmt.Printf("%s in %s\n", Green("Done"),
				format.Elapsed(time.Since(started)))
		},
	}

	cmd.Flags().IntP("workers", "w", 1, "Number of jobs to run in parallel")
	addForceFlags(cmd)
	return cmd
}
