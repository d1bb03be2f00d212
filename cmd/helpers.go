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
	"os"
	"path/filepath"

	"github.com/loomworks/loom/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

type loomOptions struct {
	File            string
	Directory       string
	Debug           bool
	IgnoreAmbiguity bool
}

func getLoomOptions() loomOptions {
	return loomOptions{
		File:            viper.GetString("file"),
		Directory:       viper.GetString("dir"),
		Debug:           viper.GetBool("debug"),
		IgnoreAmbiguity: viper.GetBool("ignore-ambiguity"),
	}
}

func getWorkflow(opts loomOptions) (*workflow.Workflow, error) {
	absDir, err := filepath.Abs(opts.Directory)
	if err != nil {
		return nil, err
	}
	file := opts.File
	if !filepath.IsAbs(file) {
		file = filepath.Join(absDir, file)
	}
	return workflow.Load(file, absDir)
}

// addForceFlags registers the flags shared by commands that build a DAG
func addForceFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("forceall", false, "Force execution of all jobs")
	cmd.Flags().Bool("force", false, "Force execution of the target jobs")
	cmd.Flags().StringSlice("force-rules", nil, "Force execution of jobs of these rules")
	cmd.Flags().StringSlice("priority-rules", nil, "Prefer jobs of these rules and their producers")
}

// getBuildOpts reads the shared DAG flags from a command
func getBuildOpts(cmd *cobra.Command, opts loomOptions, targets []string) workflow.BuildOpts {
	forceAll, _ := cmd.Flags().GetBool("forceall")
	forceTargets, _ := cmd.Flags().GetBool("force")
	forceRules, _ := cmd.Flags().GetStringSlice("force-rules")
	priorityRules, _ := cmd.Flags().GetStringSlice("priority-rules")
	return workflow.BuildOpts{
		Targets:         targets,
		ForceAll:        forceAll,
		ForceTargets:    forceTargets,
		ForceRules:      forceRules,
		PriorityRules:   priorityRules,
		IgnoreAmbiguity: opts.IgnoreAmbiguity,
	}
}
