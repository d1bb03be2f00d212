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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version of the loom binary, set at build time
var Version = "dev"

// GitCommit of the loom binary, set at build time
var GitCommit = "unknown"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "loom",
	Short:   "The rule-based workflow engine",
	Version: fmt.Sprintf("%s, build %s", Version, GitCommit),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Flags available to all subcommands
	rootCmd.PersistentFlags().StringP("file", "f", "loom.yaml", "Workflow definition file")
	rootCmd.PersistentFlags().StringP("dir", "d", ".", "Working directory")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("ignore-ambiguity", false, "Resolve ambiguous rules by preferring the first")

	// Bind flags to environment variables if they are present
	viper.BindPFlag("file", rootCmd.PersistentFlags().Lookup("file"))
	viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("ignore-ambiguity", rootCmd.PersistentFlags().Lookup("ignore-ambiguity"))

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewPlanCommand())
	rootCmd.AddCommand(NewDotCommand())
	rootCmd.AddCommand(NewOrderCommand())
	rootCmd.AddCommand(NewListCommand())
}

// initConfig reads in config file and ENV variables if set
func initConfig() {

	// Environment variables will be prefixed with "LOOM_"
	viper.SetEnvPrefix("loom")
	viper.AutomaticEnv()

	if viper.GetBool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}
