// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Command agentd is the per-node agent task dispatcher process: it
// receives tasks from the master, fans them out across bounded worker
// pools, and reports task and resource state back on a schedule.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentd/taskdispatcher/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agentd",
		Short: "agent task dispatcher",
	}

	rootCmd.AddCommand(newServerCommand())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(version.GetRawInfo())
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
