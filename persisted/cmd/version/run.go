/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package version

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hypermodeinc/persisted-operations/x"
)

// Version is the sub-command invoked when running "persisted version".
var Version x.SubCommand

func init() {
	Version.Cmd = &cobra.Command{
		Use:   "version",
		Short: "Prints the persisted version details",
		Long:  "Version prints the persisted version as reported by the build details.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(x.BuildDetails())
			os.Exit(0)
		},
	}
	Version.EnvPrefix = "PERSISTED_VERSION"
}
