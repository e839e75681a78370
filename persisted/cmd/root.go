/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package cmd

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hypermodeinc/persisted-operations/persisted/cmd/check"
	"github.com/hypermodeinc/persisted-operations/persisted/cmd/serve"
	"github.com/hypermodeinc/persisted-operations/persisted/cmd/version"
	"github.com/hypermodeinc/persisted-operations/x"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "persisted",
	Short: "Persisted GraphQL operations gateway",
	Long: `
persisted sits in front of a GraphQL server and replaces operation hashes sent by
clients with the documents they stand for. Documents come from a manifest or from a
directory of <hash>.graphql files. Requests without a known hash are rejected unless
the unpersisted policy lets them through.
` + x.BuildDetails(),
	Args: cobra.NoArgs,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	goflag.Parse()
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var rootConf = viper.New()

var subcommands = []*x.SubCommand{
	&serve.Serve, &check.Check, &version.Version,
}

func init() {
	RootCmd.PersistentFlags().String("profile_mode", "",
		"Enable profiling mode, one of [cpu, mem, mutex, block]")
	RootCmd.PersistentFlags().Int("block_rate", 0,
		"Block profiling rate. Must be used along with block profile_mode")
	RootCmd.PersistentFlags().String("config", "",
		"Configuration file. Takes precedence over default values, but is "+
			"overridden to values set with environment variables and flags.")
	RootCmd.PersistentFlags().Bool("bindall", true,
		"Use 0.0.0.0 instead of localhost to bind to all addresses on local machine.")
	x.Check(rootConf.BindPFlags(RootCmd.PersistentFlags()))

	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	// Always set stderrthreshold=0. Don't let users set it themselves.
	x.Check(flag.Set("stderrthreshold", "0"))
	x.Check(flag.CommandLine.MarkDeprecated("stderrthreshold",
		"persisted always sets this flag to 0. It can't be overwritten."))

	for _, sc := range subcommands {
		RootCmd.AddCommand(sc.Cmd)
		x.Check(sc.Bind(RootCmd))
	}
	cobra.OnInitialize(func() {
		cfg := rootConf.GetString("config")
		if cfg == "" {
			return
		}
		for _, sc := range subcommands {
			sc.Conf.SetConfigFile(cfg)
			x.Check(x.Wrapf(sc.Conf.ReadInConfig(), "reading config"))
		}
	})
}
