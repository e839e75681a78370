/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubcommandsAreBound(t *testing.T) {
	names := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"serve", "check", "version"} {
		require.True(t, names[name], "missing subcommand %s", name)
	}

	for _, sc := range subcommands {
		require.NotNil(t, sc.Conf, sc.Cmd.Name())
		// Root persistent flags are visible through every subcommand config.
		require.True(t, sc.Conf.GetBool("bindall"), sc.Cmd.Name())
	}
}

func TestRootRunsCheckWithDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc123.graphql"),
		[]byte("query Ping { ping }"), 0o644))

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs([]string{"check", dir})
	defer func() {
		RootCmd.SetOut(nil)
		RootCmd.SetArgs(nil)
	}()

	require.NoError(t, RootCmd.Execute())
	require.Contains(t, out.String(), "abc123\t19 B\tquery Ping\n")
	require.Contains(t, out.String(), "1 operations, 19 B\n")
}

func TestRootRejectsArguments(t *testing.T) {
	RootCmd.SetArgs([]string{"nope"})
	defer RootCmd.SetArgs(nil)
	RootCmd.SilenceUsage = true
	defer func() { RootCmd.SilenceUsage = false }()

	require.Error(t, RootCmd.Execute())
}
