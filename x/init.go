/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"fmt"
	"os"

	"github.com/golang/glog"
)

var (
	// These variables are set using -ldflags
	persistedVersion string
	gitBranch        string
	lastCommitSHA    string
	lastCommitTime   string
)

func BuildDetails() string {
	return fmt.Sprintf(`
Persisted operations version : %v
Commit SHA-1                 : %v
Commit timestamp             : %v
Branch                       : %v

Licensed under the Apache License, Version 2.0.

`,
		Version(), lastCommitSHA, lastCommitTime, gitBranch)
}

// PrintVersion prints the build details to the log.
func PrintVersion() {
	glog.Infof("\n%s\n", BuildDetails())
}

// PrintVersionOnly prints version and other helpful information if --version.
func PrintVersionOnly() {
	fmt.Println(BuildDetails())
	os.Exit(0)
}

// Version returns the version set at build time, or "dev".
func Version() string {
	if persistedVersion == "" {
		return "dev"
	}
	return persistedVersion
}
