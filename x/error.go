/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

// Use Check and Checkf for errors that should stop the process at startup.  Errors
// that cross package boundaries are wrapped with errors.Wrapf so that %+v prints
// the stack.

import (
	"log"
	"os"

	"github.com/pkg/errors"
)

// Check logs fatal if err != nil.
func Check(err error) {
	if err != nil {
		err = errors.Wrap(err, "")
		log.Fatalf("%+v", err)
	}
}

// Checkf is Check with extra info.
func Checkf(err error, format string, args ...interface{}) {
	if err != nil {
		err = errors.Wrapf(err, format, args...)
		log.Fatalf("%+v", err)
	}
}

// CheckfNoLog exits on error without any message (to avoid duplicate error messages).
func CheckfNoLog(err error) {
	if err != nil {
		os.Exit(1)
	}
}

// Wrapf is errors.Wrapf that also accepts a nil error.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// Ignore function is used to ignore errors deliberately, while keeping the
// linter happy.
func Ignore(_ error) {
	// Do nothing.
}
