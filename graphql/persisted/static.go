/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"context"

	"github.com/pkg/errors"
)

// StaticLookup returns a lookup backed by ops.  ops must not be modified afterwards.
func StaticLookup(ops map[string]string) LookupFunc {
	return func(_ context.Context, hash string) (string, error) {
		doc, ok := ops[hash]
		if !ok {
			return "", errors.Wrapf(ErrUnknownHash, "%q", hash)
		}
		return doc, nil
	}
}
