/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"context"

	"github.com/pkg/errors"
)

// LookupFunc maps an operation hash to the operation document registered under it.
type LookupFunc func(ctx context.Context, hash string) (string, error)

// Getter is a caller supplied lookup.  Errors and panics it produces are trapped by
// the resolver and turn the request into an unresolved one.
type Getter func(ctx context.Context, hash string) (string, error)

// Options configures how operations are resolved for one server.  At most one of
// Operations, Getter and Directory may be set.  Setting none of them is allowed, every
// lookup then fails with ErrNotConfigured, which is fine when AllowUnpersisted always
// applies.
//
// Options are memoised by pointer identity in a Registry, so build one Options value
// per server and reuse it.
type Options struct {
	// Operations is a fixed hash -> document table.
	Operations map[string]string
	// Getter resolves hashes by calling into user code.
	Getter Getter
	// Directory holds one <hash>.graphql file per persisted operation.
	Directory string

	// HashFromPayload overrides DefaultHashFromPayload.
	HashFromPayload HashExtractor
	// AllowUnpersisted decides per request whether a literal query may be executed
	// instead of a persisted one.  Nil never allows it.
	AllowUnpersisted BypassPolicy
}

func (o *Options) strategies() int {
	if o == nil {
		return 0
	}
	n := 0
	if o.Operations != nil {
		n++
	}
	if o.Getter != nil {
		n++
	}
	if o.Directory != "" {
		n++
	}
	return n
}

// Validate returns ErrConfigurationConflict if more than one lookup strategy is set.
func (o *Options) Validate() error {
	if o.strategies() > 1 {
		return errors.Wrapf(ErrConfigurationConflict,
			"only one of operations, getter and directory may be set")
	}
	return nil
}
