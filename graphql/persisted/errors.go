/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"github.com/dgraph-io/gqlparser/v2/gqlerror"
	"github.com/pkg/errors"
)

var (
	// ErrConfigurationConflict is returned when more than one lookup strategy is
	// configured.  It is the only error that is reported at configuration time.
	ErrConfigurationConflict = errors.New("persisted operations configuration conflict")
	// ErrNotConfigured is returned by lookups when no lookup strategy is configured.
	ErrNotConfigured = errors.New("persisted operations are not configured")
	// ErrInvalidHash is returned when a hash contains characters outside [a-zA-Z0-9_-].
	ErrInvalidHash = errors.New("invalid operation hash")
	// ErrUnknownHash is returned when no operation is registered under a hash.
	ErrUnknownHash = errors.New("unknown operation hash")
	// ErrNoHashFound is returned when a request carries no hash and may not bypass
	// the allowlist.
	ErrNoHashFound = errors.New("no operation hash found in request")
	// ErrPanic wraps panics trapped while resolving an operation.
	ErrPanic = errors.New("panic while resolving operation")
)

const (
	// NotFoundMessage is the client facing message for unresolved operations, it
	// matches what Apollo clients look for before retrying with the full query.
	NotFoundMessage = "PersistedQueryNotFound"
	// NotSupportedMessage is the client facing message when the server has no
	// persisted operations configured.
	NotSupportedMessage = "PersistedQueryNotSupported"
)

// AsGQLError converts a resolution failure into the error reported to clients.  The
// details of err are never exposed; they are logged by the resolver.
func AsGQLError(err error) *gqlerror.Error {
	if errors.Is(err, ErrNotConfigured) {
		return &gqlerror.Error{
			Message:    NotSupportedMessage,
			Extensions: map[string]interface{}{"code": "PERSISTED_QUERY_NOT_SUPPORTED"},
		}
	}
	return &gqlerror.Error{
		Message:    NotFoundMessage,
		Extensions: map[string]interface{}{"code": "PERSISTED_QUERY_NOT_FOUND"},
	}
}
