/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package schema

import (
	"github.com/dgraph-io/gqlparser/v2/gqlerror"
	"github.com/pkg/errors"
)

// AsGQLErrors formats an error as a list of GraphQL errors.
// A gqlerror.List gets returned as is, a *gqlerror.Error gets returned as a one
// item list, and all other errors get printed into a *gqlerror.Error.  Errors that
// wrap a *gqlerror.Error (with pkg/errors or fmt) are reported as the wrapped error,
// the wrapping context is for logs only.  A nil input results in nil output.
func AsGQLErrors(err error) gqlerror.List {
	if err == nil {
		return nil
	}

	switch e := err.(type) {
	case *gqlerror.Error:
		return gqlerror.List{e}
	case gqlerror.List:
		return e
	}

	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlerror.List{&gqlerror.Error{
			Message:    gqlErr.Message,
			Path:       gqlErr.Path,
			Locations:  gqlErr.Locations,
			Extensions: gqlErr.Extensions,
		}}
	}
	return gqlerror.List{&gqlerror.Error{Message: err.Error()}}
}
