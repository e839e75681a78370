/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package schema

import (
	"encoding/json"
	"io"

	"github.com/dgraph-io/gqlparser/v2/gqlerror"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// GraphQL spec on response is here:
// https://graphql.github.io/graphql-spec/June2018/#sec-Response

// Response represents a GraphQL response produced by the gateway itself.  Responses
// produced by the executing server are relayed without being decoded.
type Response struct {
	Errors     gqlerror.List
	Data       json.RawMessage
	Extensions *Extensions
}

// Extensions : GraphQL specifies allowing "extensions" in results, but the
// format is up to the implementation.
type Extensions struct {
	RequestID string `json:"requestID,omitempty"`
}

// ErrorResponsef returns a Response containing a single GraphQL error with a
// message obtained by Sprintf-ing the argugments
func ErrorResponsef(format string, args ...interface{}) *Response {
	return &Response{
		Errors: gqlerror.List{gqlerror.Errorf(format, args...)},
	}
}

// ErrorResponse formats an error as a list of GraphQL errors and builds
// a response with that error list and no data.
func ErrorResponse(err error) *Response {
	return &Response{
		Errors: AsGQLErrors(err),
	}
}

// WithRequestID sets the request id reported in the response extensions.
func (r *Response) WithRequestID(id string) *Response {
	if r == nil || id == "" {
		return r
	}
	r.Extensions = &Extensions{RequestID: id}
	return r
}

// WriteTo writes the GraphQL response as unindented JSON to w
// and returns the number of bytes written and error, if any.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	if r == nil {
		i, err := w.Write([]byte(
			`{ "errors": [ { "message": "Internal error - no response to write." } ], ` +
				` "data": null }`))
		return int64(i), err
	}

	js, err := json.Marshal(struct {
		Errors     gqlerror.List   `json:"errors,omitempty"`
		Data       json.RawMessage `json:"data,omitempty"`
		Extensions *Extensions     `json:"extensions,omitempty"`
	}{
		Errors:     r.Errors,
		Data:       r.Data,
		Extensions: r.Extensions,
	})

	if err != nil {
		msg := "Internal error - failed to marshal a valid JSON response"
		glog.Errorf("%+v", errors.Wrap(err, msg))
		js = []byte(`{ "errors": [ { "message": "` + msg + `" } ], "data": null }`)
	}

	i, err := w.Write(js)
	return int64(i), err
}
