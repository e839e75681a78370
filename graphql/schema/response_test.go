/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package schema

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/dgraph-io/gqlparser/v2/gqlerror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTo_ErrorsAndData(t *testing.T) {
	resp := &Response{
		Errors: gqlerror.List{gqlerror.Errorf("An Error")},
		Data:   json.RawMessage(`{"Some": "Data"}`),
	}

	buf := new(bytes.Buffer)
	_, err := resp.WriteTo(buf)
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"errors":[{"message":"An Error"}], "data": {"Some": "Data"}}`, buf.String())
}

func TestWriteTo_NilResponse(t *testing.T) {
	var resp *Response

	buf := new(bytes.Buffer)
	_, err := resp.WriteTo(buf)
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"errors":[{"message":"Internal error - no response to write."}], "data": null}`,
		buf.String())
}

func TestErrorResponse_WithRequestID(t *testing.T) {
	resp := ErrorResponsef("PersistedQueryNotFound").WithRequestID("abc")

	buf := new(bytes.Buffer)
	_, err := resp.WriteTo(buf)
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"errors":[{"message":"PersistedQueryNotFound"}], "extensions": {"requestID": "abc"}}`,
		buf.String())
}

func TestAsGQLErrors(t *testing.T) {
	coded := &gqlerror.Error{
		Message:    "PersistedQueryNotFound",
		Extensions: map[string]interface{}{"code": "PERSISTED_QUERY_NOT_FOUND"},
	}

	tests := map[string]struct {
		err  error
		want gqlerror.List
	}{
		"nil":       {err: nil, want: nil},
		"plain":     {err: errors.New("boom"), want: gqlerror.List{{Message: "boom"}}},
		"gql error": {err: coded, want: gqlerror.List{coded}},
		"gql list":  {err: gqlerror.List{coded, coded}, want: gqlerror.List{coded, coded}},
		"wrapped gql": {
			err: errors.Wrap(coded, "resolving operation"),
			want: gqlerror.List{{
				Message:    "PersistedQueryNotFound",
				Extensions: map[string]interface{}{"code": "PERSISTED_QUERY_NOT_FOUND"},
			}},
		},
	}

	for name, tcase := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tcase.want, AsGQLErrors(tcase.err))
		})
	}
}
