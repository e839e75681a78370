/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hypermodeinc/persisted-operations/graphql/schema"
)

func apollo(hash string) *schema.RequestExtensions {
	return &schema.RequestExtensions{PersistedQuery: &schema.PersistedQuery{Sha256Hash: hash}}
}

func TestDefaultHashFromPayload(t *testing.T) {
	tests := map[string]struct {
		req  *schema.Request
		hash string
		ok   bool
	}{
		"nil request":         {req: nil},
		"empty request":       {req: &schema.Request{}},
		"query only":          {req: &schema.Request{Query: "{ ping }"}},
		"apollo":              {req: &schema.Request{Extensions: apollo("abc")}, hash: "abc", ok: true},
		"relay":               {req: &schema.Request{DocumentID: "xyz"}, hash: "xyz", ok: true},
		"apollo before relay": {req: &schema.Request{Extensions: apollo("abc"), DocumentID: "xyz"}, hash: "abc", ok: true},
		"empty apollo hash":   {req: &schema.Request{Extensions: apollo(""), DocumentID: "xyz"}, hash: "", ok: true},
		"extensions without persisted query": {
			req: &schema.Request{Extensions: &schema.RequestExtensions{}}},
	}
	for name, tcase := range tests {
		t.Run(name, func(t *testing.T) {
			hash, ok := DefaultHashFromPayload(tcase.req)
			require.Equal(t, tcase.ok, ok)
			require.Equal(t, tcase.hash, hash)
		})
	}
}

func TestHashExtractorFor(t *testing.T) {
	req := &schema.Request{Extensions: apollo("abc"), DocumentID: "xyz"}

	for name, want := range map[string]string{"": "abc", "any": "abc", "Apollo": "abc", "relay": "xyz"} {
		extract, err := HashExtractorFor(name)
		require.NoError(t, err)
		hash, ok := extract(req)
		require.True(t, ok)
		require.Equal(t, want, hash, name)
	}

	_, err := HashExtractorFor("sha1")
	require.Error(t, err)
	_, err = HashExtractorFor("header:")
	require.Error(t, err)
}

func TestHeaderHash(t *testing.T) {
	extract, err := HashExtractorFor("Header: X-Operation-Id")
	require.NoError(t, err)

	req := &schema.Request{DocumentID: "xyz", Header: http.Header{}}
	_, ok := extract(req)
	require.False(t, ok)

	req.Header.Set("X-Operation-Id", "abc")
	hash, ok := extract(req)
	require.True(t, ok)
	require.Equal(t, "abc", hash)

	_, ok = extract(nil)
	require.False(t, ok)
}
