/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hypermodeinc/persisted-operations/graphql/api"
	"github.com/hypermodeinc/persisted-operations/graphql/schema"
)

func TestResolveOperation_EndToEnd(t *testing.T) {
	static := &Options{Operations: map[string]string{"abc123": pingDoc}}

	tests := map[string]struct {
		req    *schema.Request
		opts   *Options
		bypass bool
		doc    string
		ok     bool
	}{
		"apollo hash from static map": {
			req:  &schema.Request{Extensions: apollo("abc123")},
			opts: static, doc: pingDoc, ok: true,
		},
		"relay id without any strategy": {
			req:  &schema.Request{DocumentID: "xyz"},
			opts: &Options{},
		},
		"literal query with bypass": {
			req:    &schema.Request{Query: pingDoc},
			opts:   &Options{AllowUnpersisted: AllowAlways(true)},
			bypass: true, doc: pingDoc, ok: true,
		},
		"literal query without bypass": {
			req:  &schema.Request{Query: pingDoc},
			opts: static,
		},
		"bypass without a query": {
			req:    &schema.Request{},
			opts:   static,
			bypass: true,
		},
		"hash wins over bypass": {
			req:    &schema.Request{Query: "query { other }", Extensions: apollo("abc123")},
			opts:   static,
			bypass: true, doc: pingDoc, ok: true,
		},
		"empty apollo hash with bypass": {
			req:    &schema.Request{Query: pingDoc, Extensions: apollo(""), DocumentID: "abc123"},
			opts:   static,
			bypass: true,
		},
		"unknown hash with bypass": {
			req:    &schema.Request{Query: pingDoc, Extensions: apollo("nope")},
			opts:   static,
			bypass: true,
		},
		"nil request": {req: nil, opts: static, bypass: true},
		"nil options": {req: &schema.Request{Extensions: apollo("abc123")}},
		"conflicting options": {
			req:  &schema.Request{Extensions: apollo("abc123")},
			opts: &Options{Operations: map[string]string{}, Getter: getter},
		},
	}

	reg := NewRegistry()
	for name, tcase := range tests {
		t.Run(name, func(t *testing.T) {
			doc, ok := reg.ResolveOperation(context.Background(), tcase.req, tcase.opts, tcase.bypass)
			require.Equal(t, tcase.ok, ok)
			require.Equal(t, tcase.doc, doc)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	reg := NewRegistry()
	ctx := api.WithRequestID(context.Background(), "test")

	tests := map[string]struct {
		req  *schema.Request
		opts *Options
		want error
	}{
		"no hash":        {req: &schema.Request{Query: pingDoc}, opts: &Options{}, want: ErrNoHashFound},
		"not configured": {req: &schema.Request{DocumentID: "xyz"}, opts: &Options{}, want: ErrNotConfigured},
		"unknown hash": {req: &schema.Request{DocumentID: "xyz"},
			opts: &Options{Operations: map[string]string{}}, want: ErrUnknownHash},
		"conflict": {req: &schema.Request{DocumentID: "xyz"},
			opts: &Options{Operations: map[string]string{}, Directory: "ops"},
			want: ErrConfigurationConflict},
		"getter panics": {req: &schema.Request{DocumentID: "xyz"},
			opts: &Options{Getter: func(context.Context, string) (string, error) {
				panic("getter exploded")
			}},
			want: ErrPanic},
		"extractor panics": {req: &schema.Request{DocumentID: "xyz"},
			opts: &Options{Operations: map[string]string{}, HashFromPayload: func(*schema.Request) (string, bool) {
				panic("extractor exploded")
			}},
			want: ErrPanic},
		"empty apollo hash": {req: &schema.Request{Extensions: apollo(""), DocumentID: "xyz"},
			opts: &Options{Operations: map[string]string{"xyz": pingDoc}}, want: ErrInvalidHash},
		"empty document": {req: &schema.Request{DocumentID: "xyz"},
			opts: &Options{Getter: func(context.Context, string) (string, error) { return "", nil }},
			want: ErrUnknownHash},
	}

	for name, tcase := range tests {
		t.Run(name, func(t *testing.T) {
			doc, err := reg.Resolve(ctx, tcase.req, tcase.opts, false)
			require.Empty(t, doc)
			require.True(t, errors.Is(err, tcase.want), "got %v", err)
		})
	}
}

func TestResolve_GetterError(t *testing.T) {
	boom := errors.New("store unavailable")
	opts := &Options{Getter: func(context.Context, string) (string, error) { return "", boom }}

	_, err := NewRegistry().Resolve(context.Background(),
		&schema.Request{DocumentID: "xyz"}, opts, true)
	require.True(t, errors.Is(err, boom))
	require.Equal(t, OutcomeError, outcomeOf(err, false))
}

func TestResolve_HashOverride(t *testing.T) {
	opts := &Options{
		Operations: map[string]string{"from-header": pingDoc},
		HashFromPayload: func(req *schema.Request) (string, bool) {
			h := req.Header.Get("X-Operation")
			return h, h != ""
		},
	}
	req := &schema.Request{Header: map[string][]string{"X-Operation": {"from-header"}}}

	doc, ok := NewRegistry().ResolveOperation(context.Background(), req, opts, false)
	require.True(t, ok)
	require.Equal(t, pingDoc, doc)

	// An override that finds nothing makes the request hashless, even if it carries a
	// hash the default extractor would have found.
	req = &schema.Request{Extensions: apollo("from-header")}
	_, ok = NewRegistry().ResolveOperation(context.Background(), req, opts, false)
	require.False(t, ok)
}

func TestResolve_Directory(t *testing.T) {
	fsys := newTestFS(map[string]string{"deadbeef.graphql": pingDoc})
	fsys.gate = make(chan struct{})
	reg := NewRegistry(WithFS(fsys.open), WithRefreshInterval(time.Hour))
	t.Cleanup(reg.Close)
	opts := &Options{Directory: "ops"}
	req := &schema.Request{Extensions: apollo("deadbeef")}

	_, err := reg.Resolve(context.Background(), req, opts, false)
	require.True(t, errors.Is(err, ErrUnknownHash), err)

	close(fsys.gate)
	<-reg.Ready("ops")
	doc, ok := reg.ResolveOperation(context.Background(), req, opts, false)
	require.True(t, ok)
	require.Equal(t, pingDoc, doc)
}

func TestResolve_Metrics(t *testing.T) {
	reg := NewRegistry()
	opts := &Options{Operations: map[string]string{"abc123": pingDoc}}
	count := func(outcome string) float64 {
		return testutil.ToFloat64(resolutions.WithLabelValues(outcome))
	}
	persisted, unknown, bypassed := count(OutcomePersisted), count(OutcomeUnknownHash),
		count(OutcomeBypassed)

	reg.ResolveOperation(context.Background(), &schema.Request{DocumentID: "abc123"}, opts, false)
	reg.ResolveOperation(context.Background(), &schema.Request{DocumentID: "nope"}, opts, false)
	reg.ResolveOperation(context.Background(), &schema.Request{Query: pingDoc}, opts, true)

	require.Equal(t, persisted+1, count(OutcomePersisted))
	require.Equal(t, unknown+1, count(OutcomeUnknownHash))
	require.Equal(t, bypassed+1, count(OutcomeBypassed))
}

func TestAsGQLError(t *testing.T) {
	notSupported := AsGQLError(errors.Wrap(ErrNotConfigured, "x"))
	require.Equal(t, NotSupportedMessage, notSupported.Message)
	require.Equal(t, "PERSISTED_QUERY_NOT_SUPPORTED", notSupported.Extensions["code"])

	for _, err := range []error{ErrUnknownHash, ErrInvalidHash, ErrNoHashFound, ErrPanic} {
		gqlErr := AsGQLError(err)
		require.Equal(t, NotFoundMessage, gqlErr.Message)
		require.Equal(t, "PERSISTED_QUERY_NOT_FOUND", gqlErr.Extensions["code"])
	}
}
