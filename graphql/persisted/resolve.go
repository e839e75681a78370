/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hypermodeinc/persisted-operations/graphql/api"
	"github.com/hypermodeinc/persisted-operations/graphql/schema"
)

var tracer = otel.Tracer("github.com/hypermodeinc/persisted-operations/graphql/persisted")

// ResolveOperation returns the document req should execute.  ok is false if there
// is none; callers must then report an error to the client, never execute nothing.
// ResolveOperation never panics.
func (r *Registry) ResolveOperation(ctx context.Context, req *schema.Request, opts *Options,
	bypassAllowed bool) (doc string, ok bool) {

	doc, err := r.Resolve(ctx, req, opts, bypassAllowed)
	return doc, err == nil
}

// Resolve is ResolveOperation returning why resolution failed.  The failure has
// already been logged together with the request.
//
// When the request carries a hash it is looked up with the lookup selected by opts.
// When it carries none and bypassAllowed is set, its literal query is returned as is.
func (r *Registry) Resolve(ctx context.Context, req *schema.Request, opts *Options,
	bypassAllowed bool) (doc string, err error) {

	ctx, span := tracer.Start(ctx, "persisted.ResolveOperation")
	bypassed := false
	defer func() {
		outcome := outcomeOf(err, bypassed)
		resolutions.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("persisted.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			logFailure(ctx, req, err)
		}
		span.End()
	}()
	defer api.PanicHandler(api.RequestID(ctx), func(perr error) {
		doc, err = "", errors.Wrapf(ErrPanic, "%v", perr)
	})

	extract := DefaultHashFromPayload
	if opts != nil && opts.HashFromPayload != nil {
		extract = opts.HashFromPayload
	}
	hash, ok := extract(req)
	if !ok {
		if bypassAllowed && req != nil && req.Query != "" {
			bypassed = true
			return req.Query, nil
		}
		return "", ErrNoHashFound
	}
	if hash == "" {
		return "", errors.Wrap(ErrInvalidHash, "empty hash")
	}
	span.SetAttributes(attribute.String("persisted.hash", hash))

	lookup, err := r.Lookup(opts)
	if err != nil {
		return "", err
	}
	doc, err = lookup(ctx, hash)
	if err != nil {
		return "", err
	}
	if doc == "" {
		return "", errors.Wrapf(ErrUnknownHash, "%q resolved to an empty document", hash)
	}
	return doc, nil
}

func logFailure(ctx context.Context, req *schema.Request, err error) {
	payload, merr := json.Marshal(req)
	if merr != nil {
		payload = []byte(merr.Error())
	}
	glog.Errorf("[%s] Failed to resolve persisted operation: %v. Payload: %s",
		api.RequestID(ctx), err, payload)
	if glog.V(3) {
		glog.Infof("[%s] %+v", api.RequestID(ctx), err)
	}
}
