/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package web serves persisted operations over HTTP.  It sits in front of the server
// that executes GraphQL: requests are resolved to their persisted document and sent on,
// requests that do not resolve are answered with a GraphQL error.
package web

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang/glog"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/hypermodeinc/persisted-operations/graphql/api"
	"github.com/hypermodeinc/persisted-operations/graphql/persisted"
	"github.com/hypermodeinc/persisted-operations/graphql/schema"
)

type persistedHandler struct {
	reg  *persisted.Registry
	opts *persisted.Options
	next http.Handler
}

// NewHandler returns a handler that resolves the operation of every request with reg
// and opts and passes the request, rewritten to carry the resolved document, to next.
// It fails if opts sets more than one lookup strategy.
func NewHandler(reg *persisted.Registry, opts *persisted.Options, next http.Handler) (http.Handler, error) {
	if _, err := reg.Lookup(opts); err != nil {
		return nil, err
	}
	ph := &persistedHandler{reg: reg, opts: opts, next: next}
	return requestIDHandler(recoveryHandler(ph)), nil
}

// ServeHTTP resolves the operation in r and hands the rewritten request to the next
// handler.  GET requests stay GET requests, everything else goes on as a JSON POST.
func (ph *persistedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := api.RequestID(ctx)
	acceptGzip := strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")

	gqlReq, err := getRequest(r)
	if err != nil {
		write(w, schema.ErrorResponse(err).WithRequestID(requestID), acceptGzip)
		return
	}
	gqlReq.Header = r.Header

	bypass := persisted.ShouldBypass(ph.opts, r, gqlReq)
	doc, err := ph.reg.Resolve(ctx, gqlReq, ph.opts, bypass)
	if err != nil {
		write(w, schema.ErrorResponse(persisted.AsGQLError(err)).WithRequestID(requestID),
			acceptGzip)
		return
	}

	out, err := executionRequest(r, gqlReq.WithQuery(doc))
	if err != nil {
		glog.Errorf("[%s] While building execution request: %+v", requestID, err)
		write(w, schema.ErrorResponsef("Internal Server Error").WithRequestID(requestID),
			acceptGzip)
		return
	}
	ph.next.ServeHTTP(w, out)
}

// executionRequest clones r so that it carries req instead of what the client sent.
func executionRequest(r *http.Request, req *schema.Request) (*http.Request, error) {
	out := r.Clone(r.Context())
	out.Header.Del("Content-Encoding")
	out.Header.Del("Content-Length")

	if r.Method == http.MethodGet {
		params := url.Values{}
		params.Set("query", req.Query)
		if req.OperationName != "" {
			params.Set("operationName", req.OperationName)
		}
		if len(req.Variables) > 0 {
			vars, err := json.Marshal(req.Variables)
			if err != nil {
				return nil, errors.Wrap(err, "while encoding variables")
			}
			params.Set("variables", string(vars))
		}
		out.URL.RawQuery = params.Encode()
		out.Body = http.NoBody
		out.ContentLength = 0
		return out, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "while encoding request body")
	}
	out.Method = http.MethodPost
	out.Header.Set("Content-Type", "application/json")
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return out, nil
}

// write chooses between the http response writer and gzip writer
// and sends the schema response using that.
func write(w http.ResponseWriter, rr *schema.Response, acceptGzip bool) {
	writeStatus(w, rr, acceptGzip, http.StatusOK)
}

func writeStatus(w http.ResponseWriter, rr *schema.Response, acceptGzip bool, status int) {
	var out io.Writer = w

	w.Header().Set("Content-Type", "application/json")
	// If the receiver accepts gzip, then we would update the writer
	// and send gzipped content instead.
	if acceptGzip {
		w.Header().Set("Content-Encoding", "gzip")
		gzw := gzip.NewWriter(w)
		defer gzw.Close()
		out = gzw
	}
	w.WriteHeader(status)

	if _, err := rr.WriteTo(out); err != nil {
		glog.Error(err)
	}
}

type gzreadCloser struct {
	*gzip.Reader
	io.Closer
}

func (gz gzreadCloser) Close() error {
	err := gz.Reader.Close()
	if err != nil {
		return err
	}
	return gz.Closer.Close()
}

func getRequest(r *http.Request) (*schema.Request, error) {
	gqlReq := &schema.Request{}

	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to parse gzip")
		}
		r.Body = gzreadCloser{zr, r.Body}
	}

	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		gqlReq.Query = query.Get("query")
		gqlReq.OperationName = query.Get("operationName")
		gqlReq.DocumentID = query.Get("documentId")
		if err := decodeParam(query, "variables", &gqlReq.Variables); err != nil {
			return nil, err
		}
		if err := decodeParam(query, "extensions", &gqlReq.Extensions); err != nil {
			return nil, err
		}
	case http.MethodPost:
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			return nil, errors.Wrap(err, "unable to parse media type")
		}

		switch mediaType {
		case "application/json":
			d := json.NewDecoder(r.Body)
			d.UseNumber()
			if err = d.Decode(&gqlReq); err != nil {
				return nil, errors.Wrap(err, "Not a valid GraphQL request body")
			}
		default:
			// https://graphql.org/learn/serving-over-http/#post-request says:
			// "A standard GraphQL POST request should use the application/json
			// content type ..."
			return nil, errors.New(
				"Unrecognised Content-Type.  Please use application/json for GraphQL requests")
		}
	default:
		return nil,
			errors.New("Unrecognised request method.  Please use GET or POST for GraphQL requests")
	}

	return gqlReq, nil
}

func decodeParam(query url.Values, name string, v interface{}) error {
	values, ok := query[name]
	if !ok || values[0] == "" {
		return nil
	}
	d := json.NewDecoder(strings.NewReader(values[0]))
	d.UseNumber()
	if err := d.Decode(v); err != nil {
		return errors.Wrapf(err, "Not a valid GraphQL request, bad %s parameter", name)
	}
	return nil
}

func requestIDHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := api.WithRequestID(r.Context(), r.Header.Get(api.RequestIDHeader))
		r = r.WithContext(ctx)
		r.Header.Set(api.RequestIDHeader, api.RequestID(ctx))
		next.ServeHTTP(w, r)
	})
}

func recoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer api.PanicHandler(api.RequestID(r.Context()),
			func(err error) {
				rr := schema.ErrorResponse(err)
				write(w, rr, strings.Contains(r.Header.Get("Accept-Encoding"), "gzip"))
			})

		next.ServeHTTP(w, r)
	})
}
