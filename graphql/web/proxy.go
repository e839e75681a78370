/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package web

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/golang/glog"

	"github.com/hypermodeinc/persisted-operations/graphql/api"
	"github.com/hypermodeinc/persisted-operations/graphql/schema"
)

// NewProxy returns a handler that sends requests to the GraphQL server at upstream.
// Requests go to upstream's path, whatever path they arrived on.
func NewProxy(upstream *url.URL) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.URL.Path = upstream.Path
			pr.Out.URL.RawPath = upstream.RawPath
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			requestID := api.RequestID(r.Context())
			glog.Errorf("[%s] GraphQL upstream %s failed: %v", requestID, upstream, err)
			writeStatus(w, schema.ErrorResponsef("GraphQL upstream unavailable").
				WithRequestID(requestID),
				strings.Contains(r.Header.Get("Accept-Encoding"), "gzip"), http.StatusBadGateway)
		},
	}
}
