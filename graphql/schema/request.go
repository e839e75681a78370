/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package schema

import (
	"net/http"
)

// A Request represents a GraphQL request as it arrives from a client.  It makes no
// guarantees that the request is valid or that it carries a document at all: clients
// of a persisted operations server usually send only a hash.
type Request struct {
	Query         string                 `json:"query,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	Extensions    *RequestExtensions     `json:"extensions,omitempty"`
	// DocumentID is the identifier used by Relay style clients.
	DocumentID string `json:"documentId,omitempty"`
	// Header holds the transport headers the request arrived with.  It is never sent
	// on, and lets hash extractors and bypass policies read headers when no transport
	// request is at hand.
	Header http.Header `json:"-"`
}

// RequestExtensions represents extensions received in requests
type RequestExtensions struct {
	PersistedQuery *PersistedQuery `json:"persistedQuery,omitempty"`
}

// PersistedQuery represents the query struct received from clients like Apollo
type PersistedQuery struct {
	Version    int    `json:"version,omitempty"`
	Sha256Hash string `json:"sha256Hash,omitempty"`
}

// PersistedHash returns the Apollo style persisted query hash carried by r, if any.
func (r *Request) PersistedHash() string {
	if r == nil || r.Extensions == nil || r.Extensions.PersistedQuery == nil {
		return ""
	}
	return r.Extensions.PersistedQuery.Sha256Hash
}

// WithQuery returns the request that should be sent on for execution once the
// document has been resolved.  Hash bearing fields are dropped so that the
// executing server never tries to resolve the hash itself.
func (r *Request) WithQuery(query string) *Request {
	out := &Request{Query: query}
	if r == nil {
		return out
	}
	out.OperationName = r.OperationName
	out.Variables = r.Variables
	return out
}
