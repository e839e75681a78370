/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/hypermodeinc/persisted-operations/graphql/schema"
)

// HashExtractor finds the operation hash in a request.  ok is false when the request
// carries no hash.
type HashExtractor func(req *schema.Request) (hash string, ok bool)

// ApolloHash reads extensions.persistedQuery.sha256Hash.  A persistedQuery extension
// with an empty hash still counts as a hash, so the request fails instead of falling
// back to documentId or to its literal query.
func ApolloHash(req *schema.Request) (string, bool) {
	if req == nil || req.Extensions == nil || req.Extensions.PersistedQuery == nil {
		return "", false
	}
	return req.Extensions.PersistedQuery.Sha256Hash, true
}

// HeaderHash returns an extractor reading the hash from the request header name.
func HeaderHash(name string) HashExtractor {
	return func(req *schema.Request) (string, bool) {
		if req == nil || req.Header == nil {
			return "", false
		}
		h := req.Header.Get(name)
		return h, h != ""
	}
}

// RelayHash reads documentId.
func RelayHash(req *schema.Request) (string, bool) {
	if req == nil || req.DocumentID == "" {
		return "", false
	}
	return req.DocumentID, true
}

// DefaultHashFromPayload returns the Apollo hash if there is one, otherwise the
// Relay document id.
func DefaultHashFromPayload(req *schema.Request) (string, bool) {
	if h, ok := ApolloHash(req); ok {
		return h, true
	}
	return RelayHash(req)
}

// HashExtractorFor returns the extractor registered under name: "apollo", "relay",
// "header:<Header-Name>", or "any" (also the empty string) for DefaultHashFromPayload.
func HashExtractorFor(name string) (HashExtractor, error) {
	name = strings.TrimSpace(name)
	if prefix, header, found := strings.Cut(name, ":"); found && strings.EqualFold(prefix, "header") {
		if header = strings.TrimSpace(header); header == "" {
			return nil, errors.Errorf("hash source %q names no header", name)
		}
		return HeaderHash(header), nil
	}
	switch strings.ToLower(name) {
	case "", "any":
		return DefaultHashFromPayload, nil
	case "apollo":
		return ApolloHash, nil
	case "relay":
		return RelayHash, nil
	default:
		return nil, errors.Errorf("unknown hash source %q, use one of apollo, relay, any, header:<name>", name)
	}
}
