/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package subscription

import (
	"encoding/json"

	"github.com/dgraph-io/gqlparser/v2/gqlerror"
)

const (
	// ProtocolGraphQLWS is the subprotocol of the legacy subscriptions-transport-ws
	// library.
	ProtocolGraphQLWS = "graphql-ws"
	// ProtocolGraphQLTransportWS is the subprotocol of the graphql-ws library.
	ProtocolGraphQLTransportWS = "graphql-transport-ws"
)

// Message types that carry an operation.
const (
	typeStart     = "start"     // graphql-ws
	typeSubscribe = "subscribe" // graphql-transport-ws
	typeError     = "error"
)

// message is the envelope shared by both protocols.
type message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// negotiate picks the protocol to speak from the ones offered by the client, newest
// protocol first.
func negotiate(offered []string) string {
	var legacy bool
	for _, p := range offered {
		switch p {
		case ProtocolGraphQLTransportWS:
			return ProtocolGraphQLTransportWS
		case ProtocolGraphQLWS:
			legacy = true
		}
	}
	if legacy {
		return ProtocolGraphQLWS
	}
	return ""
}

// carriesOperation reports whether a message of type typ starts an operation in
// protocol.
func carriesOperation(protocol, typ string) bool {
	switch protocol {
	case ProtocolGraphQLTransportWS:
		return typ == typeSubscribe
	case ProtocolGraphQLWS:
		return typ == typeStart
	}
	return false
}

// errorMessage builds the frame that reports gqlErr for operation id.  graphql-ws
// sends a single error object, graphql-transport-ws a list of errors.
func errorMessage(protocol, id string, gqlErr *gqlerror.Error) ([]byte, error) {
	var payload interface{} = gqlErr
	if protocol == ProtocolGraphQLTransportWS {
		payload = gqlerror.List{gqlErr}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(message{ID: id, Type: typeError, Payload: b})
}
