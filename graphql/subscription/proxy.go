/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package subscription serves persisted operations over websockets.  Connections
// are relayed to the executing server frame by frame; the frames that start an
// operation get their payload resolved on the way.
package subscription

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hypermodeinc/persisted-operations/graphql/api"
	"github.com/hypermodeinc/persisted-operations/graphql/persisted"
	"github.com/hypermodeinc/persisted-operations/graphql/schema"
)

// forwardedHeaders are copied from the client handshake to the upstream handshake.
var forwardedHeaders = []string{"Authorization", "Cookie", api.RequestIDHeader}

// Handler relays GraphQL websocket connections to an upstream server.
type Handler struct {
	reg      *persisted.Registry
	opts     *persisted.Options
	upstream *url.URL
	upgrader websocket.Upgrader
	dialer   websocket.Dialer
}

// NewHandler returns a Handler relaying to the websocket endpoint at upstream.  It
// fails if opts sets more than one lookup strategy.
func NewHandler(reg *persisted.Registry, opts *persisted.Options, upstream *url.URL) (*Handler, error) {
	if _, err := reg.Lookup(opts); err != nil {
		return nil, err
	}
	return &Handler{
		reg:      reg,
		opts:     opts,
		upstream: upstream,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// ServeHTTP upgrades the client connection, dials the upstream with the same
// subprotocol and relays frames until either side goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := api.WithRequestID(r.Context(), r.Header.Get(api.RequestIDHeader))
	requestID := api.RequestID(ctx)

	protocol := negotiate(websocket.Subprotocols(r))
	if protocol == "" {
		http.Error(w, "Unsupported websocket subprotocol, use graphql-transport-ws or graphql-ws",
			http.StatusBadRequest)
		return
	}

	header := http.Header{}
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			header.Set(name, v)
		}
	}
	header.Set(api.RequestIDHeader, requestID)
	dialer := h.dialer
	dialer.Subprotocols = []string{protocol}
	upConn, resp, err := dialer.DialContext(ctx, h.upstream.String(), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		glog.Errorf("[%s] Dialing GraphQL websocket upstream %s failed (status %d): %v",
			requestID, h.upstream, status, err)
		http.Error(w, "GraphQL upstream unavailable", http.StatusBadGateway)
		return
	}

	clientConn, err := h.upgrader.Upgrade(w, r,
		http.Header{"Sec-Websocket-Protocol": {protocol}})
	if err != nil {
		// Upgrade has replied to the client already.
		glog.V(2).Infof("[%s] Websocket upgrade failed: %v", requestID, err)
		upConn.Close()
		return
	}

	c := &relay{
		Handler:  h,
		ctx:      ctx,
		request:  r,
		protocol: protocol,
		client:   clientConn,
		up:       upConn,
	}
	c.run()
}

// relay is one proxied connection.
type relay struct {
	*Handler
	ctx      context.Context
	request  *http.Request
	protocol string

	client    *websocket.Conn
	clientMu  sync.Mutex // gorilla allows one concurrent writer
	up        *websocket.Conn
	closeOnce sync.Once
}

func (c *relay) run() {
	requestID := api.RequestID(c.ctx)
	glog.V(2).Infof("[%s] Relaying %s websocket to %s", requestID, c.protocol, c.upstream)

	var g errgroup.Group
	g.Go(c.clientToUpstream)
	g.Go(c.upstreamToClient)
	err := g.Wait()
	if err != nil && !isClosed(err) {
		glog.Warningf("[%s] Websocket relay stopped: %v", requestID, err)
	}
}

// clientToUpstream forwards client frames, resolving the operation of the ones that
// start one.  Frames that fail to resolve are answered with an error frame and never
// reach the upstream.
func (c *relay) clientToUpstream() error {
	defer c.close()
	for {
		typ, data, err := c.client.ReadMessage()
		if err != nil {
			return err
		}
		if typ == websocket.TextMessage {
			var reply []byte
			data, reply = c.rewrite(data)
			if reply != nil {
				if err := c.writeClient(websocket.TextMessage, reply); err != nil {
					return err
				}
				continue
			}
		}
		if err := c.up.WriteMessage(typ, data); err != nil {
			return err
		}
	}
}

func (c *relay) upstreamToClient() error {
	defer c.close()
	for {
		typ, data, err := c.up.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				// Pass the upstream close reason on to the client.
				msg := websocket.FormatCloseMessage(ce.Code, ce.Text)
				_ = c.writeControl(websocket.CloseMessage, msg)
			}
			return err
		}
		if err := c.writeClient(typ, data); err != nil {
			return err
		}
	}
}

// rewrite returns the frame to forward, or the reply to send back instead.
func (c *relay) rewrite(data []byte) (forward, reply []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil || !carriesOperation(c.protocol, msg.Type) {
		return data, nil
	}

	req := &schema.Request{}
	if err := json.Unmarshal(msg.Payload, req); err != nil {
		return nil, c.replyError(msg.ID, errors.Wrap(err, "while decoding operation payload"))
	}
	req.Header = c.request.Header

	bypass := persisted.ShouldBypass(c.opts, c.request, req)
	doc, err := c.reg.Resolve(c.ctx, req, c.opts, bypass)
	if err != nil {
		return nil, c.replyError(msg.ID, err)
	}

	payload, err := json.Marshal(req.WithQuery(doc))
	if err != nil {
		return nil, c.replyError(msg.ID, err)
	}
	msg.Payload = payload
	out, err := json.Marshal(msg)
	if err != nil {
		return nil, c.replyError(msg.ID, err)
	}
	return out, nil
}

func (c *relay) replyError(id string, err error) []byte {
	reply, merr := errorMessage(c.protocol, id, persisted.AsGQLError(err))
	if merr != nil {
		// Cannot happen for the values built by AsGQLError.
		glog.Errorf("[%s] While encoding websocket error: %v", api.RequestID(c.ctx), merr)
		return []byte(`{"type":"error"}`)
	}
	return reply
}

func (c *relay) writeClient(typ int, data []byte) error {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	return c.client.WriteMessage(typ, data)
}

func (c *relay) writeControl(typ int, data []byte) error {
	return c.client.WriteControl(typ, data, time.Now().Add(time.Second))
}

func (c *relay) close() {
	c.closeOnce.Do(func() {
		c.client.Close()
		c.up.Close()
	})
}

func isClosed(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
