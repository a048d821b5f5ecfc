// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmxstream

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

// ErrConnectionClosed is returned by Next after the stream ends
var ErrConnectionClosed = errors.New("dmxstream: connection closed")

// DialOptions configures a stream connection
type DialOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
	Encoding      Encoding
}

// Client reads events from a remote dmxstat stream
type Client struct {
	conn   *websocket.Conn
	closed atomic.Bool
}

// Dial connects to a ws:// or wss:// stream endpoint with optional HTTP
// Basic auth
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	q := u.Query()
	q.Set("encoding", opts.Encoding.String())
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return &Client{conn: conn}, nil
}

// Next blocks until the next event arrives
func (c *Client) Next() (dmx.Event, error) {
	if c.closed.Load() {
		return dmx.Event{}, ErrConnectionClosed
	}

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			// a local Close also ends the stream cleanly
			if c.closed.Swap(true) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return dmx.Event{}, ErrConnectionClosed
			}
			return dmx.Event{}, err
		}

		switch messageType {
		case websocket.BinaryMessage:
			return DecodeCBOR(data)
		case websocket.TextMessage:
			return DecodeJSON(data)
		}
	}
}

// Close closes the connection
func (c *Client) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}
