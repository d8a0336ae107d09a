package testutil

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a websocket test client for subscription integration tests.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// DialWS connects to the websocket endpoint at serverURL + path with query.
//
// Precondition: serverURL must be an http:// URL of a running test server.
// Postcondition: Returns the client and the handshake response; on a failed
// handshake the client is nil and the response carries the rejection status.
func DialWS(t *testing.T, serverURL, path string, query url.Values) (*WSClient, *http.Response, error) {
	t.Helper()
	start := time.Now()

	u := "ws" + strings.TrimPrefix(serverURL, "http") + path + "?" + query.Encode()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(u, nil)
	if err != nil {
		return nil, resp, err
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("websocket client connected to %s [%s]", path, time.Since(start))
	return &WSClient{conn: conn, t: t}, resp, nil
}

// ReadMessage reads the next JSON message into a generic map.
//
// Postcondition: Returns the decoded message, or fails the test on timeout.
func (c *WSClient) ReadMessage(timeout time.Duration) map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	var msg map[string]any
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.t.Fatalf("reading message: %v", err)
	}
	return msg
}

// ReadUntil reads messages until one has the given type and returns it.
//
// Precondition: msgType must be non-empty.
// Postcondition: Returns the matching message, or fails on timeout or close.
func (c *WSClient) ReadUntil(msgType string, timeout time.Duration) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	_ = c.conn.SetReadDeadline(deadline)

	var seen []string
	for {
		var msg map[string]any
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.t.Fatalf("reading until %q: saw %v, error: %v", msgType, seen, err)
		}
		typ, _ := msg["type"].(string)
		if typ == msgType {
			return msg
		}
		seen = append(seen, typ)
	}
}

// ExpectClosed waits for the server to close the connection.
func (c *WSClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				c.t.Fatalf("connection still open after %s", timeout)
			}
			return
		}
	}
}

// Send writes v as a JSON text message.
//
// Postcondition: v is written to the connection or the test fails.
func (c *WSClient) Send(v any) {
	c.t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		c.t.Fatalf("encoding %v: %v", v, err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.t.Fatalf("sending %s: %v", b, err)
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	c.conn.Close()
}
