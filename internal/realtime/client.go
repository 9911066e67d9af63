// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// # Pump Tuning

const (
	// writeWait is the deadline for a single outbound frame.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead. Pings go out at pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames. Clients only send small control
	// payloads; anything larger is a protocol violation.
	maxMessageSize = 4096

	// sendBufferSize is the per-client outbound buffer. A client that falls
	// this far behind is dropped by the hub.
	sendBufferSize = 64
)

// Client binds one websocket to its connection record and the hub.
//
// All socket I/O goes through the two pumps: ReadPump is the only reader and
// WritePump the only writer, per the gorilla concurrency contract.
type Client struct {
	hub        *Hub
	socket     *websocket.Conn
	connection *Connection
	audiences  []string

	send chan []byte

	// onActivity fires for every inbound frame.
	onActivity func(connectionID string)

	// onDisconnect fires exactly once when the socket dies.
	onDisconnect func(connectionID string)

	mutex      sync.Mutex
	sendClosed bool
	teardown   sync.Once
}

// NewClient wraps an accepted, authenticated websocket.
func NewClient(
	hub *Hub,
	socket *websocket.Conn,
	connection *Connection,
	onActivity func(connectionID string),
	onDisconnect func(connectionID string),
) *Client {
	return &Client{
		hub:        hub,
		socket:     socket,
		connection: connection,
		audiences: []string{
			AudienceUser(connection.UserID),
			AudienceOrganization(connection.OrganizationID),
		},
		send:         make(chan []byte, sendBufferSize),
		onActivity:   onActivity,
		onDisconnect: onDisconnect,
	}
}

// trySend queues a payload without blocking. Returns false when the buffer
// is full, signalling the hub to drop this client.
func (client *Client) trySend(payload []byte) bool {
	client.mutex.Lock()
	defer client.mutex.Unlock()

	if client.sendClosed {
		return true
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel exactly once, ending the write pump.
func (client *Client) closeSend() {
	client.mutex.Lock()
	defer client.mutex.Unlock()

	if !client.sendClosed {
		client.sendClosed = true
		close(client.send)
	}
}

// Close tears the socket down; the pumps then run the disconnect path.
func (client *Client) Close() {
	_ = client.socket.Close()
}

// CloseWithReason sends a close frame carrying the reason, then closes.
func (client *Client) CloseWithReason(reason string) {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = client.socket.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
	_ = client.socket.Close()
}

/*
ReadPump consumes inbound frames until the socket dies.

Description: Every inbound frame counts as user activity. The pump enforces
the read deadline via pong handling and guarantees the disconnect callback
runs exactly once on exit.

Run as a goroutine; one per client.
*/
func (client *Client) ReadPump() {
	defer func() {
		client.hub.Unregister(client)
		client.teardown.Do(func() {
			client.onDisconnect(client.connection.ID)
		})
		_ = client.socket.Close()
	}()

	client.socket.SetReadLimit(maxMessageSize)
	_ = client.socket.SetReadDeadline(time.Now().Add(pongWait))
	client.socket.SetPongHandler(func(string) error {
		return client.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.socket.ReadMessage(); err != nil {
			return
		}

		_ = client.socket.SetReadDeadline(time.Now().Add(pongWait))
		client.onActivity(client.connection.ID)
	}
}

/*
WritePump drains the outbound buffer and keeps the connection alive.

Description: Sends queued events as text frames and pings on a ticker. Exits
when the hub closes the send channel or a write fails.

Run as a goroutine; one per client.
*/
func (client *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.socket.Close()
	}()

	for {
		select {
		case payload, open := <-client.send:
			_ = client.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = client.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = client.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
