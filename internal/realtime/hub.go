// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package realtime

import (
	"context"
	"log/slog"
	"sync"
)

/*
Hub owns the websocket clients connected to THIS process.

It routes audience-addressed events to the sockets it holds and nothing else;
cross-process routing happens one layer up on the [Broadcaster] bus. The hub
serializes membership changes through channels in the style of the classic
chat-hub pattern, with an RWMutex-guarded audience map for concurrent sends.
*/
type Hub struct {
	register   chan *Client
	unregister chan *Client

	mutex sync.RWMutex

	// clients indexes every local client by connection id.
	clients map[string]*Client

	// audiences maps an audience name to its local members.
	audiences map[string]map[*Client]struct{}

	logger *slog.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		clients:    make(map[string]*Client),
		audiences:  make(map[string]map[*Client]struct{}),
		logger:     logger,
	}
}

// Run processes membership changes until the context is cancelled.
//
// Intended to run as a dedicated goroutine per process.
func (hub *Hub) Run(context context.Context) {
	for {
		select {
		case <-context.Done():
			return

		case client := <-hub.register:
			hub.add(client)

		case client := <-hub.unregister:
			hub.remove(client)
		}
	}
}

// Register adds a client to the hub and its audiences.
func (hub *Hub) Register(client *Client) {
	hub.register <- client
}

// Unregister removes a client; safe to call more than once per client.
func (hub *Hub) Unregister(client *Client) {
	hub.unregister <- client
}

func (hub *Hub) add(client *Client) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	hub.clients[client.connection.ID] = client

	for _, audience := range client.audiences {
		members, exists := hub.audiences[audience]
		if !exists {
			members = make(map[*Client]struct{})
			hub.audiences[audience] = members
		}
		members[client] = struct{}{}
	}
}

func (hub *Hub) remove(client *Client) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	current, exists := hub.clients[client.connection.ID]
	if !exists || current != client {
		// Already removed, or the id was reused by a newer client.
		return
	}

	delete(hub.clients, client.connection.ID)

	for _, audience := range client.audiences {
		members, exists := hub.audiences[audience]
		if !exists {
			continue
		}

		delete(members, client)
		if len(members) == 0 {
			delete(hub.audiences, audience)
		}
	}

	client.closeSend()
}

/*
Send delivers an event payload to every local member of an audience.

Description: Clients whose outbound buffer is full are dropped rather than
allowed to stall the hub; their pumps tear the connection down and the usual
disconnect path runs.

Parameters:
  - audience: string
  - payload: []byte
*/
func (hub *Hub) Send(audience string, payload []byte) {

	hub.mutex.RLock()
	members := make([]*Client, 0, len(hub.audiences[audience]))
	for client := range hub.audiences[audience] {
		members = append(members, client)
	}
	hub.mutex.RUnlock()

	for _, client := range members {
		if !client.trySend(payload) {
			hub.logger.Warn("realtime_slow_client_dropped",
				slog.String("connection_id", client.connection.ID),
				slog.String("user_id", client.connection.UserID),
			)
			client.Close()
		}
	}
}

/*
CloseUser force-closes every local connection belonging to a user.

Parameters:
  - userID: string
  - reason: string

Returns:
  - int: Number of local connections closed
*/
func (hub *Hub) CloseUser(userID, reason string) int {

	hub.mutex.RLock()
	var targets []*Client
	for client := range hub.audiences[AudienceUser(userID)] {
		targets = append(targets, client)
	}
	hub.mutex.RUnlock()

	for _, client := range targets {
		client.CloseWithReason(reason)
	}

	return len(targets)
}

// LocalConnections snapshots the connections owned by this process.
func (hub *Hub) LocalConnections() []*Connection {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	connections := make([]*Connection, 0, len(hub.clients))
	for _, client := range hub.clients {
		connections = append(connections, client.connection)
	}
	return connections
}

// CloseConnection force-closes one local connection if this process owns it.
func (hub *Hub) CloseConnection(connectionID, reason string) bool {
	hub.mutex.RLock()
	client, exists := hub.clients[connectionID]
	hub.mutex.RUnlock()

	if !exists {
		return false
	}

	client.CloseWithReason(reason)
	return true
}
