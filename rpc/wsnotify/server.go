// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wsnotify publishes the block processor's tip-changed
// notifications to websocket subscribers. It is the outbound half of the
// consensus core's bounded-channel interface: the chain pushes
// notifications into a buffered channel, this server drains it and fans
// the messages out as JSON. The full JSON-RPC command surface is an
// external collaborator; only the notification envelope lives here.
package wsnotify

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/solidus-chain/solidusd/blockchain"
)

// Message is the JSON envelope every notification is delivered in.
type Message struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// methodFor maps a chain notification type to its wire method name.
func methodFor(t blockchain.NotificationType) string {
	switch t {
	case blockchain.NTBlockConnected:
		return "blockconnected"
	case blockchain.NTBlockDisconnected:
		return "blockdisconnected"
	case blockchain.NTChainReorganization:
		return "chainreorg"
	}
	return "unknown"
}

// Server fans chain notifications out to connected websocket clients.
type Server struct {
	upgrader websocket.Upgrader

	mtx     sync.Mutex
	clients map[*websocket.Conn]struct{}
	quit    chan struct{}
}

// NewServer returns a server ready to accept websocket clients.
func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*websocket.Conn]struct{}),
		quit:    make(chan struct{}),
	}
}

// ServeHTTP upgrades an incoming request to a websocket subscription.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mtx.Lock()
	s.clients[conn] = struct{}{}
	s.mtx.Unlock()

	// Drain (and discard) client reads so pings and close frames are
	// processed; the notification stream is one-way.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropClient(conn)
				return
			}
		}
	}()
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.mtx.Lock()
	delete(s.clients, conn)
	s.mtx.Unlock()
	conn.Close()
}

// Run drains notifications until the channel closes or Stop is called.
func (s *Server) Run(ntfns <-chan blockchain.Notification) {
	for {
		select {
		case ntfn, ok := <-ntfns:
			if !ok {
				return
			}
			s.broadcast(ntfn)
		case <-s.quit:
			return
		}
	}
}

// Stop terminates Run and closes every client connection.
func (s *Server) Stop() {
	close(s.quit)
	s.mtx.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mtx.Unlock()
}

func (s *Server) broadcast(ntfn blockchain.Notification) {
	payload, err := json.Marshal(&Message{
		Method: methodFor(ntfn.Type),
		Params: ntfn.Data,
	})
	if err != nil {
		return
	}
	s.mtx.Lock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(s.clients, conn)
			conn.Close()
		}
	}
	s.mtx.Unlock()
}
