// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wsnotify

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solidus-chain/solidusd/blockchain"
	"github.com/solidus-chain/solidusd/chainhash"
)

func TestBroadcastBlockConnected(t *testing.T) {
	server := NewServer()
	defer server.Stop()

	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ntfns := make(chan blockchain.Notification, 1)
	go server.Run(ntfns)

	// The dial returns once the handshake completes; give the handler a
	// moment to finish registering the subscription.
	for i := 0; i < 100; i++ {
		server.mtx.Lock()
		registered := len(server.clients) == 1
		server.mtx.Unlock()
		if registered {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	hash := chainhash.HashH([]byte("block"))
	ntfns <- blockchain.Notification{
		Type: blockchain.NTBlockConnected,
		Data: &blockchain.BlockNtfn{Hash: hash, Height: 5, NumTxns: 2},
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Method string `json:"method"`
		Params struct {
			Height uint32 `json:"Height"`
		} `json:"params"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", payload, err)
	}
	if msg.Method != "blockconnected" {
		t.Fatalf("method = %q, want blockconnected", msg.Method)
	}
	if msg.Params.Height != 5 {
		t.Fatalf("height = %d, want 5", msg.Params.Height)
	}
}
