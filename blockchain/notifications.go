// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sync"

	"github.com/solidus-chain/solidusd/chainhash"
)

// NotificationType represents the type of a chain notification message.
type NotificationType int

const (
	// NTBlockConnected indicates the associated block was connected to the
	// main chain.
	NTBlockConnected NotificationType = iota

	// NTBlockDisconnected indicates the associated block was disconnected
	// from the main chain during a reorganization.
	NTBlockDisconnected

	// NTChainReorganization indicates the main chain switched branches.
	NTChainReorganization
)

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	switch n {
	case NTBlockConnected:
		return "NTBlockConnected"
	case NTBlockDisconnected:
		return "NTBlockDisconnected"
	case NTChainReorganization:
		return "NTChainReorganization"
	}
	return "Unknown Notification Type"
}

// BlockNtfn is the payload of NTBlockConnected and NTBlockDisconnected
// notifications.
type BlockNtfn struct {
	Hash      chainhash.Hash
	Height    uint32
	StateRoot chainhash.Hash
	NumTxns   int
}

// ReorgNtfn is the payload of an NTChainReorganization notification.
type ReorgNtfn struct {
	OldHash   chainhash.Hash
	OldHeight uint32
	NewHash   chainhash.Hash
	NewHeight uint32
}

// Notification defines an asynchronous notification sent to subscribers
// when the chain tip changes.
type Notification struct {
	Type NotificationType
	Data interface{}
}

// notifier fans notifications out to bounded subscriber channels. A slow
// subscriber never blocks the writer: when its channel is full the
// notification is dropped and counted instead, per the bounded-
// backpressure rule of the concurrency model.
type notifier struct {
	mtx     sync.Mutex
	subs    []chan Notification
	dropped uint64
}

// Subscribe registers a new notification channel with the given buffer
// capacity and returns its receive side. There is no unsubscribe: the
// consensus core's subscribers (RPC, wallet, P2P relays) live for the
// process lifetime.
func (n *notifier) Subscribe(buffer int) <-chan Notification {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)
	n.mtx.Lock()
	n.subs = append(n.subs, ch)
	n.mtx.Unlock()
	return ch
}

func (n *notifier) send(ntfn Notification) {
	n.mtx.Lock()
	for _, ch := range n.subs {
		select {
		case ch <- ntfn:
		default:
			n.dropped++
			log.Warnf("Dropping %v notification: subscriber channel full "+
				"(%d dropped so far)", ntfn.Type, n.dropped)
		}
	}
	n.mtx.Unlock()
}
