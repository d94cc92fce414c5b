// Package dht is the hand-off boundary to cross-agent propagation. The core
// commits locally and then offers the new header and entry for broadcast;
// it never waits for acknowledgment and never retries. Gossip, validation
// by remote peers, and cross-agent ordering all live behind this interface.
package dht

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/chain"
)

// Broadcast carries one committed mutation.
type Broadcast struct {
	Agent      string
	HeaderHash cid.Cid
	Header     chain.Header
	Entry      chain.Entry
}

// Broadcaster receives committed headers for propagation. Implementations
// must tolerate being called concurrently. Returned errors are reported to
// the commit pipeline's error callback, not retried.
type Broadcaster interface {
	Broadcast(ctx context.Context, b Broadcast) error
}

// Nop discards all broadcasts.
type Nop struct{}

func (Nop) Broadcast(context.Context, Broadcast) error { return nil }

// Loopback records broadcasts in memory, for tests and single-node use.
type Loopback struct {
	mu  sync.Mutex
	log []Broadcast
}

func NewLoopback() *Loopback { return &Loopback{} }

func (l *Loopback) Broadcast(_ context.Context, b Broadcast) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = append(l.log, b)
	return nil
}

// Broadcasts returns a snapshot of everything handed off so far.
func (l *Loopback) Broadcasts() []Broadcast {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Broadcast(nil), l.log...)
}
