// Package loopback is an in-process transport for wiring several market
// nodes into one process: simulations, demos and the multi-replica tests.
// It delivers envelopes over buffered channels with the sender's address
// as origin; authentication and signing are out of scope here, matching
// the transport contract's promise that inbox envelopes arrive verified.
package loopback

import (
	"context"
	"fmt"
	"sync"

	"mortgagemarket/internal/protocol"
)

const inboxDepth = 256

// Network connects loopback endpoints by address.
type Network struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

func NewNetwork() *Network {
	return &Network{endpoints: make(map[string]*Endpoint)}
}

// Endpoint joins the network at the given address.
func (n *Network) Endpoint(address string) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, ok := n.endpoints[address]; ok {
		return ep
	}
	ep := &Endpoint{
		network: n,
		address: address,
		inbox:   make(chan protocol.Envelope, inboxDepth),
	}
	n.endpoints[address] = ep
	return ep
}

func (n *Network) lookup(address string) (*Endpoint, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ep, ok := n.endpoints[address]
	return ep, ok
}

func (n *Network) others(except string) []*Endpoint {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Endpoint, 0, len(n.endpoints))
	for addr, ep := range n.endpoints {
		if addr != except {
			out = append(out, ep)
		}
	}
	return out
}

// Endpoint is one node's attachment to the loopback network.
type Endpoint struct {
	network *Network
	address string
	inbox   chan protocol.Envelope
}

func (e *Endpoint) Address() string { return e.address }

func (e *Endpoint) Candidate() protocol.Candidate {
	return protocol.Candidate{Address: e.address}
}

func (e *Endpoint) SendDirect(ctx context.Context, env protocol.Envelope, to []protocol.Candidate) error {
	for _, c := range to {
		target, ok := e.network.lookup(c.Address)
		if !ok {
			return fmt.Errorf("loopback: no endpoint at %s", c.Address)
		}
		target.deliverFrom(env, e.address)
	}
	return nil
}

func (e *Endpoint) SendCommunity(ctx context.Context, env protocol.Envelope) error {
	for _, target := range e.network.others(e.address) {
		target.deliverFrom(env, e.address)
	}
	return nil
}

// deliverFrom hands the envelope to the recipient with the sender's
// address as origin, the way a socket transport would. A full inbox
// drops the envelope; delivery is fire-and-forget by contract.
func (e *Endpoint) deliverFrom(env protocol.Envelope, origin string) {
	env.Origin = origin
	select {
	case e.inbox <- env:
	default:
	}
}

func (e *Endpoint) Inbox() <-chan protocol.Envelope { return e.inbox }

var _ protocol.Transport = (*Endpoint)(nil)
