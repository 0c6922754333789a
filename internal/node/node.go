package node

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"mortgagemarket/internal/dispatch"
	"mortgagemarket/internal/protocol"
	"mortgagemarket/internal/usecase/lifecycle"
)

// Node ties the lifecycle engine, inbound dispatcher, outbound queue and
// transport together as a single logical actor: local operations and
// inbound messages are mutually exclusive and each is handled to
// completion before the next.
type Node struct {
	mu         sync.Mutex
	self       string
	engine     *lifecycle.Engine
	dispatcher *dispatch.Dispatcher
	queue      *protocol.Queue
	directory  *protocol.Directory
	transport  protocol.Transport
	log        *logrus.Entry
}

func New(self string, engine *lifecycle.Engine, dispatcher *dispatch.Dispatcher, queue *protocol.Queue, directory *protocol.Directory, transport protocol.Transport, log *logrus.Entry) *Node {
	return &Node{
		self:       self,
		engine:     engine,
		dispatcher: dispatcher,
		queue:      queue,
		directory:  directory,
		transport:  transport,
		log:        log,
	}
}

func (n *Node) Self() string { return n.self }

// Engine exposes the read-only query surface. Mutations go through Do.
func (n *Node) Engine() *lifecycle.Engine { return n.engine }

// Do runs a mutating engine operation under the node lock and flushes any
// messages it enqueued. A failed operation leaves nothing queued.
func (n *Node) Do(ctx context.Context, fn func(e *lifecycle.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := fn(n.engine); err != nil {
		return err
	}
	n.queue.Flush(ctx, n.transport, n.directory, n.log)
	return nil
}

// HandleInbound applies one verified envelope under the node lock, then
// flushes any replies the handlers queued.
func (n *Node) HandleInbound(ctx context.Context, env protocol.Envelope) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dispatcher.Dispatch(ctx, env)
	n.queue.Flush(ctx, n.transport, n.directory, n.log)
}

// Run consumes the transport inbox serially until ctx is cancelled or the
// inbox closes.
func (n *Node) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-n.transport.Inbox():
			if !ok {
				return nil
			}
			n.HandleInbound(ctx, env)
		}
	}
}

// Introduce gossips our own user record to the community so peers can
// build their directories.
func (n *Node) Introduce(ctx context.Context) error {
	return n.Do(ctx, func(e *lifecycle.Engine) error {
		env, err := e.IntroduceSelf(ctx, n.self)
		if err != nil {
			return err
		}
		n.queue.Push(protocol.Outbound{Env: env, Community: true})
		return nil
	})
}
