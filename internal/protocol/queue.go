package protocol

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Outbound is an envelope tagged with its recipients. Either Recipients
// (user ids, resolved through the Directory at flush time) or Candidates
// (pre-resolved endpoints) may be set; an entry with neither is a
// community broadcast.
type Outbound struct {
	Env        Envelope
	Recipients []string
	Candidates []Candidate
	Community  bool
}

// Queue buffers messages produced by the lifecycle engine so business
// logic never waits on network timing. FIFO; delivery is fire-and-forget.
type Queue struct {
	mu    sync.Mutex
	items []Outbound
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Push(o Outbound) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, o)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns all buffered entries in push order.
func (q *Queue) Drain() []Outbound {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Flush drains the queue into the transport. Recipients without a
// directory entry are dropped with a log line; a transport error fails
// that entry only.
func (q *Queue) Flush(ctx context.Context, t Transport, d *Directory, log *logrus.Entry) {
	for _, o := range q.Drain() {
		if o.Community {
			if err := t.SendCommunity(ctx, o.Env); err != nil {
				log.WithError(err).WithField("kind", o.Env.Kind).Warn("community send failed")
			}
			continue
		}
		to := append([]Candidate{}, o.Candidates...)
		resolved := d.ResolveAll(o.Recipients)
		if len(resolved) < len(o.Recipients) {
			log.WithFields(logrus.Fields{
				"kind":    o.Env.Kind,
				"want":    len(o.Recipients),
				"reached": len(resolved),
			}).Warn("some recipients have no known candidate")
		}
		to = append(to, resolved...)
		if len(to) == 0 {
			continue
		}
		if err := t.SendDirect(ctx, o.Env, to); err != nil {
			log.WithError(err).WithField("kind", o.Env.Kind).Warn("direct send failed")
		}
	}
}
