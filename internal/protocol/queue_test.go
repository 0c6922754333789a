package protocol

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type fakeTransport struct {
	direct    []Envelope
	directTo  [][]Candidate
	community []Envelope
}

func (f *fakeTransport) SendDirect(ctx context.Context, env Envelope, to []Candidate) error {
	f.direct = append(f.direct, env)
	f.directTo = append(f.directTo, to)
	return nil
}
func (f *fakeTransport) SendCommunity(ctx context.Context, env Envelope) error {
	f.community = append(f.community, env)
	return nil
}
func (f *fakeTransport) Inbox() <-chan Envelope { return nil }

func discardLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Push(Outbound{Env: Envelope{ID: "1"}})
	q.Push(Outbound{Env: Envelope{ID: "2"}})
	q.Push(Outbound{Env: Envelope{ID: "3"}})
	if q.Len() != 3 {
		t.Fatalf("len=%d", q.Len())
	}
	items := q.Drain()
	if len(items) != 3 || items[0].Env.ID != "1" || items[2].Env.ID != "3" {
		t.Fatalf("drain order: %+v", items)
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Fatal("drain must empty the queue")
	}
}

func TestFlushResolvesRecipients(t *testing.T) {
	q := NewQueue()
	d := NewDirectory()
	d.Register("alice", Candidate{Address: "peer-a"})
	tr := &fakeTransport{}

	q.Push(Outbound{Env: Envelope{ID: "1", Kind: KindMortgageOffer}, Recipients: []string{"alice"}})
	q.Push(Outbound{Env: Envelope{ID: "2", Kind: KindIntroduceUser}, Community: true})
	// Unknown recipient, nothing to send.
	q.Push(Outbound{Env: Envelope{ID: "3", Kind: KindMortgageReject}, Recipients: []string{"nobody"}})

	q.Flush(context.Background(), tr, d, discardLog())

	if len(tr.direct) != 1 || tr.direct[0].ID != "1" {
		t.Fatalf("direct sends: %+v", tr.direct)
	}
	if tr.directTo[0][0].Address != "peer-a" {
		t.Fatalf("resolved candidate: %+v", tr.directTo[0])
	}
	if len(tr.community) != 1 || tr.community[0].ID != "2" {
		t.Fatalf("community sends: %+v", tr.community)
	}
	if q.Len() != 0 {
		t.Fatal("flush must drain the queue")
	}
}

func TestFlushPreResolvedCandidates(t *testing.T) {
	q := NewQueue()
	tr := &fakeTransport{}
	q.Push(Outbound{
		Env:        Envelope{ID: "1", Kind: KindModelRequestResponse},
		Candidates: []Candidate{{Address: "direct-peer"}},
	})
	q.Flush(context.Background(), tr, NewDirectory(), discardLog())
	if len(tr.direct) != 1 || tr.directTo[0][0].Address != "direct-peer" {
		t.Fatalf("pre-resolved send: %+v", tr.directTo)
	}
}
