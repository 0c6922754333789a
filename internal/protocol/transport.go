package protocol

import "context"

// Candidate is a resolved network endpoint for a user identity, used for
// direct (non-broadcast) delivery.
type Candidate struct {
	Address string `json:"address"`
}

// Transport is the underlying broadcast layer. It signs outgoing messages,
// authenticates members and verifies integrity before handing envelopes to
// Inbox; the node never sees an unverified message.
type Transport interface {
	// SendDirect delivers the envelope to each candidate.
	SendDirect(ctx context.Context, env Envelope, to []Candidate) error
	// SendCommunity broadcasts the envelope to the community.
	SendCommunity(ctx context.Context, env Envelope) error
	// Inbox yields received envelopes, Origin filled in, one at a time.
	Inbox() <-chan Envelope
}
