package agreement

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mortgagemarket/internal/domain/market"
	"mortgagemarket/internal/domain/store"
	"mortgagemarket/internal/protocol"
)

// DefaultTimeout bounds how long an initiator waits for a countersigned
// response.
const DefaultTimeout = 30 * time.Second

// Service runs the dual-signature handshake that finalizes a mortgage or
// investment contract. A successful handshake is an advisory confirmation
// record: entity status transitions are committed by the lifecycle engine
// before the handshake and stand regardless of its outcome.
type Service struct {
	self      string
	db        store.Store
	directory *protocol.Directory
	transport protocol.Transport
	timeout   time.Duration
	log       *logrus.Entry

	mu      sync.Mutex
	pending map[string]chan protocol.SignedConfirmPayload
	closed  bool
}

func New(self string, db store.Store, directory *protocol.Directory, transport protocol.Transport, timeout time.Duration, log *logrus.Entry) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		self:      self,
		db:        db,
		directory: directory,
		transport: transport,
		timeout:   timeout,
		log:       log,
		pending:   make(map[string]chan protocol.SignedConfirmPayload),
	}
}

// Close aborts every in-flight proposal. Further proposals fail.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for corr, ch := range s.pending {
		close(ch)
		delete(s.pending, corr)
	}
}

func (s *Service) register(corr string) (chan protocol.SignedConfirmPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: agreement service closed", market.ErrProtocol)
	}
	ch := make(chan protocol.SignedConfirmPayload, 1)
	s.pending[corr] = ch
	return ch, nil
}

func (s *Service) unregister(corr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, corr)
}

// Propose initiates a handshake over the given agreement with the
// counterparty expected to countersign as beneficiary. It blocks until a
// countersigned response arrives, the timeout elapses, or ctx is
// cancelled; a timed-out or mismatching handshake is terminal and a
// re-initiation is a new proposal.
func (s *Service) Propose(ctx context.Context, counterpartyID string, agreement market.Entity) (*protocol.SignedConfirmPayload, error) {
	candidate, ok := s.directory.Resolve(counterpartyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", market.ErrUnknownCandidate, counterpartyID)
	}
	snapshot, err := protocol.EncodeEntity(agreement)
	if err != nil {
		return nil, err
	}

	proposal := protocol.SignedConfirmPayload{
		Benefactor:    s.self,
		Beneficiary:   "", // the counterparty fills in its own identity
		AgreementKind: agreement.EntityKind(),
		AgreementID:   agreement.EntityID(),
		Agreement:     snapshot,
		Timestamp:     time.Now().Unix(),
	}
	env, err := protocol.NewEnvelope(protocol.KindSignedConfirm, s.self, proposal)
	if err != nil {
		return nil, err
	}
	corr := uuid.NewString()
	env.CorrelationID = corr

	ch, err := s.register(corr)
	if err != nil {
		return nil, err
	}
	defer s.unregister(corr)

	if err := s.transport.SendDirect(ctx, env, []protocol.Candidate{candidate}); err != nil {
		return nil, fmt.Errorf("%w: send proposal: %v", market.ErrProtocol, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: no countersignature for %s %s: %v",
			market.ErrProtocol, agreement.EntityKind(), agreement.EntityID(), ctx.Err())
	case response, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%w: agreement service closed", market.ErrProtocol)
		}
		if err := s.validateResponse(proposal, response, counterpartyID); err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{
			"agreement":   response.AgreementID,
			"beneficiary": response.Beneficiary,
		}).Info("agreement countersigned")
		return &response, nil
	}
}

// validateResponse re-checks the countersigned payload: beneficiary is the
// expected counterparty, benefactor is still us, and the snapshot came
// back unchanged.
func (s *Service) validateResponse(proposal, response protocol.SignedConfirmPayload, counterpartyID string) error {
	switch {
	case response.Beneficiary != counterpartyID:
		return fmt.Errorf("%w: beneficiary %q, expected %q", market.ErrProtocol, response.Beneficiary, counterpartyID)
	case response.Benefactor != s.self:
		return fmt.Errorf("%w: benefactor %q altered in response", market.ErrProtocol, response.Benefactor)
	case !bytes.Equal(proposal.Agreement, response.Agreement):
		return fmt.Errorf("%w: agreement snapshot altered in response", market.ErrProtocol)
	}
	return nil
}

// HandleProposal is the counterparty side: compare the proposed snapshot
// with the local copy of the same agreement. On a match, countersign with
// our own identity as beneficiary; on any mismatch, drop silently so the
// initiator times out.
func (s *Service) HandleProposal(ctx context.Context, env protocol.Envelope) (*protocol.Envelope, error) {
	var proposal protocol.SignedConfirmPayload
	if err := env.DecodePayload(&proposal); err != nil {
		return nil, err
	}

	local, err := s.db.Get(ctx, proposal.AgreementKind, proposal.AgreementID)
	if err != nil {
		s.log.WithField("agreement", proposal.AgreementID).Debug("proposal for unknown agreement, dropping")
		return nil, nil
	}
	localSnapshot, err := protocol.EncodeEntity(local)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(localSnapshot, proposal.Agreement) {
		s.log.WithField("agreement", proposal.AgreementID).Debug("snapshot mismatch, dropping proposal")
		return nil, nil
	}

	proposal.Beneficiary = s.self
	response, err := protocol.NewEnvelope(protocol.KindSignedConfirm, s.self, proposal)
	if err != nil {
		return nil, err
	}
	response.CorrelationID = env.CorrelationID
	return &response, nil
}

// HandleResponse routes a countersigned payload to the proposal waiting on
// its correlation id. It reports whether a proposal was waiting.
func (s *Service) HandleResponse(env protocol.Envelope) bool {
	s.mu.Lock()
	ch, ok := s.pending[env.CorrelationID]
	if ok {
		delete(s.pending, env.CorrelationID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	var payload protocol.SignedConfirmPayload
	if err := env.DecodePayload(&payload); err != nil {
		s.log.WithError(err).Warn("undecodable countersignature")
		close(ch)
		return true
	}
	ch <- payload
	return true
}

// Pending reports whether a proposal with the given correlation id is
// still waiting; the dispatcher uses it to tell responses from incoming
// proposals.
func (s *Service) Pending(correlationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[correlationID]
	return ok
}
