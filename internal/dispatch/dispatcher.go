package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"mortgagemarket/internal/domain/market"
	"mortgagemarket/internal/domain/store"
	"mortgagemarket/internal/protocol"
	"mortgagemarket/internal/usecase/agreement"
)

// HandlerFunc applies one inbound message kind against the local replica.
type HandlerFunc func(ctx context.Context, env protocol.Envelope) error

// Dispatcher demultiplexes verified inbound envelopes by kind. Unknown
// kinds and handler failures are logged and dropped; nothing escapes to
// the transport layer.
type Dispatcher struct {
	self       string
	uow        store.UnitOfWork
	db         store.Store
	directory  *protocol.Directory
	queue      *protocol.Queue
	agreements *agreement.Service
	log        *logrus.Entry
	handlers   map[protocol.Kind]HandlerFunc

	// ProposeAsync runs the blocking agreement handshake off the event
	// loop. Overridable in tests to run synchronously.
	ProposeAsync func(fn func())
}

func New(self string, uow store.UnitOfWork, db store.Store, directory *protocol.Directory, queue *protocol.Queue, agreements *agreement.Service, log *logrus.Entry) *Dispatcher {
	d := &Dispatcher{
		self:         self,
		uow:          uow,
		db:           db,
		directory:    directory,
		queue:        queue,
		agreements:   agreements,
		log:          log,
		ProposeAsync: func(fn func()) { go fn() },
	}
	d.handlers = map[protocol.Kind]HandlerFunc{
		protocol.KindLoanRequest:            d.onLoanRequest,
		protocol.KindLoanRequestReject:      d.onLoanRequestReject,
		protocol.KindMortgageOffer:          d.onMortgageOffer,
		protocol.KindMortgageAcceptSigned:   d.onMortgageAcceptSigned,
		protocol.KindMortgageAcceptUnsigned: d.onMortgageAcceptUnsigned,
		protocol.KindMortgageReject:         d.onMortgageReject,
		protocol.KindInvestmentOffer:        d.onInvestmentOffer,
		protocol.KindInvestmentAccept:       d.onInvestmentAccept,
		protocol.KindInvestmentReject:       d.onInvestmentReject,
		protocol.KindModelRequest:           d.onModelRequest,
		protocol.KindModelRequestResponse:   d.onModelRequestResponse,
		protocol.KindIntroduceUser:          d.onIntroduceUser,
		protocol.KindSignedConfirm:          d.onSignedConfirm,
	}
	return d
}

// Dispatch routes one envelope. It never returns an error to the caller;
// the transport must not see handler failures.
func (d *Dispatcher) Dispatch(ctx context.Context, env protocol.Envelope) {
	handler, ok := d.handlers[env.Kind]
	if !ok {
		d.log.WithField("kind", env.Kind).Warn("unknown message kind, dropping")
		return
	}
	if err := handler(ctx, env); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"kind":   env.Kind,
			"sender": env.Sender,
		}).Warn("message handler failed, dropping")
	}
}

func upsertAll(ctx context.Context, s store.Store, ents ...market.Entity) error {
	for _, e := range ents {
		if e.EntityID() == "" {
			continue
		}
		if err := store.PostOrPut(ctx, s, e); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) selfUser(ctx context.Context, s store.Store) (*market.User, error) {
	ent, err := s.Get(ctx, market.KindUser, d.self)
	if err != nil {
		return nil, err
	}
	return ent.(*market.User), nil
}

// requestModels asks the community for entities referenced but not yet
// replicated locally.
func (d *Dispatcher) requestModels(refs ...protocol.ModelRef) {
	env, err := protocol.NewEnvelope(protocol.KindModelRequest, d.self, protocol.ModelRequestPayload{Refs: refs})
	if err != nil {
		d.log.WithError(err).Warn("cannot build model_request")
		return
	}
	d.queue.Push(protocol.Outbound{Env: env, Community: true})
}

func (d *Dispatcher) onLoanRequest(ctx context.Context, env protocol.Envelope) error {
	var p protocol.LoanRequestPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return d.uow.WithinTx(ctx, func(s store.Store) error {
		if err := upsertAll(ctx, s, &p.LoanRequest, &p.House, &p.Profile); err != nil {
			return err
		}
		if !p.LoanRequest.BankIDs.Contains(d.self) {
			return nil
		}
		self, err := d.selfUser(ctx, s)
		if err != nil {
			return err
		}
		self.LoanRequestIDs.Append(p.LoanRequest.ID)
		return s.Put(ctx, self)
	})
}

func (d *Dispatcher) onLoanRequestReject(ctx context.Context, env protocol.Envelope) error {
	var p protocol.LoanRequestRejectPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return d.uow.WithinTx(ctx, func(s store.Store) error {
		if err := upsertAll(ctx, s, &p.LoanRequest); err != nil {
			return err
		}
		if !p.LoanRequest.FullyRejected() || p.LoanRequest.BorrowerID != d.self {
			return nil
		}
		// Every bank said no: the open-request marker comes off.
		self, err := d.selfUser(ctx, s)
		if err != nil {
			return err
		}
		self.LoanRequestIDs.Remove(p.LoanRequest.ID)
		return s.Put(ctx, self)
	})
}

func (d *Dispatcher) onMortgageOffer(ctx context.Context, env protocol.Envelope) error {
	var p protocol.MortgageOfferPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	err := d.uow.WithinTx(ctx, func(s store.Store) error {
		if err := upsertAll(ctx, s, &p.LoanRequest, &p.Mortgage); err != nil {
			return err
		}
		self, err := d.selfUser(ctx, s)
		if err != nil {
			return err
		}
		if self.MortgageIDs.Append(p.Mortgage.ID) {
			return s.Put(ctx, self)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := d.db.Get(ctx, market.KindHouse, p.Mortgage.HouseID); errors.Is(err, market.ErrNotFound) {
		d.requestModels(protocol.ModelRef{Kind: market.KindHouse, ID: p.Mortgage.HouseID})
	}
	return nil
}

func (d *Dispatcher) onMortgageAcceptSigned(ctx context.Context, env protocol.Envelope) error {
	var p protocol.MortgageAcceptSignedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	err := d.uow.WithinTx(ctx, func(s store.Store) error {
		if err := upsertAll(ctx, s, &p.Mortgage, &p.Campaign); err != nil {
			return err
		}
		self, err := d.selfUser(ctx, s)
		if err != nil {
			return err
		}
		if self.CampaignIDs.Append(p.Campaign.ID) {
			return s.Put(ctx, self)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Only the issuing bank initiates the signing step, off the event
	// loop: the countersignature arrives through this same dispatcher.
	if p.Mortgage.BankID == d.self {
		borrowerID := env.Sender
		mortgage := p.Mortgage
		d.ProposeAsync(func() {
			if _, err := d.agreements.Propose(context.Background(), borrowerID, &mortgage); err != nil {
				d.log.WithError(err).WithField("mortgage", mortgage.ID).Warn("agreement handshake failed")
			}
		})
	}
	return nil
}

func (d *Dispatcher) onMortgageAcceptUnsigned(ctx context.Context, env protocol.Envelope) error {
	var p protocol.MortgageAcceptUnsignedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return d.uow.WithinTx(ctx, func(s store.Store) error {
		return upsertAll(ctx, s, &p.LoanRequest, &p.Mortgage, &p.Campaign, &p.House)
	})
}

func (d *Dispatcher) onMortgageReject(ctx context.Context, env protocol.Envelope) error {
	var p protocol.MortgageRejectPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return d.uow.WithinTx(ctx, func(s store.Store) error {
		if err := upsertAll(ctx, s, &p.Mortgage); err != nil {
			return err
		}
		self, err := d.selfUser(ctx, s)
		if err != nil {
			return err
		}
		if self.MortgageIDs.Remove(p.Mortgage.ID) {
			return s.Put(ctx, self)
		}
		return nil
	})
}

func (d *Dispatcher) onInvestmentOffer(ctx context.Context, env protocol.Envelope) error {
	var p protocol.InvestmentPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	err := d.uow.WithinTx(ctx, func(s store.Store) error {
		if err := upsertAll(ctx, s, &p.Investment); err != nil {
			return err
		}
		self, err := d.selfUser(ctx, s)
		if err != nil {
			return err
		}
		self.InvestmentIDs.Append(p.Investment.ID)
		if err := s.Put(ctx, self); err != nil {
			return err
		}
		// Track the bidder on our replica of the mortgage, if we have it.
		ent, err := s.Get(ctx, market.KindMortgage, p.Investment.MortgageID)
		if err == nil {
			mortgage := ent.(*market.Mortgage)
			if mortgage.InvestorIDs.Append(p.Investment.InvestorID) {
				return s.Put(ctx, mortgage)
			}
			return nil
		}
		if errors.Is(err, market.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if _, err := d.db.Get(ctx, market.KindMortgage, p.Investment.MortgageID); errors.Is(err, market.ErrNotFound) {
		d.requestModels(protocol.ModelRef{Kind: market.KindMortgage, ID: p.Investment.MortgageID})
	}
	return nil
}

func (d *Dispatcher) onInvestmentAccept(ctx context.Context, env protocol.Envelope) error {
	var p protocol.InvestmentPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return d.uow.WithinTx(ctx, func(s store.Store) error {
		return upsertAll(ctx, s, &p.Investment)
	})
}

func (d *Dispatcher) onInvestmentReject(ctx context.Context, env protocol.Envelope) error {
	var p protocol.InvestmentPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return d.uow.WithinTx(ctx, func(s store.Store) error {
		if err := upsertAll(ctx, s, &p.Investment); err != nil {
			return err
		}
		self, err := d.selfUser(ctx, s)
		if err != nil {
			return err
		}
		if self.InvestmentIDs.Remove(p.Investment.ID) {
			return s.Put(ctx, self)
		}
		return nil
	})
}

func (d *Dispatcher) onModelRequest(ctx context.Context, env protocol.Envelope) error {
	var p protocol.ModelRequestPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	var models []protocol.RawModel
	for _, ref := range p.Refs {
		ent, err := d.db.Get(ctx, ref.Kind, ref.ID)
		if err != nil {
			continue // we simply don't have it
		}
		raw, err := protocol.EncodeEntity(ent)
		if err != nil {
			return err
		}
		models = append(models, protocol.RawModel{Kind: ref.Kind, Data: raw})
	}
	if len(models) == 0 {
		return nil
	}
	response, err := protocol.NewEnvelope(protocol.KindModelRequestResponse, d.self, protocol.ModelRequestResponsePayload{Models: models})
	if err != nil {
		return err
	}
	d.queue.Push(protocol.Outbound{Env: response, Candidates: []protocol.Candidate{{Address: env.Origin}}})
	return nil
}

func (d *Dispatcher) onModelRequestResponse(ctx context.Context, env protocol.Envelope) error {
	var p protocol.ModelRequestResponsePayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return d.uow.WithinTx(ctx, func(s store.Store) error {
		for _, raw := range p.Models {
			ent, err := protocol.DecodeEntity(raw.Kind, raw.Data)
			if err != nil {
				return err
			}
			if err := d.merge(ctx, s, ent); err != nil {
				return err
			}
		}
		return nil
	})
}

// merge applies the upsert policy: canonical records (financial
// institutions, whose identity is well known) overwrite, everything else
// is inserted only if absent so locally-evolved state is not clobbered.
func (d *Dispatcher) merge(ctx context.Context, s store.Store, ent market.Entity) error {
	if u, ok := ent.(*market.User); ok && u.Canonical() {
		return store.PostOrPut(ctx, s, u)
	}
	err := s.Post(ctx, ent)
	if errors.Is(err, market.ErrConflict) {
		return nil
	}
	return err
}

func (d *Dispatcher) onIntroduceUser(ctx context.Context, env protocol.Envelope) error {
	var p protocol.IntroduceUserPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	if p.User.ID == "" {
		return fmt.Errorf("%w: introduce_user without user id", market.ErrValidation)
	}
	if p.User.ID != d.self {
		err := d.uow.WithinTx(ctx, func(s store.Store) error {
			return d.merge(ctx, s, &p.User)
		})
		if err != nil {
			return err
		}
	}
	// Registered only after the record is stored, so a reply referencing
	// this user never races its own upsert.
	if env.Origin != "" {
		d.directory.Register(p.User.ID, protocol.Candidate{Address: env.Origin})
	}
	return nil
}

func (d *Dispatcher) onSignedConfirm(ctx context.Context, env protocol.Envelope) error {
	if d.agreements.Pending(env.CorrelationID) {
		d.agreements.HandleResponse(env)
		return nil
	}
	response, err := d.agreements.HandleProposal(ctx, env)
	if err != nil || response == nil {
		return err
	}
	d.queue.Push(protocol.Outbound{Env: *response, Candidates: []protocol.Candidate{{Address: env.Origin}}})
	return nil
}
