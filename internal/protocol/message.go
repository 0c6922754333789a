package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"mortgagemarket/internal/domain/market"
)

// Kind is the request name demultiplexed by the inbound dispatcher.
type Kind string

const (
	KindLoanRequest            Kind = "loan_request"
	KindLoanRequestReject      Kind = "loan_request_reject"
	KindMortgageOffer          Kind = "mortgage_offer"
	KindMortgageAcceptSigned   Kind = "mortgage_accept_signed"
	KindMortgageAcceptUnsigned Kind = "mortgage_accept_unsigned"
	KindMortgageReject         Kind = "mortgage_reject"
	KindInvestmentOffer        Kind = "investment_offer"
	KindInvestmentAccept       Kind = "investment_accept"
	KindInvestmentReject       Kind = "investment_reject"
	KindModelRequest           Kind = "model_request"
	KindModelRequestResponse   Kind = "model_request_response"
	KindIntroduceUser          Kind = "introduce_user"
	KindSignedConfirm          Kind = "signed_confirm"
)

// encMode encodes deterministically (RFC 8949 core deterministic
// encoding) so that two structurally equal snapshots encode to the same
// bytes. The agreement protocol relies on this for its equality check.
var encMode, _ = cbor.CoreDetEncOptions().EncMode()

// Envelope is the unit handed to the transport. The transport signs and
// authenticates it; by the time an envelope reaches the dispatcher its
// integrity is already verified.
type Envelope struct {
	ID            string `cbor:"id"`
	Kind          Kind   `cbor:"kind"`
	Sender        string `cbor:"sender"`
	CorrelationID string `cbor:"correlation_id,omitempty"`
	Payload       []byte `cbor:"payload"`

	// Origin is the network address the envelope arrived from, filled in
	// by the transport on delivery. Never set by the sender.
	Origin string `cbor:"-"`
}

// NewEnvelope marshals payload and wraps it with a fresh message id.
func NewEnvelope(kind Kind, sender string, payload any) (Envelope, error) {
	raw, err := encMode.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Envelope{ID: uuid.NewString(), Kind: kind, Sender: sender, Payload: raw}, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e Envelope) DecodePayload(v any) error {
	if err := cbor.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", market.ErrValidation, e.Kind, err)
	}
	return nil
}

// EncodeEntity produces the deterministic snapshot encoding used both for
// replicated models and for agreement snapshots.
func EncodeEntity(e market.Entity) ([]byte, error) {
	return encMode.Marshal(e)
}

// DecodeEntity reconstructs an entity of the given kind from its snapshot.
func DecodeEntity(kind market.Kind, raw []byte) (market.Entity, error) {
	out, ok := market.NewOfKind(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity kind %q", market.ErrValidation, kind)
	}
	if err := cbor.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("%w: malformed %s snapshot: %v", market.ErrValidation, kind, err)
	}
	return out, nil
}

// Payload shapes, one per kind. Replication carries whole records.

type LoanRequestPayload struct {
	LoanRequest market.LoanRequest `cbor:"loan_request"`
	House       market.House       `cbor:"house"`
	Profile     market.Profile     `cbor:"profile"`
}

type LoanRequestRejectPayload struct {
	LoanRequest market.LoanRequest `cbor:"loan_request"`
}

type MortgageOfferPayload struct {
	LoanRequest market.LoanRequest `cbor:"loan_request"`
	Mortgage    market.Mortgage    `cbor:"mortgage"`
}

type MortgageAcceptSignedPayload struct {
	Mortgage market.Mortgage `cbor:"mortgage"`
	Campaign market.Campaign `cbor:"campaign"`
}

// MortgageAcceptUnsignedPayload carries the house too: community members
// never saw the loan_request fan-out, so this broadcast is their first
// chance to replicate everything an open-market listing needs.
type MortgageAcceptUnsignedPayload struct {
	LoanRequest market.LoanRequest `cbor:"loan_request"`
	Mortgage    market.Mortgage    `cbor:"mortgage"`
	Campaign    market.Campaign    `cbor:"campaign"`
	House       market.House       `cbor:"house"`
}

type MortgageRejectPayload struct {
	Mortgage market.Mortgage `cbor:"mortgage"`
}

type InvestmentPayload struct {
	Investment market.Investment `cbor:"investment"`
}

// ModelRef addresses one entity for on-demand pull synchronization.
type ModelRef struct {
	Kind market.Kind `cbor:"kind"`
	ID   string      `cbor:"id"`
}

type ModelRequestPayload struct {
	Refs []ModelRef `cbor:"refs"`
}

// RawModel is a kind-tagged snapshot inside a model_request_response.
type RawModel struct {
	Kind market.Kind `cbor:"kind"`
	Data []byte      `cbor:"data"`
}

type ModelRequestResponsePayload struct {
	Models []RawModel `cbor:"models"`
}

type IntroduceUserPayload struct {
	User market.User `cbor:"user"`
}

// SignedConfirmPayload carries the dual-signature handshake in both
// directions: the proposal leaves Beneficiary empty, the countersigned
// response fills it in.
type SignedConfirmPayload struct {
	Benefactor    string      `cbor:"benefactor"`
	Beneficiary   string      `cbor:"beneficiary"`
	AgreementKind market.Kind `cbor:"agreement_kind"`
	AgreementID   string      `cbor:"agreement_id"`
	Agreement     []byte      `cbor:"agreement"`
	Timestamp     int64       `cbor:"timestamp"`
}

// Encode serializes a complete envelope for the wire.
func Encode(e Envelope) ([]byte, error) { return encMode.Marshal(e) }

// Decode parses a wire envelope.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: malformed envelope: %v", market.ErrValidation, err)
	}
	return e, nil
}
