package protocol

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"mortgagemarket/internal/domain/market"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(KindLoanRequest, "sender-key", LoanRequestPayload{
		LoanRequest: market.LoanRequest{ID: "req-1", BorrowerID: "sender-key", Amount: 250_000},
		House:       market.House{ID: "house-1", Price: 300_000},
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.ID == "" {
		t.Fatal("envelope must carry a fresh id")
	}

	raw, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Kind != KindLoanRequest || decoded.Sender != "sender-key" || decoded.ID != env.ID {
		t.Fatalf("decoded header: %+v", decoded)
	}

	var payload LoanRequestPayload
	if err := decoded.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.LoanRequest.Amount != 250_000 || payload.House.Price != 300_000 {
		t.Fatalf("payload: %+v", payload)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0x00, 0x01}); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("err=%v, want validation", err)
	}
	env := Envelope{Kind: KindInvestmentOffer, Payload: []byte{0xff}}
	var p InvestmentPayload
	if err := env.DecodePayload(&p); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("err=%v, want validation", err)
	}
}

// Two structurally equal entities must encode to identical bytes; the
// agreement handshake compares snapshots byte-for-byte.
func TestEncodeEntityDeterministic(t *testing.T) {
	when := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a := &market.Campaign{ID: "c1", MortgageID: "m1", Goal: 50_000, Remaining: 30_000, EndDate: when}
	b := &market.Campaign{ID: "c1", MortgageID: "m1", Goal: 50_000, Remaining: 30_000, EndDate: when}

	rawA, err := EncodeEntity(a)
	if err != nil {
		t.Fatal(err)
	}
	rawB, err := EncodeEntity(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rawA, rawB) {
		t.Fatal("equal entities must encode identically")
	}

	b.Remaining = 10_000
	rawB, err = EncodeEntity(b)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(rawA, rawB) {
		t.Fatal("different entities must encode differently")
	}
}

func TestDecodeEntity(t *testing.T) {
	m := &market.Mortgage{ID: "m1", BankID: "bank", Amount: 250_000, Status: market.StatusAccepted}
	raw, err := EncodeEntity(m)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeEntity(market.KindMortgage, raw)
	if err != nil {
		t.Fatalf("DecodeEntity: %v", err)
	}
	got := out.(*market.Mortgage)
	if got.ID != m.ID || got.Amount != m.Amount || got.Status != m.Status {
		t.Fatalf("decoded: %+v", got)
	}

	if _, err := DecodeEntity("bogus", raw); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("unknown kind: err=%v, want validation", err)
	}
}
