package lifecycle

import (
	"context"
	"testing"
	"time"

	"mortgagemarket/internal/domain/market"
)

func TestLoadOpenMarket(t *testing.T) {
	e, st, q := newEngine(t)
	m, campaign := acceptedMortgage(t, e, st, q)

	entries, err := e.LoadOpenMarket(context.Background())
	if err != nil {
		t.Fatalf("LoadOpenMarket: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want 1", len(entries))
	}
	if entries[0].Mortgage.ID != m.ID || entries[0].Campaign.ID != campaign.ID {
		t.Fatalf("entry: %+v", entries[0])
	}
	if entries[0].House.Price != 300_000 {
		t.Fatalf("house price=%v", entries[0].House.Price)
	}

	// Past its end date the campaign drops off the market.
	e.WithClock(func() time.Time { return campaign.EndDate.Add(time.Hour) })
	entries, err = e.LoadOpenMarket(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expired campaign still listed: %+v", entries)
	}
}

func TestLoadAllLoanRequests_PendingOnly(t *testing.T) {
	e, _, _ := newEngine(t)
	lr := mustCreateRequest(t, e)

	for _, bank := range []string{bankX, bankY} {
		entries, err := e.LoadAllLoanRequests(context.Background(), bank)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].LoanRequest.ID != lr.ID {
			t.Fatalf("bank %s: %+v", bank, entries)
		}
	}

	if _, err := e.AcceptLoanRequest(context.Background(), bankX, lr.ID, MortgageTermsInput{
		Amount: 250_000, MortgageType: market.MortgageLinear,
	}); err != nil {
		t.Fatal(err)
	}
	entries, err := e.LoadAllLoanRequests(context.Background(), bankX)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("answered request still pending for bank X: %+v", entries)
	}
}

func TestLoadAllLoanRequests_SkipsUnreplicatedReferences(t *testing.T) {
	e, st, _ := newEngine(t)
	bank := st.MustGet(market.KindUser, bankX).(*market.User)
	bank.LoanRequestIDs.Append("not-replicated-yet")
	st.Seed(bank)

	entries, err := e.LoadAllLoanRequests(context.Background(), bankX)
	if err != nil {
		t.Fatalf("dangling reference should be skipped: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries=%+v", entries)
	}
}

func TestLoadBorrowersOffers_SwitchesFromMortgagesToInvestments(t *testing.T) {
	e, _, q := newEngine(t)
	lr := mustCreateRequest(t, e)
	m, err := e.AcceptLoanRequest(context.Background(), bankX, lr.ID, MortgageTermsInput{
		Amount: 250_000, MortgageType: market.MortgageLinear,
	})
	if err != nil {
		t.Fatal(err)
	}

	offers, err := e.LoadBorrowersOffers(context.Background(), borrowerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 || offers[0].EntityKind() != market.KindMortgage {
		t.Fatalf("before acceptance: %+v", offers)
	}

	if _, err := e.AcceptMortgageOffer(context.Background(), borrowerID, m.ID); err != nil {
		t.Fatal(err)
	}
	q.Drain()
	inv, err := e.PlaceLoanOffer(context.Background(), investorID, PlaceLoanOfferInput{
		MortgageID: m.ID, Amount: 20_000,
	})
	if err != nil {
		t.Fatal(err)
	}

	offers, err = e.LoadBorrowersOffers(context.Background(), borrowerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 || offers[0].EntityID() != inv.ID {
		t.Fatalf("after acceptance: %+v", offers)
	}
}

func TestLoadBorrowersLoans(t *testing.T) {
	e, st, q := newEngine(t)
	m, _ := acceptedMortgage(t, e, st, q)
	inv, err := e.PlaceLoanOffer(context.Background(), investorID, PlaceLoanOfferInput{
		MortgageID: m.ID, Amount: 20_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.AcceptInvestmentOffer(context.Background(), borrowerID, inv.ID); err != nil {
		t.Fatal(err)
	}

	loans, err := e.LoadBorrowersLoans(context.Background(), borrowerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loans) != 2 {
		t.Fatalf("loans=%d, want mortgage + accepted investment", len(loans))
	}
	if loans[0].EntityID() != m.ID || loans[1].EntityID() != inv.ID {
		t.Fatalf("loans: %v %v", loans[0].EntityID(), loans[1].EntityID())
	}
}

func TestLoadBids_AllStatuses(t *testing.T) {
	e, st, q := newEngine(t)
	m, campaign := acceptedMortgage(t, e, st, q)

	accepted, err := e.PlaceLoanOffer(context.Background(), investorID, PlaceLoanOfferInput{MortgageID: m.ID, Amount: 10_000})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.AcceptInvestmentOffer(context.Background(), borrowerID, accepted.ID); err != nil {
		t.Fatal(err)
	}
	rejected, err := e.PlaceLoanOffer(context.Background(), investorID, PlaceLoanOfferInput{MortgageID: m.ID, Amount: 5_000})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.RejectInvestmentOffer(context.Background(), borrowerID, rejected.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.PlaceLoanOffer(context.Background(), investorID, PlaceLoanOfferInput{MortgageID: m.ID, Amount: 7_000}); err != nil {
		t.Fatal(err)
	}

	entry, err := e.LoadBids(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("LoadBids: %v", err)
	}
	if len(entry.Bids) != 3 {
		t.Fatalf("bids=%d, want all three regardless of status", len(entry.Bids))
	}
	if entry.Campaign.ID != campaign.ID || entry.House.Price != 300_000 {
		t.Fatalf("entry: %+v", entry)
	}
}

func TestLoadInvestments_ExcludesRejected(t *testing.T) {
	e, st, q := newEngine(t)
	m, _ := acceptedMortgage(t, e, st, q)

	keep, err := e.PlaceLoanOffer(context.Background(), investorID, PlaceLoanOfferInput{MortgageID: m.ID, Amount: 10_000})
	if err != nil {
		t.Fatal(err)
	}
	drop, err := e.PlaceLoanOffer(context.Background(), investorID, PlaceLoanOfferInput{MortgageID: m.ID, Amount: 5_000})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.RejectInvestmentOffer(context.Background(), borrowerID, drop.ID); err != nil {
		t.Fatal(err)
	}

	entries, err := e.LoadInvestments(context.Background(), investorID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Investment.ID != keep.ID {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestLoadMortgages_BankView(t *testing.T) {
	e, st, q := newEngine(t)
	m, campaign := acceptedMortgage(t, e, st, q)

	entries, err := e.LoadMortgages(context.Background(), bankX)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Mortgage.ID != m.ID || entries[0].Campaign.ID != campaign.ID {
		t.Fatalf("entries: %+v", entries)
	}

	// Bank Y holds no accepted mortgage.
	entries, err = e.LoadMortgages(context.Background(), bankY)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("bank Y entries: %+v", entries)
	}
}
