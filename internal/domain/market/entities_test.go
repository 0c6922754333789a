package market

import (
	"testing"
	"time"
)

func TestIDList(t *testing.T) {
	var l IDList
	if !l.Append("a") || !l.Append("b") {
		t.Fatal("fresh appends must report change")
	}
	if l.Append("a") {
		t.Fatal("duplicate append must be a no-op")
	}
	if !l.Contains("a") || l.Contains("c") {
		t.Fatalf("contains: %v", l)
	}
	if !l.Remove("a") || l.Remove("a") {
		t.Fatal("remove must report presence exactly once")
	}
	if len(l) != 1 || l[0] != "b" {
		t.Fatalf("after remove: %v", l)
	}
}

func TestLoanRequestOpenAndFullyRejected(t *testing.T) {
	lr := &LoanRequest{BankStatus: StatusMap{"x": StatusPending, "y": StatusPending}}
	if !lr.Open() || lr.FullyRejected() {
		t.Fatal("pending request must be open")
	}

	lr.BankStatus["x"] = StatusRejected
	if !lr.Open() {
		t.Fatal("one pending bank keeps the request open")
	}

	lr.BankStatus["y"] = StatusAccepted
	if !lr.Open() || lr.FullyRejected() {
		t.Fatal("accepted entry keeps the request open")
	}

	lr.BankStatus["y"] = StatusRejected
	if lr.Open() || !lr.FullyRejected() {
		t.Fatal("all rejected closes the request")
	}

	empty := &LoanRequest{BankStatus: StatusMap{}}
	if empty.FullyRejected() {
		t.Fatal("empty status map is not fully rejected")
	}
}

func TestCampaignActive(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c := &Campaign{Remaining: 100, EndDate: now.AddDate(0, 0, 30)}
	if !c.Active(now) {
		t.Fatal("running campaign must be active")
	}
	if c.Active(c.EndDate) {
		t.Fatal("campaign expires at its end date")
	}
	c.Completed = true
	if c.Active(now) {
		t.Fatal("completed campaign must be inactive")
	}
}

func TestNewOfKind(t *testing.T) {
	kinds := []Kind{KindUser, KindProfile, KindHouse, KindLoanRequest, KindMortgage, KindInvestment, KindCampaign}
	for _, k := range kinds {
		e, ok := NewOfKind(k)
		if !ok {
			t.Fatalf("kind %s not constructible", k)
		}
		if e.EntityKind() != k {
			t.Fatalf("kind %s produced %s", k, e.EntityKind())
		}
	}
	if _, ok := NewOfKind("bogus"); ok {
		t.Fatal("unknown kind must not construct")
	}
}

func TestUserCanonical(t *testing.T) {
	if (&User{Role: RoleBorrower}).Canonical() {
		t.Fatal("borrower records are not canonical")
	}
	if !(&User{Role: RoleFinancialInstitution}).Canonical() {
		t.Fatal("financial institution records are canonical")
	}
}
