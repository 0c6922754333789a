package market

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusNone, StatusPending, true},
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},

		{StatusNone, StatusAccepted, false},
		{StatusNone, StatusRejected, false},
		{StatusPending, StatusNone, false},
		{StatusPending, StatusPending, false},
		{StatusAccepted, StatusRejected, false},
		{StatusAccepted, StatusPending, false},
		{StatusRejected, StatusAccepted, false},
		{StatusRejected, StatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Errorf("%s->%s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusNone.Terminal() || StatusPending.Terminal() {
		t.Fatal("none/pending must not be terminal")
	}
	if !StatusAccepted.Terminal() || !StatusRejected.Terminal() {
		t.Fatal("accepted/rejected must be terminal")
	}
}

func TestRoleString(t *testing.T) {
	cases := map[Role]string{
		RoleNone:                 "none",
		RoleBorrower:             "borrower",
		RoleInvestor:             "investor",
		RoleFinancialInstitution: "financial_institution",
	}
	for role, want := range cases {
		if got := role.String(); got != want {
			t.Errorf("role %d: got %q, want %q", role, got, want)
		}
	}
}

func TestMortgageTypeValid(t *testing.T) {
	if !MortgageLinear.Valid() || !MortgageFixedRate.Valid() {
		t.Fatal("known types must be valid")
	}
	if MortgageType(0).Valid() || MortgageType(3).Valid() {
		t.Fatal("unknown types must be invalid")
	}
}
