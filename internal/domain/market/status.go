package market

// Status is the shared lifecycle state for loan requests (per bank),
// mortgages and investments.
type Status string

const (
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// allowedTransitions encodes transition legality. Transitions are monotonic
// per instance; re-opening (pending→none, accepted→pending) is never legal.
var allowedTransitions = map[Status][]Status{
	StatusNone:     {StatusPending},
	StatusPending:  {StatusAccepted, StatusRejected},
	StatusAccepted: {},
	StatusRejected: {},
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s Status) CanTransition(next Status) bool {
	for _, t := range allowedTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusAccepted || s == StatusRejected }

// Role is a closed variant: every switch over it must handle all three.
type Role uint8

const (
	RoleNone Role = iota
	RoleBorrower
	RoleInvestor
	RoleFinancialInstitution
)

func (r Role) String() string {
	switch r {
	case RoleBorrower:
		return "borrower"
	case RoleInvestor:
		return "investor"
	case RoleFinancialInstitution:
		return "financial_institution"
	default:
		return "none"
	}
}

// MortgageType distinguishes the two supported mortgage products.
type MortgageType int

const (
	MortgageLinear    MortgageType = 1
	MortgageFixedRate MortgageType = 2
)

func (m MortgageType) Valid() bool {
	return m == MortgageLinear || m == MortgageFixedRate
}
