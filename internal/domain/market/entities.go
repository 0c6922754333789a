package market

import (
	"time"
)

// Kind names an entity table in the store. Cross-entity relationships are
// id-only; owners never embed owned records.
type Kind string

const (
	KindUser        Kind = "users"
	KindProfile     Kind = "profiles"
	KindHouse       Kind = "houses"
	KindLoanRequest Kind = "loan_requests"
	KindMortgage    Kind = "mortgages"
	KindInvestment  Kind = "investments"
	KindCampaign    Kind = "campaigns"
)

// Entity is anything the store can hold.
type Entity interface {
	EntityKind() Kind
	EntityID() string
}

// NewOfKind returns an empty entity of the given kind, for decoding
// replicated records.
func NewOfKind(k Kind) (Entity, bool) {
	switch k {
	case KindUser:
		return &User{}, true
	case KindProfile:
		return &Profile{}, true
	case KindHouse:
		return &House{}, true
	case KindLoanRequest:
		return &LoanRequest{}, true
	case KindMortgage:
		return &Mortgage{}, true
	case KindInvestment:
		return &Investment{}, true
	case KindCampaign:
		return &Campaign{}, true
	default:
		return nil, false
	}
}

// IDList is an ordered set of entity ids, stored as a JSON column.
type IDList []string

func (l IDList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// Append adds id if absent and reports whether the list changed.
func (l *IDList) Append(id string) bool {
	if l.Contains(id) {
		return false
	}
	*l = append(*l, id)
	return true
}

// Remove drops id and reports whether it was present.
func (l *IDList) Remove(id string) bool {
	for i, v := range *l {
		if v == id {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return true
		}
	}
	return false
}

// StatusMap records, per invited bank id, that bank's independent response.
type StatusMap map[string]Status

// User identity is the participant's public key; the record carries the
// id sets tying the participant to its marketplace entities.
type User struct {
	ID             string    `gorm:"primaryKey;size:192;column:id" json:"id"`
	Role           Role      `gorm:"column:role" json:"role"`
	ProfileID      string    `gorm:"size:32;column:profile_id" json:"profile_id"`
	LoanRequestIDs IDList    `gorm:"serializer:json;column:loan_request_ids" json:"loan_request_ids"`
	MortgageIDs    IDList    `gorm:"serializer:json;column:mortgage_ids" json:"mortgage_ids"`
	InvestmentIDs  IDList    `gorm:"serializer:json;column:investment_ids" json:"investment_ids"`
	CampaignIDs    IDList    `gorm:"serializer:json;column:campaign_ids" json:"campaign_ids"`
	TimeAdded      time.Time `gorm:"column:time_added" json:"time_added"`
}

func (User) TableName() string   { return string(KindUser) }
func (User) EntityKind() Kind    { return KindUser }
func (u *User) EntityID() string { return u.ID }
func (u *User) Canonical() bool  { return u.Role == RoleFinancialInstitution }

// Profile holds contact data. The postal code, house number and document
// fields are only filled for borrowers; financial institutions hold no
// profile at all.
type Profile struct {
	ID          string `gorm:"primaryKey;size:32;column:id" json:"id"`
	FirstName   string `gorm:"size:64;column:first_name" json:"first_name"`
	LastName    string `gorm:"size:64;column:last_name" json:"last_name"`
	Email       string `gorm:"size:128;column:email" json:"email"`
	IBAN        string `gorm:"size:34;column:iban" json:"iban"`
	PhoneNumber string `gorm:"size:32;column:phone_number" json:"phone_number"`
	PostalCode  string `gorm:"size:16;column:postal_code" json:"postal_code,omitempty"`
	HouseNumber string `gorm:"size:16;column:house_number" json:"house_number,omitempty"`
	Documents   IDList `gorm:"serializer:json;column:documents" json:"documents,omitempty"`
}

func (Profile) TableName() string   { return string(KindProfile) }
func (Profile) EntityKind() Kind    { return KindProfile }
func (p *Profile) EntityID() string { return p.ID }

// House is the property a loan request wants financed. Owned by exactly
// one LoanRequest.
type House struct {
	ID          string  `gorm:"primaryKey;size:32;column:id" json:"id"`
	PostalCode  string  `gorm:"size:16;column:postal_code" json:"postal_code"`
	HouseNumber string  `gorm:"size:16;column:house_number" json:"house_number"`
	Price       float64 `gorm:"column:price" json:"price"`
}

func (House) TableName() string   { return string(KindHouse) }
func (House) EntityKind() Kind    { return KindHouse }
func (h *House) EntityID() string { return h.ID }

// LoanRequest is a borrower's ask, fanned out to a set of banks that each
// answer independently through the per-bank status map.
type LoanRequest struct {
	ID           string       `gorm:"primaryKey;size:32;column:id" json:"id"`
	BorrowerID   string       `gorm:"size:192;index;column:borrower_id" json:"borrower_id"`
	HouseID      string       `gorm:"size:32;column:house_id" json:"house_id"`
	MortgageType MortgageType `gorm:"column:mortgage_type" json:"mortgage_type"`
	BankIDs      IDList       `gorm:"serializer:json;column:bank_ids" json:"bank_ids"`
	BankStatus   StatusMap    `gorm:"serializer:json;column:bank_status" json:"bank_status"`
	Amount       float64      `gorm:"column:amount" json:"amount"`
	Description  string       `gorm:"type:text;column:description" json:"description"`
	CreatedAt    time.Time    `gorm:"column:created_at" json:"created_at"`
}

func (LoanRequest) TableName() string    { return string(KindLoanRequest) }
func (LoanRequest) EntityKind() Kind     { return KindLoanRequest }
func (lr *LoanRequest) EntityID() string { return lr.ID }

// Open reports whether any invited bank still has the request pending or
// has accepted it.
func (lr *LoanRequest) Open() bool {
	for _, s := range lr.BankStatus {
		if s == StatusPending || s == StatusAccepted {
			return true
		}
	}
	return false
}

// FullyRejected reports whether every invited bank has rejected.
func (lr *LoanRequest) FullyRejected() bool {
	for _, s := range lr.BankStatus {
		if s != StatusRejected {
			return false
		}
	}
	return len(lr.BankStatus) > 0
}

// Mortgage is a bank's offer against a loan request. At most one mortgage
// per request ever reaches accepted.
type Mortgage struct {
	ID             string       `gorm:"primaryKey;size:32;column:id" json:"id"`
	RequestID      string       `gorm:"size:32;index;column:request_id" json:"request_id"`
	HouseID        string       `gorm:"size:32;column:house_id" json:"house_id"`
	BankID         string       `gorm:"size:192;index;column:bank_id" json:"bank_id"`
	Amount         float64      `gorm:"column:amount" json:"amount"`
	MortgageType   MortgageType `gorm:"column:mortgage_type" json:"mortgage_type"`
	InterestRate   float64      `gorm:"column:interest_rate" json:"interest_rate"`
	MaxInvestRate  float64      `gorm:"column:max_invest_rate" json:"max_invest_rate"`
	DefaultRate    float64      `gorm:"column:default_rate" json:"default_rate"`
	DurationMonths int          `gorm:"column:duration_months" json:"duration_months"`
	Risk           string       `gorm:"size:16;column:risk" json:"risk"`
	InvestorIDs    IDList       `gorm:"serializer:json;column:investor_ids" json:"investor_ids"`
	CampaignID     string       `gorm:"size:32;column:campaign_id" json:"campaign_id"`
	Status         Status       `gorm:"size:16;column:status" json:"status"`
}

func (Mortgage) TableName() string   { return string(KindMortgage) }
func (Mortgage) EntityKind() Kind    { return KindMortgage }
func (m *Mortgage) EntityID() string { return m.ID }

// Investment is an investor's bid on an accepted mortgage's campaign.
type Investment struct {
	ID             string  `gorm:"primaryKey;size:32;column:id" json:"id"`
	InvestorID     string  `gorm:"size:192;index;column:investor_id" json:"investor_id"`
	MortgageID     string  `gorm:"size:32;index;column:mortgage_id" json:"mortgage_id"`
	Amount         float64 `gorm:"column:amount" json:"amount"`
	DurationMonths int     `gorm:"column:duration_months" json:"duration_months"`
	InterestRate   float64 `gorm:"column:interest_rate" json:"interest_rate"`
	Status         Status  `gorm:"size:16;column:status" json:"status"`
}

func (Investment) TableName() string   { return string(KindInvestment) }
func (Investment) EntityKind() Kind    { return KindInvestment }
func (i *Investment) EntityID() string { return i.ID }

// Campaign is the crowdfunding window opened when a mortgage offer is
// accepted. The goal is fixed at creation and never renegotiated;
// Remaining only ever decreases, by accepted investments.
type Campaign struct {
	ID         string    `gorm:"primaryKey;size:32;column:id" json:"id"`
	MortgageID string    `gorm:"size:32;index;column:mortgage_id" json:"mortgage_id"`
	Goal       float64   `gorm:"column:goal" json:"goal"`
	Remaining  float64   `gorm:"column:remaining" json:"remaining"`
	EndDate    time.Time `gorm:"column:end_date" json:"end_date"`
	Completed  bool      `gorm:"column:completed" json:"completed"`
}

func (Campaign) TableName() string   { return string(KindCampaign) }
func (Campaign) EntityKind() Kind    { return KindCampaign }
func (c *Campaign) EntityID() string { return c.ID }

func (c *Campaign) Active(now time.Time) bool {
	return !c.Completed && now.Before(c.EndDate)
}
