package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mortgagemarket/internal/domain/market"
	"mortgagemarket/internal/domain/store"
	"mortgagemarket/internal/protocol"
	"mortgagemarket/pkg/id"
)

// CampaignLengthDays is the crowdfunding window opened on mortgage
// acceptance.
const CampaignLengthDays = 30

// Engine drives the loan-request → mortgage-offer → investment-offer →
// campaign workflow. Every mutating operation validates the actor's role
// first, runs its writes inside one unit of work, and only enqueues
// outgoing messages after the transaction commits.
type Engine struct {
	uow   store.UnitOfWork
	db    store.Store
	queue *protocol.Queue
	now   func() time.Time
	log   *logrus.Entry
}

func NewEngine(uow store.UnitOfWork, db store.Store, queue *protocol.Queue, log *logrus.Entry) *Engine {
	return &Engine{uow: uow, db: db, queue: queue, now: time.Now, log: log}
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func getUser(ctx context.Context, s store.Store, userID string) (*market.User, error) {
	ent, err := s.Get(ctx, market.KindUser, userID)
	if err != nil {
		return nil, err
	}
	return ent.(*market.User), nil
}

func getLoanRequest(ctx context.Context, s store.Store, reqID string) (*market.LoanRequest, error) {
	ent, err := s.Get(ctx, market.KindLoanRequest, reqID)
	if err != nil {
		return nil, err
	}
	return ent.(*market.LoanRequest), nil
}

func getMortgage(ctx context.Context, s store.Store, mortgageID string) (*market.Mortgage, error) {
	ent, err := s.Get(ctx, market.KindMortgage, mortgageID)
	if err != nil {
		return nil, err
	}
	return ent.(*market.Mortgage), nil
}

func getInvestment(ctx context.Context, s store.Store, investmentID string) (*market.Investment, error) {
	ent, err := s.Get(ctx, market.KindInvestment, investmentID)
	if err != nil {
		return nil, err
	}
	return ent.(*market.Investment), nil
}

func getHouse(ctx context.Context, s store.Store, houseID string) (*market.House, error) {
	ent, err := s.Get(ctx, market.KindHouse, houseID)
	if err != nil {
		return nil, err
	}
	return ent.(*market.House), nil
}

func getCampaign(ctx context.Context, s store.Store, campaignID string) (*market.Campaign, error) {
	ent, err := s.Get(ctx, market.KindCampaign, campaignID)
	if err != nil {
		return nil, err
	}
	return ent.(*market.Campaign), nil
}

func requireRole(u *market.User, want market.Role) error {
	if u.Role != want {
		return fmt.Errorf("%w: user %s is %s, operation requires %s", market.ErrValidation, u.ID, u.Role, want)
	}
	return nil
}

func (e *Engine) push(o protocol.Outbound) { e.queue.Push(o) }

// RegisterUser stores a fresh local identity. The id is the participant's
// public key, opaque to the engine.
func (e *Engine) RegisterUser(ctx context.Context, publicKey string) (*market.User, error) {
	if publicKey == "" {
		return nil, fmt.Errorf("%w: empty public key", market.ErrValidation)
	}
	u := &market.User{ID: publicKey, Role: market.RoleNone, TimeAdded: e.now().UTC()}
	if err := e.db.Post(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ProfileInput assigns a role and, except for financial institutions,
// a profile record.
type ProfileInput struct {
	Role        market.Role
	FirstName   string
	LastName    string
	Email       string
	IBAN        string
	PhoneNumber string
	// Borrower-only fields.
	PostalCode  string
	HouseNumber string
	Documents   []string
}

// CreateProfile sets the user's role and writes the matching profile.
// Financial institutions get a role but no profile record.
func (e *Engine) CreateProfile(ctx context.Context, userID string, in ProfileInput) (*market.Profile, error) {
	var profile *market.Profile
	err := e.uow.WithinTx(ctx, func(s store.Store) error {
		u, err := getUser(ctx, s, userID)
		if err != nil {
			return err
		}
		switch in.Role {
		case market.RoleFinancialInstitution:
			u.Role = in.Role
			return s.Put(ctx, u)
		case market.RoleInvestor:
			profile = &market.Profile{
				ID:          id.NewID32(),
				FirstName:   in.FirstName,
				LastName:    in.LastName,
				Email:       in.Email,
				IBAN:        in.IBAN,
				PhoneNumber: in.PhoneNumber,
			}
		case market.RoleBorrower:
			profile = &market.Profile{
				ID:          id.NewID32(),
				FirstName:   in.FirstName,
				LastName:    in.LastName,
				Email:       in.Email,
				IBAN:        in.IBAN,
				PhoneNumber: in.PhoneNumber,
				PostalCode:  in.PostalCode,
				HouseNumber: in.HouseNumber,
				Documents:   market.IDList(in.Documents),
			}
		default:
			return fmt.Errorf("%w: role is required", market.ErrValidation)
		}
		if err := s.Post(ctx, profile); err != nil {
			return err
		}
		u.Role = in.Role
		u.ProfileID = profile.ID
		return s.Put(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// IntroduceSelf builds the introduce_user gossip envelope carrying the
// local user record.
func (e *Engine) IntroduceSelf(ctx context.Context, userID string) (protocol.Envelope, error) {
	u, err := getUser(ctx, e.db, userID)
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.NewEnvelope(protocol.KindIntroduceUser, userID, protocol.IntroduceUserPayload{User: *u})
}

// CreateLoanRequestInput is the borrower's payload for a new request.
type CreateLoanRequestInput struct {
	PostalCode   string
	HouseNumber  string
	Price        float64
	MortgageType market.MortgageType
	BankIDs      []string
	Description  string
	Amount       float64
}

func (in CreateLoanRequestInput) validate() error {
	switch {
	case in.Price <= 0:
		return fmt.Errorf("%w: price must be positive", market.ErrValidation)
	case in.Amount <= 0 || in.Amount > in.Price:
		return fmt.Errorf("%w: amount must be positive and at most the house price", market.ErrValidation)
	case len(in.BankIDs) == 0:
		return fmt.Errorf("%w: at least one bank is required", market.ErrValidation)
	case !in.MortgageType.Valid():
		return fmt.Errorf("%w: unknown mortgage type %d", market.ErrValidation, in.MortgageType)
	}
	return nil
}

// CreateLoanRequest creates the house and the request with every invited
// bank pending, links the request to the borrower and to each bank, and
// fans a loan_request message out to the invited banks.
func (e *Engine) CreateLoanRequest(ctx context.Context, borrowerID string, in CreateLoanRequestInput) (*market.LoanRequest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var (
		request *market.LoanRequest
		house   *market.House
		profile market.Profile
	)
	err := e.uow.WithinTx(ctx, func(s store.Store) error {
		borrower, err := getUser(ctx, s, borrowerID)
		if err != nil {
			return err
		}
		if err := requireRole(borrower, market.RoleBorrower); err != nil {
			return err
		}
		// One open request per borrower.
		for _, reqID := range borrower.LoanRequestIDs {
			prev, err := getLoanRequest(ctx, s, reqID)
			if err != nil {
				return err
			}
			if prev.Open() {
				return fmt.Errorf("%w: borrower %s already has an open loan request %s", market.ErrConflict, borrowerID, reqID)
			}
		}

		house = &market.House{
			ID:          id.NewID32(),
			PostalCode:  in.PostalCode,
			HouseNumber: in.HouseNumber,
			Price:       in.Price,
		}
		if err := s.Post(ctx, house); err != nil {
			return err
		}

		status := make(market.StatusMap, len(in.BankIDs))
		for _, bankID := range in.BankIDs {
			status[bankID] = market.StatusPending
		}
		request = &market.LoanRequest{
			ID:           id.NewID32(),
			BorrowerID:   borrowerID,
			HouseID:      house.ID,
			MortgageType: in.MortgageType,
			BankIDs:      append(market.IDList{}, in.BankIDs...),
			BankStatus:   status,
			Amount:       in.Amount,
			Description:  in.Description,
			CreatedAt:    e.now().UTC(),
		}
		if err := s.Post(ctx, request); err != nil {
			return err
		}

		borrower.LoanRequestIDs.Append(request.ID)
		if err := s.Put(ctx, borrower); err != nil {
			return err
		}
		for _, bankID := range in.BankIDs {
			bank, err := getUser(ctx, s, bankID)
			if err != nil {
				return err
			}
			if err := requireRole(bank, market.RoleFinancialInstitution); err != nil {
				return err
			}
			bank.LoanRequestIDs.Append(request.ID)
			if err := s.Put(ctx, bank); err != nil {
				return err
			}
		}

		if borrower.ProfileID != "" {
			p, err := s.Get(ctx, market.KindProfile, borrower.ProfileID)
			if err != nil {
				return err
			}
			profile = *p.(*market.Profile)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	env, err := protocol.NewEnvelope(protocol.KindLoanRequest, borrowerID, protocol.LoanRequestPayload{
		LoanRequest: *request, House: *house, Profile: profile,
	})
	if err != nil {
		return nil, err
	}
	e.push(protocol.Outbound{Env: env, Recipients: in.BankIDs})
	e.log.WithFields(logrus.Fields{
		"request": request.ID,
		"banks":   len(in.BankIDs),
	}).Info("loan request created")
	return request, nil
}

// MortgageTermsInput is a bank's offer against a loan request.
type MortgageTermsInput struct {
	Amount         float64
	MortgageType   market.MortgageType
	InterestRate   float64
	MaxInvestRate  float64
	DefaultRate    float64
	DurationMonths int
	Risk           string
	InvestorIDs    []string
}

// AcceptLoanRequest marks the bank's per-request entry accepted and
// creates a pending mortgage offer, announced to the borrower.
func (e *Engine) AcceptLoanRequest(ctx context.Context, bankID, requestID string, in MortgageTermsInput) (*market.Mortgage, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: mortgage amount must be positive", market.ErrValidation)
	}
	if !in.MortgageType.Valid() {
		return nil, fmt.Errorf("%w: unknown mortgage type %d", market.ErrValidation, in.MortgageType)
	}

	var (
		mortgage *market.Mortgage
		request  *market.LoanRequest
	)
	err := e.uow.WithinTx(ctx, func(s store.Store) error {
		bank, err := getUser(ctx, s, bankID)
		if err != nil {
			return err
		}
		if err := requireRole(bank, market.RoleFinancialInstitution); err != nil {
			return err
		}
		request, err = getLoanRequest(ctx, s, requestID)
		if err != nil {
			return err
		}
		current, invited := request.BankStatus[bankID]
		if !invited {
			return fmt.Errorf("%w: bank %s was not invited to request %s", market.ErrValidation, bankID, requestID)
		}
		if !current.CanTransition(market.StatusAccepted) {
			return fmt.Errorf("%w: request %s is %s for bank %s", market.ErrConflict, requestID, current, bankID)
		}
		request.BankStatus[bankID] = market.StatusAccepted

		mortgage = &market.Mortgage{
			ID:             id.NewID32(),
			RequestID:      request.ID,
			HouseID:        request.HouseID,
			BankID:         bankID,
			Amount:         in.Amount,
			MortgageType:   in.MortgageType,
			InterestRate:   in.InterestRate,
			MaxInvestRate:  in.MaxInvestRate,
			DefaultRate:    in.DefaultRate,
			DurationMonths: in.DurationMonths,
			Risk:           in.Risk,
			InvestorIDs:    append(market.IDList{}, in.InvestorIDs...),
			Status:         market.StatusPending,
		}
		if err := s.Post(ctx, mortgage); err != nil {
			return err
		}

		borrower, err := getUser(ctx, s, request.BorrowerID)
		if err != nil {
			return err
		}
		borrower.MortgageIDs.Append(mortgage.ID)
		if err := s.Put(ctx, borrower); err != nil {
			return err
		}
		bank.MortgageIDs.Append(mortgage.ID)
		if err := s.Put(ctx, bank); err != nil {
			return err
		}
		return s.Put(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	env, err := protocol.NewEnvelope(protocol.KindMortgageOffer, bankID, protocol.MortgageOfferPayload{
		LoanRequest: *request, Mortgage: *mortgage,
	})
	if err != nil {
		return nil, err
	}
	e.push(protocol.Outbound{Env: env, Recipients: []string{request.BorrowerID}})
	e.log.WithFields(logrus.Fields{
		"request":  requestID,
		"mortgage": mortgage.ID,
	}).Info("loan request accepted, mortgage offered")
	return mortgage, nil
}

// RejectLoanRequest marks the bank's entry rejected. Once every invited
// bank has rejected, the borrower's open-request marker is cleared.
func (e *Engine) RejectLoanRequest(ctx context.Context, bankID, requestID string) (*market.LoanRequest, error) {
	var request *market.LoanRequest
	err := e.uow.WithinTx(ctx, func(s store.Store) error {
		bank, err := getUser(ctx, s, bankID)
		if err != nil {
			return err
		}
		if err := requireRole(bank, market.RoleFinancialInstitution); err != nil {
			return err
		}
		request, err = getLoanRequest(ctx, s, requestID)
		if err != nil {
			return err
		}
		current, invited := request.BankStatus[bankID]
		if !invited {
			return fmt.Errorf("%w: bank %s was not invited to request %s", market.ErrValidation, bankID, requestID)
		}
		if !current.CanTransition(market.StatusRejected) {
			return fmt.Errorf("%w: request %s is %s for bank %s", market.ErrConflict, requestID, current, bankID)
		}
		request.BankStatus[bankID] = market.StatusRejected

		bank.LoanRequestIDs.Remove(request.ID)
		if err := s.Put(ctx, bank); err != nil {
			return err
		}
		if request.FullyRejected() {
			borrower, err := getUser(ctx, s, request.BorrowerID)
			if err != nil {
				return err
			}
			borrower.LoanRequestIDs.Remove(request.ID)
			if err := s.Put(ctx, borrower); err != nil {
				return err
			}
		}
		return s.Put(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	env, err := protocol.NewEnvelope(protocol.KindLoanRequestReject, bankID, protocol.LoanRequestRejectPayload{
		LoanRequest: *request,
	})
	if err != nil {
		return nil, err
	}
	e.push(protocol.Outbound{Env: env, Recipients: []string{request.BorrowerID}})
	return request, nil
}

// AcceptMortgageOffer accepts one mortgage offer, rejects every sibling
// offer on the same request, and opens the crowdfunding campaign for the
// gap between the house price and the financed amount. The bank is told
// over a signed channel; the community learns via broadcast.
func (e *Engine) AcceptMortgageOffer(ctx context.Context, borrowerID, mortgageID string) (*market.Campaign, error) {
	var (
		mortgage *market.Mortgage
		request  *market.LoanRequest
		campaign *market.Campaign
		house    *market.House
	)
	err := e.uow.WithinTx(ctx, func(s store.Store) error {
		borrower, err := getUser(ctx, s, borrowerID)
		if err != nil {
			return err
		}
		if err := requireRole(borrower, market.RoleBorrower); err != nil {
			return err
		}
		mortgage, err = getMortgage(ctx, s, mortgageID)
		if err != nil {
			return err
		}
		if !mortgage.Status.CanTransition(market.StatusAccepted) {
			return fmt.Errorf("%w: mortgage %s is %s", market.ErrConflict, mortgageID, mortgage.Status)
		}
		request, err = getLoanRequest(ctx, s, mortgage.RequestID)
		if err != nil {
			return err
		}
		if request.BorrowerID != borrowerID {
			return fmt.Errorf("%w: mortgage %s does not belong to borrower %s", market.ErrValidation, mortgageID, borrowerID)
		}

		mortgage.Status = market.StatusAccepted
		request.BankStatus[mortgage.BankID] = market.StatusAccepted
		for _, bankID := range request.BankIDs {
			if bankID != mortgage.BankID {
				request.BankStatus[bankID] = market.StatusRejected
			}
		}
		// Accepting one offer rejects its siblings.
		siblings, err := s.GetAll(ctx, market.KindMortgage)
		if err != nil {
			return err
		}
		for _, ent := range siblings {
			m := ent.(*market.Mortgage)
			if m.RequestID == request.ID && m.ID != mortgage.ID && m.Status == market.StatusPending {
				m.Status = market.StatusRejected
				if err := s.Put(ctx, m); err != nil {
					return err
				}
			}
		}

		house, err = getHouse(ctx, s, mortgage.HouseID)
		if err != nil {
			return err
		}
		goal := house.Price - mortgage.Amount
		campaign = &market.Campaign{
			ID:         id.NewID32(),
			MortgageID: mortgage.ID,
			Goal:       goal,
			Remaining:  goal,
			EndDate:    e.now().UTC().AddDate(0, 0, CampaignLengthDays),
			Completed:  goal <= 0,
		}
		if err := s.Post(ctx, campaign); err != nil {
			return err
		}
		mortgage.CampaignID = campaign.ID

		bank, err := getUser(ctx, s, mortgage.BankID)
		if err != nil {
			return err
		}
		bank.CampaignIDs.Append(campaign.ID)
		if err := s.Put(ctx, bank); err != nil {
			return err
		}
		borrower.MortgageIDs.Append(mortgage.ID)
		borrower.CampaignIDs.Append(campaign.ID)
		if err := s.Put(ctx, borrower); err != nil {
			return err
		}
		if err := s.Put(ctx, mortgage); err != nil {
			return err
		}
		return s.Put(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	signed, err := protocol.NewEnvelope(protocol.KindMortgageAcceptSigned, borrowerID, protocol.MortgageAcceptSignedPayload{
		Mortgage: *mortgage, Campaign: *campaign,
	})
	if err != nil {
		return nil, err
	}
	unsigned, err := protocol.NewEnvelope(protocol.KindMortgageAcceptUnsigned, borrowerID, protocol.MortgageAcceptUnsignedPayload{
		LoanRequest: *request, Mortgage: *mortgage, Campaign: *campaign, House: *house,
	})
	if err != nil {
		return nil, err
	}
	e.push(protocol.Outbound{Env: signed, Recipients: []string{mortgage.BankID}})
	e.push(protocol.Outbound{Env: unsigned, Community: true})
	e.log.WithFields(logrus.Fields{
		"mortgage": mortgage.ID,
		"campaign": campaign.ID,
		"goal":     campaign.Goal,
	}).Info("mortgage accepted, campaign opened")
	return campaign, nil
}

// RejectMortgageOffer declines a pending offer and drops it from the
// borrower's active list.
func (e *Engine) RejectMortgageOffer(ctx context.Context, borrowerID, mortgageID string) (*market.Mortgage, error) {
	var mortgage *market.Mortgage
	err := e.uow.WithinTx(ctx, func(s store.Store) error {
		borrower, err := getUser(ctx, s, borrowerID)
		if err != nil {
			return err
		}
		if err := requireRole(borrower, market.RoleBorrower); err != nil {
			return err
		}
		mortgage, err = getMortgage(ctx, s, mortgageID)
		if err != nil {
			return err
		}
		if !mortgage.Status.CanTransition(market.StatusRejected) {
			return fmt.Errorf("%w: mortgage %s is %s", market.ErrConflict, mortgageID, mortgage.Status)
		}
		request, err := getLoanRequest(ctx, s, mortgage.RequestID)
		if err != nil {
			return err
		}

		mortgage.Status = market.StatusRejected
		request.BankStatus[mortgage.BankID] = market.StatusRejected
		borrower.MortgageIDs.Remove(mortgage.ID)

		if err := s.Put(ctx, mortgage); err != nil {
			return err
		}
		if err := s.Put(ctx, request); err != nil {
			return err
		}
		return s.Put(ctx, borrower)
	})
	if err != nil {
		return nil, err
	}

	env, err := protocol.NewEnvelope(protocol.KindMortgageReject, borrowerID, protocol.MortgageRejectPayload{
		Mortgage: *mortgage,
	})
	if err != nil {
		return nil, err
	}
	e.push(protocol.Outbound{Env: env, Recipients: []string{mortgage.BankID}})
	return mortgage, nil
}

// PlaceLoanOfferInput is an investor's bid on an accepted mortgage.
type PlaceLoanOfferInput struct {
	MortgageID     string
	Amount         float64
	DurationMonths int
	InterestRate   float64
}

// PlaceLoanOffer creates a pending investment on an accepted mortgage and
// announces it to the borrower.
func (e *Engine) PlaceLoanOffer(ctx context.Context, investorID string, in PlaceLoanOfferInput) (*market.Investment, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: investment amount must be positive", market.ErrValidation)
	}

	var (
		investment *market.Investment
		borrowerID string
	)
	err := e.uow.WithinTx(ctx, func(s store.Store) error {
		investor, err := getUser(ctx, s, investorID)
		if err != nil {
			return err
		}
		if err := requireRole(investor, market.RoleInvestor); err != nil {
			return err
		}
		mortgage, err := getMortgage(ctx, s, in.MortgageID)
		if err != nil {
			return err
		}
		if mortgage.Status != market.StatusAccepted {
			return fmt.Errorf("%w: mortgage %s is %s, offers require an accepted mortgage", market.ErrConflict, in.MortgageID, mortgage.Status)
		}

		investment = &market.Investment{
			ID:             id.NewID32(),
			InvestorID:     investorID,
			MortgageID:     mortgage.ID,
			Amount:         in.Amount,
			DurationMonths: in.DurationMonths,
			InterestRate:   in.InterestRate,
			Status:         market.StatusPending,
		}
		if err := s.Post(ctx, investment); err != nil {
			return err
		}

		investor.InvestmentIDs.Append(investment.ID)
		if err := s.Put(ctx, investor); err != nil {
			return err
		}
		mortgage.InvestorIDs.Append(investorID)
		if err := s.Put(ctx, mortgage); err != nil {
			return err
		}

		request, err := getLoanRequest(ctx, s, mortgage.RequestID)
		if err != nil {
			return err
		}
		borrower, err := getUser(ctx, s, request.BorrowerID)
		if err != nil {
			return err
		}
		borrower.InvestmentIDs.Append(investment.ID)
		borrowerID = borrower.ID
		return s.Put(ctx, borrower)
	})
	if err != nil {
		return nil, err
	}

	env, err := protocol.NewEnvelope(protocol.KindInvestmentOffer, investorID, protocol.InvestmentPayload{
		Investment: *investment,
	})
	if err != nil {
		return nil, err
	}
	e.push(protocol.Outbound{Env: env, Recipients: []string{borrowerID}})
	return investment, nil
}

// AcceptInvestmentOffer accepts a pending investment against the campaign
// of its mortgage. The campaign's remaining amount never goes below zero:
// a bid larger than what is left is a conflict, not a clamp.
func (e *Engine) AcceptInvestmentOffer(ctx context.Context, borrowerID, investmentID string) (*market.Investment, error) {
	var investment *market.Investment
	err := e.uow.WithinTx(ctx, func(s store.Store) error {
		borrower, err := getUser(ctx, s, borrowerID)
		if err != nil {
			return err
		}
		if err := requireRole(borrower, market.RoleBorrower); err != nil {
			return err
		}
		investment, err = getInvestment(ctx, s, investmentID)
		if err != nil {
			return err
		}
		if !investment.Status.CanTransition(market.StatusAccepted) {
			return fmt.Errorf("%w: investment %s is %s", market.ErrConflict, investmentID, investment.Status)
		}
		mortgage, err := getMortgage(ctx, s, investment.MortgageID)
		if err != nil {
			return err
		}
		if mortgage.CampaignID == "" {
			return fmt.Errorf("%w: mortgage %s has no campaign", market.ErrConflict, mortgage.ID)
		}
		campaign, err := getCampaign(ctx, s, mortgage.CampaignID)
		if err != nil {
			return err
		}
		if investment.Amount > campaign.Remaining {
			return fmt.Errorf("%w: investment %.2f exceeds remaining %.2f on campaign %s",
				market.ErrConflict, investment.Amount, campaign.Remaining, campaign.ID)
		}

		investment.Status = market.StatusAccepted
		campaign.Remaining -= investment.Amount
		if campaign.Remaining <= 0 {
			campaign.Completed = true
		}
		if err := s.Put(ctx, investment); err != nil {
			return err
		}
		return s.Put(ctx, campaign)
	})
	if err != nil {
		return nil, err
	}

	env, err := protocol.NewEnvelope(protocol.KindInvestmentAccept, borrowerID, protocol.InvestmentPayload{
		Investment: *investment,
	})
	if err != nil {
		return nil, err
	}
	e.push(protocol.Outbound{Env: env, Recipients: []string{investment.InvestorID}})
	e.log.WithFields(logrus.Fields{
		"investment": investment.ID,
		"investor":   investment.InvestorID,
	}).Info("investment accepted")
	return investment, nil
}

// RejectInvestmentOffer declines a pending investment.
func (e *Engine) RejectInvestmentOffer(ctx context.Context, borrowerID, investmentID string) (*market.Investment, error) {
	var investment *market.Investment
	err := e.uow.WithinTx(ctx, func(s store.Store) error {
		borrower, err := getUser(ctx, s, borrowerID)
		if err != nil {
			return err
		}
		if err := requireRole(borrower, market.RoleBorrower); err != nil {
			return err
		}
		investment, err = getInvestment(ctx, s, investmentID)
		if err != nil {
			return err
		}
		if !investment.Status.CanTransition(market.StatusRejected) {
			return fmt.Errorf("%w: investment %s is %s", market.ErrConflict, investmentID, investment.Status)
		}
		investment.Status = market.StatusRejected
		return s.Put(ctx, investment)
	})
	if err != nil {
		return nil, err
	}

	env, err := protocol.NewEnvelope(protocol.KindInvestmentReject, borrowerID, protocol.InvestmentPayload{
		Investment: *investment,
	})
	if err != nil {
		return nil, err
	}
	e.push(protocol.Outbound{Env: env, Recipients: []string{investment.InvestorID}})
	return investment, nil
}
