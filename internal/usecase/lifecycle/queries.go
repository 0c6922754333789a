package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"mortgagemarket/internal/domain/market"
)

// MarketEntry is one open-market listing: an accepted mortgage with its
// running campaign and the house being financed.
type MarketEntry struct {
	Mortgage market.Mortgage `json:"mortgage"`
	Campaign market.Campaign `json:"campaign"`
	House    market.House    `json:"house"`
}

// LoadOpenMarket lists every mortgage with an active campaign: not
// completed and before its end date.
func (e *Engine) LoadOpenMarket(ctx context.Context) ([]MarketEntry, error) {
	campaigns, err := e.db.GetAll(ctx, market.KindCampaign)
	if err != nil {
		return nil, err
	}
	now := e.now()
	var out []MarketEntry
	for _, ent := range campaigns {
		c := ent.(*market.Campaign)
		if !c.Active(now) {
			continue
		}
		mortgage, err := getMortgage(ctx, e.db, c.MortgageID)
		if err != nil {
			return nil, err
		}
		house, err := getHouse(ctx, e.db, mortgage.HouseID)
		if err != nil {
			return nil, err
		}
		out = append(out, MarketEntry{Mortgage: *mortgage, Campaign: *c, House: *house})
	}
	return out, nil
}

// RequestEntry pairs a loan request with its house for bank review.
type RequestEntry struct {
	LoanRequest market.LoanRequest `json:"loan_request"`
	House       market.House       `json:"house"`
}

// LoadAllLoanRequests lists the requests still pending for the given bank.
func (e *Engine) LoadAllLoanRequests(ctx context.Context, bankID string) ([]RequestEntry, error) {
	bank, err := getUser(ctx, e.db, bankID)
	if err != nil {
		return nil, err
	}
	var out []RequestEntry
	for _, reqID := range bank.LoanRequestIDs {
		request, err := getLoanRequest(ctx, e.db, reqID)
		if err != nil {
			// A referenced request may not have replicated yet.
			if errors.Is(err, market.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if request.BankStatus[bankID] == market.StatusPending {
			house, err := getHouse(ctx, e.db, request.HouseID)
			if err != nil {
				return nil, err
			}
			out = append(out, RequestEntry{LoanRequest: *request, House: *house})
		}
	}
	return out, nil
}

// LoadSingleLoanRequest fetches one request by id.
func (e *Engine) LoadSingleLoanRequest(ctx context.Context, requestID string) (*market.LoanRequest, error) {
	return getLoanRequest(ctx, e.db, requestID)
}

// LoadBorrowersOffers returns what the borrower currently has to decide
// on: pending mortgage offers while no offer is accepted, pending
// investment offers once one is.
func (e *Engine) LoadBorrowersOffers(ctx context.Context, borrowerID string) ([]market.Entity, error) {
	borrower, err := getUser(ctx, e.db, borrowerID)
	if err != nil {
		return nil, err
	}
	var offers []market.Entity
	for _, mortgageID := range borrower.MortgageIDs {
		mortgage, err := getMortgage(ctx, e.db, mortgageID)
		if err != nil {
			return nil, err
		}
		switch mortgage.Status {
		case market.StatusAccepted:
			offers = offers[:0]
			for _, invID := range borrower.InvestmentIDs {
				investment, err := getInvestment(ctx, e.db, invID)
				if err != nil {
					return nil, err
				}
				if investment.MortgageID == mortgageID && investment.Status == market.StatusPending {
					offers = append(offers, investment)
				}
			}
			return offers, nil
		case market.StatusPending:
			offers = append(offers, mortgage)
		}
	}
	return offers, nil
}

// LoadBorrowersLoans returns the borrower's running loan: the accepted
// mortgage followed by its accepted investments.
func (e *Engine) LoadBorrowersLoans(ctx context.Context, borrowerID string) ([]market.Entity, error) {
	borrower, err := getUser(ctx, e.db, borrowerID)
	if err != nil {
		return nil, err
	}
	var loans []market.Entity
	for _, mortgageID := range borrower.MortgageIDs {
		mortgage, err := getMortgage(ctx, e.db, mortgageID)
		if err != nil {
			return nil, err
		}
		if mortgage.Status != market.StatusAccepted {
			continue
		}
		loans = append(loans, mortgage)
		for _, invID := range borrower.InvestmentIDs {
			investment, err := getInvestment(ctx, e.db, invID)
			if err != nil {
				return nil, err
			}
			if investment.MortgageID == mortgageID && investment.Status == market.StatusAccepted {
				loans = append(loans, investment)
			}
		}
	}
	return loans, nil
}

// BidsEntry is the full bid book of one campaign.
type BidsEntry struct {
	Bids     []market.Investment `json:"bids"`
	House    market.House        `json:"house"`
	Campaign market.Campaign     `json:"campaign"`
}

// LoadBids returns every bid (pending, accepted or rejected) on the
// campaign of the given mortgage.
func (e *Engine) LoadBids(ctx context.Context, mortgageID string) (*BidsEntry, error) {
	mortgage, err := getMortgage(ctx, e.db, mortgageID)
	if err != nil {
		return nil, err
	}
	if mortgage.CampaignID == "" {
		return nil, fmt.Errorf("%w: mortgage %s has no campaign", market.ErrConflict, mortgageID)
	}
	campaign, err := getCampaign(ctx, e.db, mortgage.CampaignID)
	if err != nil {
		return nil, err
	}
	house, err := getHouse(ctx, e.db, mortgage.HouseID)
	if err != nil {
		return nil, err
	}
	all, err := e.db.GetAll(ctx, market.KindInvestment)
	if err != nil {
		return nil, err
	}
	entry := &BidsEntry{House: *house, Campaign: *campaign}
	for _, ent := range all {
		inv := ent.(*market.Investment)
		if inv.MortgageID == mortgageID {
			entry.Bids = append(entry.Bids, *inv)
		}
	}
	return entry, nil
}

// InvestmentEntry is an investor-side view of one investment.
type InvestmentEntry struct {
	Investment market.Investment `json:"investment"`
	House      market.House      `json:"house"`
	Campaign   market.Campaign   `json:"campaign"`
}

// LoadInvestments lists the investor's pending and accepted investments.
func (e *Engine) LoadInvestments(ctx context.Context, investorID string) ([]InvestmentEntry, error) {
	investor, err := getUser(ctx, e.db, investorID)
	if err != nil {
		return nil, err
	}
	var out []InvestmentEntry
	for _, invID := range investor.InvestmentIDs {
		investment, err := getInvestment(ctx, e.db, invID)
		if err != nil {
			return nil, err
		}
		if investment.Status != market.StatusPending && investment.Status != market.StatusAccepted {
			continue
		}
		mortgage, err := getMortgage(ctx, e.db, investment.MortgageID)
		if err != nil {
			return nil, err
		}
		house, err := getHouse(ctx, e.db, mortgage.HouseID)
		if err != nil {
			return nil, err
		}
		entry := InvestmentEntry{Investment: *investment, House: *house}
		if mortgage.CampaignID != "" {
			campaign, err := getCampaign(ctx, e.db, mortgage.CampaignID)
			if err != nil {
				return nil, err
			}
			entry.Campaign = *campaign
		}
		out = append(out, entry)
	}
	return out, nil
}

// LoadMortgages lists the bank's running (accepted) mortgages.
func (e *Engine) LoadMortgages(ctx context.Context, bankID string) ([]MarketEntry, error) {
	bank, err := getUser(ctx, e.db, bankID)
	if err != nil {
		return nil, err
	}
	var out []MarketEntry
	for _, mortgageID := range bank.MortgageIDs {
		mortgage, err := getMortgage(ctx, e.db, mortgageID)
		if err != nil {
			return nil, err
		}
		if mortgage.Status != market.StatusAccepted {
			continue
		}
		house, err := getHouse(ctx, e.db, mortgage.HouseID)
		if err != nil {
			return nil, err
		}
		entry := MarketEntry{Mortgage: *mortgage, House: *house}
		if mortgage.CampaignID != "" {
			campaign, err := getCampaign(ctx, e.db, mortgage.CampaignID)
			if err != nil {
				return nil, err
			}
			entry.Campaign = *campaign
		}
		out = append(out, entry)
	}
	return out, nil
}
