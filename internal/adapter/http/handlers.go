package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"mortgagemarket/internal/domain/market"
	"mortgagemarket/internal/node"
	"mortgagemarket/internal/usecase/lifecycle"
)

// Handler exposes the lifecycle engine's operation table to the local
// actor. Everything here is a thin translation layer: the engine owns the
// rules.
type Handler struct{ node *node.Node }

func NewHandler(n *node.Node) *Handler { return &Handler{node: n} }

// Register mounts all routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)

	e.POST("/users", h.RegisterUser)
	e.POST("/profile", h.CreateProfile)

	e.POST("/loan-requests", h.CreateLoanRequest)
	e.GET("/loan-requests", h.ListLoanRequests)
	e.GET("/loan-requests/:request_id", h.GetLoanRequest)
	e.POST("/loan-requests/:request_id/accept", h.AcceptLoanRequest)
	e.POST("/loan-requests/:request_id/reject", h.RejectLoanRequest)

	e.POST("/mortgages/:mortgage_id/accept", h.AcceptMortgageOffer)
	e.POST("/mortgages/:mortgage_id/reject", h.RejectMortgageOffer)
	e.GET("/mortgages", h.ListMortgages)

	e.POST("/investments", h.PlaceLoanOffer)
	e.GET("/investments", h.ListInvestments)
	e.POST("/investments/:investment_id/accept", h.AcceptInvestmentOffer)
	e.POST("/investments/:investment_id/reject", h.RejectInvestmentOffer)

	e.GET("/market", h.OpenMarket)
	e.GET("/loans", h.BorrowersLoans)
	e.GET("/offers", h.BorrowersOffers)
	e.GET("/bids/:mortgage_id", h.Bids)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"node":   h.node.Self(),
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// actor reads the acting user id from the X-User-Id header.
func actor(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get("X-User-Id"))
}

// writeErr maps the domain error taxonomy onto HTTP statuses.
func writeErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, market.ErrValidation):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, market.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, market.ErrConflict):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, market.ErrProtocol):
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return errors.New("invalid body")
	}
	return c.Validate(req)
}

type registerUserReq struct {
	PublicKey string `json:"public_key" validate:"required"`
}

func (h *Handler) RegisterUser(c echo.Context) error {
	var req registerUserReq
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Details: ToFieldErrors(err)})
	}
	var u *market.User
	err := h.node.Do(c.Request().Context(), func(e *lifecycle.Engine) error {
		var err error
		u, err = e.RegisterUser(c.Request().Context(), req.PublicKey)
		return err
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

type createProfileReq struct {
	Role        string   `json:"role" validate:"required,oneof=borrower investor financial_institution"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email"`
	IBAN        string   `json:"iban"`
	PhoneNumber string   `json:"phone_number"`
	PostalCode  string   `json:"postal_code"`
	HouseNumber string   `json:"house_number"`
	Documents   []string `json:"documents"`
}

func roleFromString(s string) market.Role {
	switch s {
	case "borrower":
		return market.RoleBorrower
	case "investor":
		return market.RoleInvestor
	case "financial_institution":
		return market.RoleFinancialInstitution
	default:
		return market.RoleNone
	}
}

func (h *Handler) CreateProfile(c echo.Context) error {
	var req createProfileReq
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Details: ToFieldErrors(err)})
	}
	var p *market.Profile
	err := h.node.Do(c.Request().Context(), func(e *lifecycle.Engine) error {
		var err error
		p, err = e.CreateProfile(c.Request().Context(), actor(c), lifecycle.ProfileInput{
			Role:        roleFromString(req.Role),
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			Email:       req.Email,
			IBAN:        req.IBAN,
			PhoneNumber: req.PhoneNumber,
			PostalCode:  req.PostalCode,
			HouseNumber: req.HouseNumber,
			Documents:   req.Documents,
		})
		return err
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

type createLoanRequestReq struct {
	PostalCode   string   `json:"postal_code" validate:"required"`
	HouseNumber  string   `json:"house_number" validate:"required"`
	Price        float64  `json:"price" validate:"gt=0,dec2"`
	MortgageType int      `json:"mortgage_type" validate:"required"`
	Banks        []string `json:"banks" validate:"min=1"`
	Description  string   `json:"description"`
	AmountWanted float64  `json:"amount_wanted" validate:"gt=0,dec2"`
}

func (h *Handler) CreateLoanRequest(c echo.Context) error {
	var req createLoanRequestReq
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Details: ToFieldErrors(err)})
	}
	var lr *market.LoanRequest
	err := h.node.Do(c.Request().Context(), func(e *lifecycle.Engine) error {
		var err error
		lr, err = e.CreateLoanRequest(c.Request().Context(), actor(c), lifecycle.CreateLoanRequestInput{
			PostalCode:   req.PostalCode,
			HouseNumber:  req.HouseNumber,
			Price:        req.Price,
			MortgageType: market.MortgageType(req.MortgageType),
			BankIDs:      req.Banks,
			Description:  req.Description,
			Amount:       req.AmountWanted,
		})
		return err
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, lr)
}

type mortgageTermsReq struct {
	Amount        float64  `json:"amount" validate:"gt=0,dec2"`
	MortgageType  int      `json:"mortgage_type" validate:"required"`
	InterestRate  float64  `json:"interest_rate" validate:"gte=0"`
	MaxInvestRate float64  `json:"max_invest_rate" validate:"gte=0"`
	DefaultRate   float64  `json:"default_rate" validate:"gte=0"`
	Duration      int      `json:"duration" validate:"gt=0"`
	Risk          string   `json:"risk"`
	Investors     []string `json:"investors"`
}

func (h *Handler) AcceptLoanRequest(c echo.Context) error {
	var req mortgageTermsReq
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Details: ToFieldErrors(err)})
	}
	var m *market.Mortgage
	err := h.node.Do(c.Request().Context(), func(e *lifecycle.Engine) error {
		var err error
		m, err = e.AcceptLoanRequest(c.Request().Context(), actor(c), c.Param("request_id"), lifecycle.MortgageTermsInput{
			Amount:         req.Amount,
			MortgageType:   market.MortgageType(req.MortgageType),
			InterestRate:   req.InterestRate,
			MaxInvestRate:  req.MaxInvestRate,
			DefaultRate:    req.DefaultRate,
			DurationMonths: req.Duration,
			Risk:           req.Risk,
			InvestorIDs:    req.Investors,
		})
		return err
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) RejectLoanRequest(c echo.Context) error {
	var lr *market.LoanRequest
	err := h.node.Do(c.Request().Context(), func(e *lifecycle.Engine) error {
		var err error
		lr, err = e.RejectLoanRequest(c.Request().Context(), actor(c), c.Param("request_id"))
		return err
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, lr)
}

func (h *Handler) AcceptMortgageOffer(c echo.Context) error {
	var campaign *market.Campaign
	err := h.node.Do(c.Request().Context(), func(e *lifecycle.Engine) error {
		var err error
		campaign, err = e.AcceptMortgageOffer(c.Request().Context(), actor(c), c.Param("mortgage_id"))
		return err
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, campaign)
}

func (h *Handler) RejectMortgageOffer(c echo.Context) error {
	var m *market.Mortgage
	err := h.node.Do(c.Request().Context(), func(e *lifecycle.Engine) error {
		var err error
		m, err = e.RejectMortgageOffer(c.Request().Context(), actor(c), c.Param("mortgage_id"))
		return err
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

type placeLoanOfferReq struct {
	MortgageID   string  `json:"mortgage_id" validate:"required,hex32"`
	Amount       float64 `json:"amount" validate:"gt=0,dec2"`
	Duration     int     `json:"duration" validate:"gt=0"`
	InterestRate float64 `json:"interest_rate" validate:"gte=0"`
}

func (h *Handler) PlaceLoanOffer(c echo.Context) error {
	var req placeLoanOfferReq
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Details: ToFieldErrors(err)})
	}
	var inv *market.Investment
	err := h.node.Do(c.Request().Context(), func(e *lifecycle.Engine) error {
		var err error
		inv, err = e.PlaceLoanOffer(c.Request().Context(), actor(c), lifecycle.PlaceLoanOfferInput{
			MortgageID:     req.MortgageID,
			Amount:         req.Amount,
			DurationMonths: req.Duration,
			InterestRate:   req.InterestRate,
		})
		return err
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) AcceptInvestmentOffer(c echo.Context) error {
	var inv *market.Investment
	err := h.node.Do(c.Request().Context(), func(e *lifecycle.Engine) error {
		var err error
		inv, err = e.AcceptInvestmentOffer(c.Request().Context(), actor(c), c.Param("investment_id"))
		return err
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) RejectInvestmentOffer(c echo.Context) error {
	var inv *market.Investment
	err := h.node.Do(c.Request().Context(), func(e *lifecycle.Engine) error {
		var err error
		inv, err = e.RejectInvestmentOffer(c.Request().Context(), actor(c), c.Param("investment_id"))
		return err
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) OpenMarket(c echo.Context) error {
	entries, err := h.node.Engine().LoadOpenMarket(c.Request().Context())
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListLoanRequests(c echo.Context) error {
	entries, err := h.node.Engine().LoadAllLoanRequests(c.Request().Context(), actor(c))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetLoanRequest(c echo.Context) error {
	lr, err := h.node.Engine().LoadSingleLoanRequest(c.Request().Context(), c.Param("request_id"))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, lr)
}

func (h *Handler) BorrowersLoans(c echo.Context) error {
	loans, err := h.node.Engine().LoadBorrowersLoans(c.Request().Context(), actor(c))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) BorrowersOffers(c echo.Context) error {
	offers, err := h.node.Engine().LoadBorrowersOffers(c.Request().Context(), actor(c))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, offers)
}

func (h *Handler) Bids(c echo.Context) error {
	entry, err := h.node.Engine().LoadBids(c.Request().Context(), c.Param("mortgage_id"))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) ListInvestments(c echo.Context) error {
	entries, err := h.node.Engine().LoadInvestments(c.Request().Context(), actor(c))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListMortgages(c echo.Context) error {
	entries, err := h.node.Engine().LoadMortgages(c.Request().Context(), actor(c))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}
