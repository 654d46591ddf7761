package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/openbid/auction-engine/internal/engine"
	"github.com/openbid/auction-engine/internal/middleware"
	"github.com/openbid/auction-engine/internal/model"
	"github.com/openbid/auction-engine/internal/repository"
	"github.com/openbid/auction-engine/internal/utils"
)

// AuctionHandler serves the auction resource: opening, browsing,
// history and cancellation. Bid placement lives in BidHandler.
type AuctionHandler struct {
	Engine   *engine.Engine
	Auctions *repository.AuctionRepo
	Bids     *repository.BidRepo
}

// NewAuctionHandler constructs an AuctionHandler. All dependencies must
// be non-nil.
func NewAuctionHandler(eng *engine.Engine, auctions *repository.AuctionRepo, bids *repository.BidRepo) *AuctionHandler {
	if eng == nil || auctions == nil || bids == nil {
		panic("nil dependency passed to NewAuctionHandler")
	}
	return &AuctionHandler{Engine: eng, Auctions: auctions, Bids: bids}
}

// auctionResponse is the JSON shape of an auction. Prices travel as
// fixed two-decimal strings so clients never touch binary floats.
type auctionResponse struct {
	ID            uint64  `json:"id"`
	ProductID     uint64  `json:"product_id"`
	SellerID      uint64  `json:"seller_id"`
	StartingPrice string  `json:"starting_price"`
	CurrentPrice  string  `json:"current_price"`
	ReservePrice  *string `json:"reserve_price,omitempty"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	Status        string  `json:"status"`
	WinnerID      *uint64 `json:"winner_id,omitempty"`
	Views         uint64  `json:"views"`
}

func toAuctionResponse(a model.Auction) auctionResponse {
	resp := auctionResponse{
		ID:            a.ID,
		ProductID:     a.ProductID,
		SellerID:      a.SellerID,
		StartingPrice: a.StartingPrice.StringFixed(2),
		CurrentPrice:  a.CurrentPrice.StringFixed(2),
		StartTime:     a.StartTime.UTC().Format(time.RFC3339),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		WinnerID:      a.WinnerID,
		Views:         a.Views,
	}
	if a.ReservePrice != nil {
		s := a.ReservePrice.StringFixed(2)
		resp.ReservePrice = &s
	}
	return resp
}

type bidResponse struct {
	ID        uint64 `json:"id"`
	AuctionID uint64 `json:"auction_id"`
	BidderID  uint64 `json:"bidder_id"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

func toBidResponse(b model.Bid) bidResponse {
	return bidResponse{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount.StringFixed(2),
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type createAuctionRequest struct {
	ProductID     uint64  `json:"product_id"`
	StartingPrice string  `json:"starting_price"`
	ReservePrice  *string `json:"reserve_price"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
}

// Create handles POST /v1/auctions. The authenticated caller must own
// the product; the auction starts scheduled, or active when the start
// time has already passed.
func (h *AuctionHandler) Create(c echo.Context) error {
	sellerID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createAuctionRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ProductID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "product_id is required"})
	}
	startingPrice, err := decimal.NewFromString(body.StartingPrice)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid starting_price"})
	}
	var reserve *decimal.Decimal
	if body.ReservePrice != nil {
		r, err := decimal.NewFromString(*body.ReservePrice)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reserve_price"})
		}
		reserve = &r
	}
	startTime, err := time.Parse(time.RFC3339, body.StartTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start_time"})
	}
	endTime, err := time.Parse(time.RFC3339, body.EndTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end_time"})
	}

	a, err := h.Engine.OpenAuction(c.Request().Context(), sellerID, body.ProductID, startingPrice, reserve, startTime, endTime)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		case errors.Is(err, repository.ErrNotOwner):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "product does not belong to you"})
		case errors.Is(err, repository.ErrProductAlreadyListed):
			return c.JSON(http.StatusConflict, echo.Map{"error": "product already has an auction"})
		case errors.Is(err, repository.ErrInvalidAuction):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "starting price must be positive and end time after start time"})
		}
		utils.Error("auction: create failed", map[string]any{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, toAuctionResponse(a))
}

// List handles GET /v1/auctions: scheduled and active auctions, closest
// deadline first.
func (h *AuctionHandler) List(c echo.Context) error {
	auctions, err := h.Auctions.ListOpen(c.Request().Context())
	if err != nil {
		utils.Error("auction: list failed", map[string]any{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]auctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, toAuctionResponse(a))
	}
	return c.JSON(http.StatusOK, echo.Map{"auctions": out})
}

// Get handles GET /v1/auctions/:id and bumps the display-only view
// counter.
func (h *AuctionHandler) Get(c echo.Context) error {
	id, err := auctionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	ctx := c.Request().Context()
	a, err := h.Auctions.GetAuction(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		}
		utils.Error("auction: get failed", map[string]any{"auction_id": id, "error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if err := h.Auctions.IncrementViews(ctx, id); err == nil {
		a.Views++
	}
	return c.JSON(http.StatusOK, toAuctionResponse(a))
}

// ListBids handles GET /v1/auctions/:id/bids: the auction's bid history,
// newest first.
func (h *AuctionHandler) ListBids(c echo.Context) error {
	id, err := auctionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	ctx := c.Request().Context()
	if _, err := h.Auctions.GetAuction(ctx, id); err != nil {
		if errors.Is(err, repository.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		}
		utils.Error("auction: get failed", map[string]any{"auction_id": id, "error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	bids, err := h.Bids.ListByAuction(ctx, id)
	if err != nil {
		utils.Error("auction: list bids failed", map[string]any{"auction_id": id, "error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidResponse(b))
	}
	return c.JSON(http.StatusOK, echo.Map{"bids": out})
}

// Cancel handles POST /v1/auctions/:id/cancel. Only the seller may
// cancel, and only before the auction reaches a terminal state.
func (h *AuctionHandler) Cancel(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := auctionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	a, err := h.Engine.CancelAuction(c.Request().Context(), id, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAuctionNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		case errors.Is(err, repository.ErrNotOwner):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "only the seller can cancel"})
		case errors.Is(err, repository.ErrTransitionNoop):
			return c.JSON(http.StatusConflict, echo.Map{"error": "auction already finished", "auction": toAuctionResponse(a)})
		}
		utils.Error("auction: cancel failed", map[string]any{"auction_id": id, "error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, toAuctionResponse(a))
}

func auctionID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid auction id")
	}
	return id, nil
}
