package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/openbid/auction-engine/internal/engine"
	"github.com/openbid/auction-engine/internal/middleware"
	"github.com/openbid/auction-engine/internal/repository"
	"github.com/openbid/auction-engine/internal/utils"
)

// BidHandler serves bid placement. Everything interesting happens in
// the engine; this layer only parses, delegates, and maps the failure
// taxonomy onto HTTP status codes.
type BidHandler struct {
	Engine *engine.Engine
}

// NewBidHandler constructs a BidHandler.
func NewBidHandler(eng *engine.Engine) *BidHandler {
	if eng == nil {
		panic("nil engine passed to NewBidHandler")
	}
	return &BidHandler{Engine: eng}
}

type placeBidRequest struct {
	Amount string `json:"amount"`
}

// Place handles POST /v1/auctions/:id/bids. On success it returns 201
// with the created bid; the new current price equals the bid amount.
//
// Failure mapping: 404 unknown auction, 400 inactive auction or amount
// not above the current price, 403 self-bid, 409 when the bid kept
// losing the price race after internal retries — the client should
// refresh and resubmit.
func (h *BidHandler) Place(c echo.Context) error {
	bidderID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := auctionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	var body placeBidRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be a positive decimal"})
	}

	bid, err := h.Engine.PlaceBid(c.Request().Context(), id, bidderID, amount)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAuctionNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		case errors.Is(err, repository.ErrAuctionNotActive):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "auction is not open for bidding"})
		case errors.Is(err, repository.ErrBidTooLow):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must exceed the current price"})
		case errors.Is(err, repository.ErrSelfBid):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "you cannot bid on your own auction"})
		case errors.Is(err, repository.ErrPriceConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "price changed, refresh and try again"})
		}
		utils.Error("bid: place failed", map[string]any{"auction_id": id, "error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"bid":           toBidResponse(bid),
		"current_price": bid.Amount.StringFixed(2),
	})
}
