package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/openbid/auction-engine/internal/config"
	"github.com/openbid/auction-engine/internal/handler"
	"github.com/openbid/auction-engine/internal/middleware"
)

// Handlers bundles every HTTP handler the API mounts. Grouping them in
// one struct keeps RegisterRoutes' signature stable as endpoints grow.
type Handlers struct {
	Auth     *handler.AuthHandler
	Auctions *handler.AuctionHandler
	Bids     *handler.BidHandler
	Live     *handler.LiveHandler
}

// RegisterRoutes mounts the full API surface on the provided Echo
// instance. Browse endpoints are public; anything that mutates an
// auction requires a valid access token, and bid placement additionally
// passes through the Redis token bucket.
func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	// Liveness probe for load balancers and monitoring.
	e.GET("/healthz", handler.Health)

	// Session endpoints: no token required.
	auth := e.Group("/v1/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)

	// Public browse surface. Guests can list open auctions, inspect one
	// and read its bid history without a session.
	e.GET("/v1/auctions", h.Auctions.List)
	e.GET("/v1/auctions/:id", h.Auctions.Get)
	e.GET("/v1/auctions/:id/bids", h.Auctions.ListBids)

	// Everything below requires an authenticated user.
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	g.POST("/auctions", h.Auctions.Create)
	g.POST("/auctions/:id/cancel", h.Auctions.Cancel)
	g.GET("/auctions/:id/live", h.Live.Live)

	// Bid placement is the hot write path; it alone carries the per-user
	// rate limit.
	g.POST("/auctions/:id/bids", h.Bids.Place, middleware.RateLimit(rl, rdb))
}
