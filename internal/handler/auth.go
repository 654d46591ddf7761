package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openbid/auction-engine/internal/repository"
	"github.com/openbid/auction-engine/internal/utils"
)

// AuthHandler implements the minimal session surface: register and
// login. Full account management belongs to the external user service;
// the engine only needs bids to carry an authenticated bidder id.
type AuthHandler struct {
	Users      *repository.UserRepo
	JWTSecret  string
	AccessTTL  int // minutes
	BcryptCost int
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *repository.UserRepo, jwtSecret string, accessTTLMin, bcryptCost int) *AuthHandler {
	if users == nil {
		panic("nil repository passed to NewAuthHandler")
	}
	return &AuthHandler{Users: users, JWTSecret: jwtSecret, AccessTTL: accessTTLMin, BcryptCost: bcryptCost}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /v1/auth/register. It creates an account and
// returns 201 with the new user id.
func (h *AuthHandler) Register(c echo.Context) error {
	var body credentialsRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	email := strings.TrimSpace(body.Email)
	if email == "" || !strings.Contains(email, "@") || len(body.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email and a password of at least 8 characters are required"})
	}
	id, err := h.Users.Create(c.Request().Context(), email, body.Password, h.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		utils.Error("auth: register failed", map[string]any{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

// Login handles POST /v1/auth/login. On valid credentials it returns an
// access token and its expiry.
func (h *AuthHandler) Login(c echo.Context) error {
	var body credentialsRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	u, err := h.Users.GetByEmail(c.Request().Context(), body.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		utils.Error("auth: login lookup failed", map[string]any{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if !utils.VerifyPassword(u.PasswordHash, body.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	tok, err := utils.NewAccessToken(h.JWTSecret, u.ID, h.AccessTTL)
	if err != nil {
		utils.Error("auth: token signing failed", map[string]any{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": tok.Token,
		"expires_at":   tok.Exp.Format(time.RFC3339),
	})
}
