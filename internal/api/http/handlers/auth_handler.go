package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-engine/internal/api/dto"
	"github.com/spec-kit/support-engine/internal/auth"
	"github.com/spec-kit/support-engine/internal/config"
)

// AuthHandler exposes the operator login endpoint.
type AuthHandler struct {
	tokens *auth.TokenManager
	cfg    config.AuthConfig
}

// NewAuthHandler constructs handler.
func NewAuthHandler(tokens *auth.TokenManager, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{tokens: tokens, cfg: cfg}
}

// Login handles POST /auth/operators/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.OperatorLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Operator == "" || req.Key == "" {
		return fiber.NewError(http.StatusBadRequest, "operator and key required")
	}
	if h.cfg.OperatorKeyHash == "" {
		return fiber.NewError(http.StatusUnauthorized, "operator access not configured")
	}
	if err := auth.CompareKey(h.cfg.OperatorKeyHash, req.Key); err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}

	token, exp, err := h.tokens.GenerateToken(req.Operator)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"operator": req.Operator,
			"auth":     dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}
