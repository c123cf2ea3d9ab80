package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-engine/internal/api/dto"
	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/repository"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// CustomersHandler exposes the customer lookup surface for operators.
type CustomersHandler struct {
	customers     repository.CustomerRepository
	conversations repository.ConversationRepository
}

// NewCustomersHandler constructs handler.
func NewCustomersHandler(customers repository.CustomerRepository, conversations repository.ConversationRepository) *CustomersHandler {
	return &CustomersHandler{customers: customers, conversations: conversations}
}

// Lookup handles GET /customers/lookup?type=EMAIL&value=a@x.com.
func (h *CustomersHandler) Lookup(c *fiber.Ctx) error {
	identifierType := domain.IdentifierType(c.Query("type"))
	value := c.Query("value")
	if value == "" {
		return fiber.NewError(http.StatusBadRequest, "type and value required")
	}
	switch identifierType {
	case domain.IdentifierTypeEmail, domain.IdentifierTypePhone, domain.IdentifierTypeAnonToken:
	default:
		return fiber.NewError(http.StatusBadRequest, "unknown identifier type")
	}

	identifier, err := h.customers.GetIdentifier(c.UserContext(), identifierType, value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("customer", map[string]any{"type": identifierType, "value": value})
		}
		return err
	}

	customer, err := h.customers.GetByID(c.UserContext(), identifier.CustomerID)
	if err != nil {
		return err
	}
	identifiers, err := h.customers.ListIdentifiers(c.UserContext(), customer.ID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": dto.FromCustomer(customer, identifiers)})
}

// Conversations handles GET /customers/:id/conversations.
func (h *CustomersHandler) Conversations(c *fiber.Ctx) error {
	customerID := c.Params("id")
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	if _, err := h.customers.GetByID(c.UserContext(), customerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("customer", map[string]any{"id": customerID})
		}
		return err
	}

	conversations, err := h.conversations.ListByCustomer(c.UserContext(), customerID, limit, offset)
	if err != nil {
		return err
	}

	items := make([]dto.ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		items = append(items, dto.FromConversation(conversation))
	}
	return c.JSON(fiber.Map{"data": items})
}
