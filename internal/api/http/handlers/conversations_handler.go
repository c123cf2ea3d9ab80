package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-engine/internal/api/dto"
	"github.com/spec-kit/support-engine/internal/repository"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// ConversationsHandler exposes conversation history and ticket lookups.
type ConversationsHandler struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	tickets       repository.TicketRepository
}

// NewConversationsHandler constructs handler.
func NewConversationsHandler(conversations repository.ConversationRepository, messages repository.MessageRepository, tickets repository.TicketRepository) *ConversationsHandler {
	return &ConversationsHandler{conversations: conversations, messages: messages, tickets: tickets}
}

// Get handles GET /conversations/:id.
func (h *ConversationsHandler) Get(c *fiber.Ctx) error {
	conversation, err := h.conversations.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("conversation", map[string]any{"id": c.Params("id")})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromConversation(*conversation)})
}

// Messages handles GET /conversations/:id/messages?after=<seq>&limit=50.
// History is ordered by insertion sequence, which is also the cursor, so a
// client walking pages sees every row exactly once.
func (h *ConversationsHandler) Messages(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	limit := c.QueryInt("limit", 50)

	afterSeq := int64(0)
	if raw := c.Query("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return fiber.NewError(http.StatusBadRequest, "invalid cursor")
		}
		afterSeq = parsed
	}

	if _, err := h.conversations.GetByID(c.UserContext(), conversationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("conversation", map[string]any{"id": conversationID})
		}
		return err
	}

	page, err := h.messages.ListByConversation(c.UserContext(), conversationID, afterSeq, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromMessagePage(page)})
}

// Ticket handles GET /conversations/:id/ticket.
func (h *ConversationsHandler) Ticket(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetByConversation(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"conversation_id": c.Params("id")})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}
