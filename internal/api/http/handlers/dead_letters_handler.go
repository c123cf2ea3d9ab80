package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-engine/internal/api/dto"
	"github.com/spec-kit/support-engine/internal/repository"
)

// DeadLettersHandler exposes undeliverable events for manual inspection.
type DeadLettersHandler struct {
	deadLetters repository.DeadLetterRepository
}

// NewDeadLettersHandler constructs handler.
func NewDeadLettersHandler(deadLetters repository.DeadLetterRepository) *DeadLettersHandler {
	return &DeadLettersHandler{deadLetters: deadLetters}
}

// List handles GET /dead-letters?limit=50&offset=0.
func (h *DeadLettersHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	letters, err := h.deadLetters.List(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}

	items := make([]dto.DeadLetterResponse, 0, len(letters))
	for _, letter := range letters {
		items = append(items, dto.FromDeadLetter(letter))
	}
	return c.JSON(fiber.Map{"data": items})
}
