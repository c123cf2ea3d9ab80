package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-engine/internal/api/dto"
	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/repository"
)

type stubConversationRepo struct {
	conversations map[string]domain.Conversation
}

func (s *stubConversationRepo) Create(ctx context.Context, conversation *domain.Conversation) error {
	return nil
}

func (s *stubConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	conversation, ok := s.conversations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &conversation, nil
}

func (s *stubConversationRepo) ListActiveByCustomer(ctx context.Context, customerID string) ([]domain.Conversation, error) {
	return nil, nil
}

func (s *stubConversationRepo) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]domain.Conversation, error) {
	return nil, nil
}

func (s *stubConversationRepo) Close(ctx context.Context, id string, resolution domain.ResolutionType, endedAt time.Time) error {
	return nil
}

func (s *stubConversationRepo) UpdateSentiment(ctx context.Context, id string, sentiment float64) error {
	return nil
}

func (s *stubConversationRepo) CloseIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// stubMessageRepo implements the repository contract: history is paged in
// insertion order (seq), not by timestamp.
type stubMessageRepo struct {
	messages []domain.Message
}

func (s *stubMessageRepo) Create(ctx context.Context, message *domain.Message) error { return nil }

func (s *stubMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	return nil, pgx.ErrNoRows
}

func (s *stubMessageRepo) GetByChannelMessageID(ctx context.Context, channel domain.Channel, channelMessageID string) (*domain.Message, error) {
	return nil, pgx.ErrNoRows
}

func (s *stubMessageRepo) ListByConversation(ctx context.Context, conversationID string, afterSeq int64, limit int) (*repository.MessagePage, error) {
	if limit <= 0 {
		limit = 50
	}
	page := &repository.MessagePage{}
	for _, message := range s.messages {
		if message.ConversationID != conversationID || message.Seq <= afterSeq {
			continue
		}
		if len(page.Messages) == limit {
			page.HasMore = true
			break
		}
		page.Messages = append(page.Messages, message)
	}
	if len(page.Messages) > 0 {
		page.NextCursor = page.Messages[len(page.Messages)-1].Seq
	}
	return page, nil
}

func (s *stubMessageRepo) UpdateDeliveryStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	return nil
}

type stubTicketRepo struct{}

func (s *stubTicketRepo) CreateIfAbsent(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	return ticket, nil
}

func (s *stubTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}

func (s *stubTicketRepo) GetByConversation(ctx context.Context, conversationID string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}

func (s *stubTicketRepo) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, escalationReason, resolutionNotes *string) error {
	return nil
}

func newMessagesApp(messages []domain.Message) *fiber.App {
	conversations := &stubConversationRepo{conversations: map[string]domain.Conversation{
		"conv-1": {ID: "conv-1", CustomerID: "cust-1", Status: domain.ConversationStatusActive},
	}}
	handler := NewConversationsHandler(conversations, &stubMessageRepo{messages: messages}, &stubTicketRepo{})

	app := fiber.New()
	app.Get("/conversations/:id/messages", handler.Messages)
	return app
}

func fetchPage(t *testing.T, app *fiber.App, url string) dto.MessagePageResponse {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.MessagePageResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Data
}

func TestMessages_CursorWalksEveryRowWithSkewedTimestamps(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	// seq order and created_at order deliberately disagree: the second row
	// carries an earlier received_at than the first.
	messages := []domain.Message{
		{ID: "msg-1", Seq: 5, ConversationID: "conv-1", Body: "first", CreatedAt: base},
		{ID: "msg-2", Seq: 6, ConversationID: "conv-1", Body: "backdated", CreatedAt: base.Add(-time.Hour)},
		{ID: "msg-3", Seq: 7, ConversationID: "conv-1", Body: "third", CreatedAt: base.Add(time.Minute)},
	}
	app := newMessagesApp(messages)

	var seen []string
	cursor := int64(0)
	for i := 0; i < len(messages); i++ {
		page := fetchPage(t, app, fmt.Sprintf("/conversations/conv-1/messages?limit=1&after=%d", cursor))
		require.Len(t, page.Messages, 1)
		assert.Greater(t, page.Messages[0].Seq, cursor, "cursor must advance with the sort key")
		seen = append(seen, page.Messages[0].ID)
		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}

	assert.Equal(t, []string{"msg-1", "msg-2", "msg-3"}, seen,
		"every row appears exactly once, in insertion order")
}

func TestMessages_RejectsMalformedCursor(t *testing.T) {
	app := newMessagesApp(nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/conversations/conv-1/messages?after=banana", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
