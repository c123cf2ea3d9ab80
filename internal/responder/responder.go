// Package responder defines the contract with the external reply-generation
// collaborator. The engine treats it as opaque: conversation history and
// customer context in, reply text plus an escalation recommendation out.
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/support-engine/internal/domain"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// Request carries everything the responder needs for one turn.
type Request struct {
	ConversationID string           `json:"conversation_id"`
	Customer       domain.Customer  `json:"customer"`
	History        []domain.Message `json:"history"`
	Subject        string           `json:"subject,omitempty"`
	Body           string           `json:"body"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
}

// Result is the responder's answer. Chunks, when present, carry the reply as
// a finite ordered sequence; Text is the joined form consumed by delivery.
type Result struct {
	Text      string   `json:"text"`
	Chunks    []string `json:"chunks,omitempty"`
	Escalate  bool     `json:"escalate"`
	Reason    string   `json:"reason,omitempty"`
	Resolved  bool     `json:"resolved"`
	Sentiment *float64 `json:"sentiment,omitempty"`
	ToolCalls int      `json:"tool_calls"`
}

// FullText joins chunked output when the responder streamed its reply.
func (r *Result) FullText() string {
	if len(r.Chunks) > 0 {
		return strings.Join(r.Chunks, "")
	}
	return r.Text
}

// Responder produces a reply for a conversation turn.
type Responder interface {
	Respond(ctx context.Context, req Request) (*Result, error)
}

// HTTPResponder calls a responder service over HTTP with a bounded timeout.
type HTTPResponder struct {
	url    string
	client *http.Client
}

// NewHTTPResponder constructs the client.
func NewHTTPResponder(url string, timeout time.Duration) *HTTPResponder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPResponder{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Respond posts the request and decodes the result. Deadline overruns map to
// the retryable timeout error; other failures to the retryable failure error.
func (r *HTTPResponder) Respond(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.NewResponderFailure(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewResponderFailure(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, apperrors.NewResponderTimeout(err)
		}
		return nil, apperrors.NewResponderFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewResponderFailure(fmt.Errorf("responder returned status %d", resp.StatusCode))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.NewResponderFailure(err)
	}
	return &result, nil
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
