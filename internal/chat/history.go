package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashureev/maturity-report/internal/domain"
)

// HistorySource returns the server-side transcript for a chat session.
type HistorySource interface {
	History(ctx context.Context, sessionID string) ([]domain.StoredMessage, error)
}

// HTTPHistory reads transcripts from an HTTP endpoint.
type HTTPHistory struct {
	endpoint string
	client   *http.Client
}

// NewHTTPHistory returns a history source for endpoint.
func NewHTTPHistory(endpoint string, client *http.Client) *HTTPHistory {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPHistory{endpoint: endpoint, client: client}
}

// History fetches the transcript. A 404 is an empty history. The body may be
// {"messages": [...]} or a bare array.
func (h *HTTPHistory) History(ctx context.Context, sessionID string) ([]domain.StoredMessage, error) {
	u, err := url.Parse(h.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse history endpoint: %w", err)
	}
	q := u.Query()
	q.Set("sessionId", sessionID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create history request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch history: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return decodeHistory(raw)
}

type wireMessage struct {
	Role    string `json:"role"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Text    string `json:"text"`
}

func decodeHistory(raw []byte) ([]domain.StoredMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var items []wireMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
	} else {
		var envelope struct {
			Messages []wireMessage `json:"messages"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		items = envelope.Messages
	}

	out := make([]domain.StoredMessage, 0, len(items))
	for _, m := range items {
		role := roleOf(m.Role, m.Type)
		content := m.Content
		if content == "" {
			content = m.Text
		}
		if role == "" || strings.TrimSpace(content) == "" {
			continue
		}
		out = append(out, domain.StoredMessage{Role: role, Content: content})
	}
	return out, nil
}

func roleOf(values ...string) string {
	for _, v := range values {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "user", "human":
			return domain.RoleUser
		case "assistant", "ai", "bot", "model":
			return domain.RoleAssistant
		}
	}
	return ""
}
