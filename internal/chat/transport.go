// Package chat manages per-report assistant conversations.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrAssistant is returned when the assistant reports a failure.
	ErrAssistant = errors.New("assistant error")

	// ErrEmptyReply is returned when the assistant answers with no text.
	ErrEmptyReply = errors.New("assistant returned an empty reply")
)

// Request is one question sent to the assistant.
type Request struct {
	JobID         string `json:"jobId"`
	SessionID     string `json:"sessionId"`
	Message       string `json:"message"`
	ReportContext string `json:"reportContext"`
}

// Transport delivers a request to the assistant and returns its reply.
// Implementations must return promptly with ctx.Err() once ctx is cancelled.
type Transport interface {
	Ask(ctx context.Context, req Request) (string, error)
}

// HTTPTransport posts requests to an HTTP chat endpoint.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport returns a transport for endpoint. Request deadlines come
// from the caller's context.
func NewHTTPTransport(endpoint string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{endpoint: endpoint, client: client}
}

type httpReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Ask implements Transport.
func (t *HTTPTransport) Ask(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var reply httpReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", fmt.Errorf("%w: status %d", ErrAssistant, resp.StatusCode)
		}
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reply.Success = false
		if reply.Error == "" {
			reply.Error = fmt.Sprintf("status %d", resp.StatusCode)
		}
	}
	return interpretReply(reply.Success, reply.Message, reply.Error)
}

func interpretReply(success bool, message, errMsg string) (string, error) {
	if !success {
		if errMsg == "" {
			errMsg = "request rejected"
		}
		return "", fmt.Errorf("%w: %s", ErrAssistant, errMsg)
	}
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyReply
	}
	return message, nil
}
