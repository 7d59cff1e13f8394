package chat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/maturity-report/internal/domain"
)

func TestDecodeHistory(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []domain.StoredMessage
	}{
		{
			name: "envelope",
			body: `{"messages":[{"role":"user","content":"q"},{"role":"assistant","content":"a"}]}`,
			want: []domain.StoredMessage{{Role: "user", Content: "q"}, {Role: "assistant", Content: "a"}},
		},
		{
			name: "bare array with aliases",
			body: `[{"type":"human","text":"q"},{"type":"ai","content":"a"},{"role":"system","content":"skip"},{"role":"user","content":" "}]`,
			want: []domain.StoredMessage{{Role: "user", Content: "q"}, {Role: "assistant", Content: "a"}},
		},
		{name: "null", body: `null`, want: nil},
		{name: "empty envelope", body: `{}`, want: []domain.StoredMessage{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeHistory([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := decodeHistory([]byte(`{"messages": "nope"}`))
	assert.Error(t, err)
}

func TestHTTPHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("sessionId") {
		case "known":
			_, _ = io.WriteString(w, `{"messages":[{"role":"user","content":"hello"}]}`)
		case "boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	h := NewHTTPHistory(srv.URL+"/history?tenant=acme", nil)
	ctx := context.Background()

	msgs, err := h.History(ctx, "known")
	require.NoError(t, err)
	assert.Equal(t, []domain.StoredMessage{{Role: "user", Content: "hello"}}, msgs)

	msgs, err = h.History(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = h.History(ctx, "boom")
	assert.Error(t, err)
}
