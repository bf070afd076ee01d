package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken123/sendMessage", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "chat42", body["chat_id"])
		assert.Equal(t, "daily summary", body["text"])

		fmt.Fprint(w, `{"ok": true}`)
	}))
	t.Cleanup(server.Close)

	n := NewTelegram("token123", "chat42", WithBaseURL(server.URL))
	assert.NoError(t, n.Send(context.Background(), "daily summary"))
}

func TestSend_MissingCredentials(t *testing.T) {
	n := NewTelegram("", "")
	assert.Error(t, n.Send(context.Background(), "hello"))
}

func TestSend_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok": false, "description": "chat not found"}`)
	}))
	t.Cleanup(server.Close)

	n := NewTelegram("token123", "badchat", WithBaseURL(server.URL))
	err := n.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
