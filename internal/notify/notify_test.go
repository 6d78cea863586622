package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTelegram_Nop(t *testing.T) {
	assert.IsType(t, Nop{}, NewTelegram("https://api.telegram.org", "", []string{"1"}))
	assert.IsType(t, Nop{}, NewTelegram("https://api.telegram.org", "token", nil))
	assert.NoError(t, Nop{}.NotifyAdmins(context.Background(), "hi"))
}

func TestTelegram_NotifyAdmins(t *testing.T) {
	t.Run("SendsToEveryAdmin", func(t *testing.T) {
		var (
			mu    sync.Mutex
			chats []string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/botbot-token/sendMessage", r.URL.Path)

			var body sendMessageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "paid", body.Text)
			assert.Equal(t, "Markdown", body.ParseMode)

			mu.Lock()
			chats = append(chats, body.ChatID)
			mu.Unlock()

			w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		n := NewTelegram(srv.URL+"/", "bot-token", []string{"100", "200"})
		require.NoError(t, n.NotifyAdmins(context.Background(), "paid"))
		assert.Equal(t, []string{"100", "200"}, chats)
	})

	t.Run("Rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
		}))
		defer srv.Close()

		err := NewTelegram(srv.URL, "bot-token", []string{"100"}).NotifyAdmins(context.Background(), "paid")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat not found")
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		err := NewTelegram(srv.URL, "secret-bot-token", []string{"100"}).NotifyAdmins(context.Background(), "paid")
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "secret-bot-token")
	})
}
