package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	apperrors "tgcord/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/getUpdates", r.URL.Path)
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(10), payload["offset"])
		assert.Equal(t, float64(30), payload["timeout"])

		_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":10,"channel_post":{"message_id":5,"chat":{"id":-100,"type":"channel"},"date":1700000000,"text":"hi"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "TOKEN", nil)
	updates, err := client.GetUpdates(context.Background(), 10, 30)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(10), updates[0].UpdateID)
	require.NotNil(t, updates[0].ChannelPost)
	assert.Equal(t, "hi", updates[0].ChannelPost.Text)
}

func TestCall_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: file is too big"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "TOKEN", nil)
	_, err := client.GetFile(context.Background(), "abc")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsFileTooBig())
	assert.Equal(t, 400, apiErr.Code)
	assert.Equal(t, apperrors.ErrCodeTelegramAPI, apperrors.GetCode(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestCall_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "TOKEN", nil)
	_, err := client.CreateChatInviteLink(context.Background(), -100, "bridge-autoinvite")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 7, apiErr.RetryAfter)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestCreateChatInviteLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "bridge-autoinvite", payload["name"])
		_, _ = w.Write([]byte(`{"ok":true,"result":{"invite_link":"https://t.me/+abc","name":"bridge-autoinvite"}}`))
	}))
	defer server.Close()

	link, err := NewClient(server.URL, "TOKEN", nil).CreateChatInviteLink(context.Background(), -100, "bridge-autoinvite")
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+abc", link)
}

func TestDownloadFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/file/botTOKEN/videos/file_1.mp4", r.URL.Path)
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.mp4")
	n, err := NewClient(server.URL, "TOKEN", nil).DownloadFile(context.Background(), "videos/file_1.mp4", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestDownloadFile_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.mp4")
	_, err := NewClient(server.URL, "TOKEN", nil).DownloadFile(context.Background(), "x", dest)
	require.Error(t, err)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "alert", payload["text"])
		assert.Equal(t, float64(-42), payload["chat_id"])
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":-42},"date":1}}`))
	}))
	defer server.Close()

	require.NoError(t, NewClient(server.URL, "TOKEN", nil).SendMessage(context.Background(), -42, "alert"))
}

func TestNetworkErrorHidesBotToken(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "123456:SECRET-BOT-TOKEN", nil)

	_, err := client.GetMe(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-BOT-TOKEN")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNetwork))

	_, err = client.DownloadFile(context.Background(), "photos/file_1.jpg", filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-BOT-TOKEN")
}

func TestMalformedBaseURLHidesBotToken(t *testing.T) {
	client := NewClient("http://bad host", "123456:SECRET-BOT-TOKEN", nil)

	err := client.SendMessage(context.Background(), 1, "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-BOT-TOKEN")
}
