package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/apperrors"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		BaseURL:       serverURL,
		Token:         "test-token",
		ChatsTimeout:  2 * time.Second,
		MaxAttempts:   3,
		RetryInterval: 10 * time.Millisecond,
	})
}

func TestListChatsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chats", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"data": [
				{"id": "5511988887777@s.whatsapp.net", "displayName": "Maria", "unreadCount": 2,
				 "lastMessage": {"conversation": "oi"}, "lastMessageTimestamp": 1700000000}
			]
		}`))
	}))
	defer server.Close()

	chats, err := newTestClient(server.URL).ListChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "5511988887777@s.whatsapp.net", chats[0].ID)
	assert.Equal(t, "Maria", chats[0].DisplayName)
	assert.Equal(t, 2, chats[0].UnreadCount)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "oi", chats[0].LastMessage.Conversation)
}

func TestListChatsRetriesOnSuccessFalse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Write([]byte(`{"success": false, "message": "instance not ready"}`))
			return
		}
		w.Write([]byte(`{"success": true, "data": [{"id": "5511988887777"}]}`))
	}))
	defer server.Close()

	chats, err := newTestClient(server.URL).ListChats(context.Background())
	require.NoError(t, err)
	assert.Len(t, chats, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestListChatsExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ListChats(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsGatewayError(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestListChatsClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ListChats(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestListChatsHonorsOverallTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{"success": true, "data": []}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:       server.URL,
		ChatsTimeout:  50 * time.Millisecond,
		MaxAttempts:   3,
		RetryInterval: 10 * time.Millisecond,
	})

	start := time.Now()
	_, err := client.ListChats(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestProfilePictureSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/profile-picture", r.URL.Path)
		assert.Equal(t, "5511988887777@s.whatsapp.net", r.URL.Query().Get("phone"))
		w.Write([]byte(`{"avatar": "https://cdn.example.com/a.jpg"}`))
	}))
	defer server.Close()

	url, err := newTestClient(server.URL).ProfilePicture(context.Background(), "5511988887777@c.us")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", url)
}

func TestProfilePictureAbsenceIsNotAnError(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "empty body field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{}`))
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			url, err := newTestClient(server.URL).ProfilePicture(context.Background(), "5511988887777")
			require.NoError(t, err)
			assert.Empty(t, url)
		})
	}
}

func TestProfilePictureServerErrorIsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ProfilePicture(context.Background(), "5511988887777")
	require.Error(t, err)
	assert.True(t, apperrors.IsGatewayError(err))
}

func TestLinearBackOffProgression(t *testing.T) {
	b := &linearBackOff{interval: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 300*time.Millisecond, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
}
