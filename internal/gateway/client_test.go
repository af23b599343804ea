package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
)

const testToken = "header.payload.signature"

func newTestClient(t *testing.T, r http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL + "/", Token: testToken}, srv.Client())
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: ""}, nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "ftp://example.com"}, nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "https://example.com/api/"}, nil)
	require.NoError(t, err)
}

func TestListConversationsSendsBearerToken(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "c1", "title": "first", "created_at": "2024-05-01T10:00:00Z", "updated_at": "2024-05-01T11:00:00Z"},
			{"id": "c2", "title": "second", "created_at": "2024-05-01T09:00:00Z", "updated_at": "2024-05-01T09:00:00Z"},
		})
	})
	client := newTestClient(t, r)

	got, err := client.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c1", got[0].ID)
	require.Equal(t, "first", got[0].Title)
	require.Equal(t, 11, got[0].UpdatedAt.Hour())
}

func TestCreateConversationPostsTitle(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "New conversation", body["title"])
		writeJSON(w, http.StatusCreated, map[string]any{"id": "c9", "title": body["title"]})
	})
	client := newTestClient(t, r)

	got, err := client.CreateConversation(context.Background(), "New conversation")
	require.NoError(t, err)
	require.Equal(t, "c9", got.ID)
}

func TestSendMessagePairShape(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/chat/message", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "c1", body["conversation_id"])
		require.Equal(t, "hello", body["message"])
		writeJSON(w, http.StatusOK, map[string]any{
			"user_message":      map[string]any{"id": "u1", "conversation_id": "c1", "role": "user", "content": "hello"},
			"assistant_message": map[string]any{"id": "a1", "conversation_id": "c1", "role": "assistant", "content": "hi!"},
		})
	})
	client := newTestClient(t, r)

	ex, err := client.SendMessage(context.Background(), "c1", "hello")
	require.NoError(t, err)
	require.Equal(t, chat.ConfirmedID("u1"), ex.User.ID)
	require.Equal(t, chat.ConfirmedID("a1"), ex.Assistant.ID)
	require.Equal(t, "hi!", ex.Assistant.Content)
}

func TestSendMessageAssistantOnlySynthesisesUserTurn(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/chat/message", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 17, "content": "reply", "created_at": "2024-05-01T10:00:00Z"})
	})
	client := newTestClient(t, r)

	ex, err := client.SendMessage(context.Background(), "c1", "question")
	require.NoError(t, err)

	require.Equal(t, "17", ex.Assistant.ID.String())
	require.Equal(t, chat.RoleAssistant, ex.Assistant.Role)
	require.Equal(t, "c1", ex.Assistant.ConversationID)

	require.Equal(t, chat.ConfirmedID("echo:17"), ex.User.ID)
	require.False(t, ex.User.IsProvisional())
	require.Equal(t, chat.RoleUser, ex.User.Role)
	require.Equal(t, "question", ex.User.Content)
	require.Equal(t, "c1", ex.User.ConversationID)
	require.False(t, ex.User.CreatedAt.After(ex.Assistant.CreatedAt))
}

func TestSendMessageWithoutReplyFails(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/chat/message", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	client := newTestClient(t, r)

	_, err := client.SendMessage(context.Background(), "c1", "question")
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, "send message", gwErr.Op)
}

func TestErrorReasonPrefersDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail", http.StatusBadRequest, `{"detail":"conversation is archived","error":"bad"}`, "conversation is archived"},
		{"error field", http.StatusInternalServerError, `{"error":"boom"}`, "boom"},
		{"not json", http.StatusBadGateway, `<html>oops</html>`, "could not send the message"},
		{"empty", http.StatusServiceUnavailable, ``, "could not send the message"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/chat/message", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			client := newTestClient(t, r)

			_, err := client.SendMessage(context.Background(), "c1", "hi")
			var gwErr *Error
			require.True(t, errors.As(err, &gwErr))
			require.Equal(t, tc.status, gwErr.Status)
			require.Equal(t, tc.want, gwErr.Reason)
		})
	}
}

func TestDeleteAndRenameAcceptNoContent(t *testing.T) {
	r := chi.NewRouter()
	r.Delete("/chat/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "c 1", chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Patch("/chat/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["title"] != "fresh title" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, r)

	require.NoError(t, client.DeleteConversation(context.Background(), "c 1"))
	require.NoError(t, client.RenameConversation(context.Background(), "c1", "fresh title"))
	require.Error(t, client.RenameConversation(context.Background(), "c1", "other"))
}

func TestGetMessagesFillsConversationID(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/chat/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "m1", "role": "user", "content": "hi"},
			{"id": "m2", "role": "assistant", "content": "hello"},
		})
	})
	client := newTestClient(t, r)

	msgs, err := client.GetMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		require.Equal(t, "c1", m.ConversationID)
	}
}

func TestTokenIsCheckedBeforeAnyRequest(t *testing.T) {
	var called atomic.Bool
	r := chi.NewRouter()
	r.Get("/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
		writeJSON(w, http.StatusOK, []any{})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	for _, token := range []string{"", "opaque-token"} {
		client, err := New(Config{BaseURL: srv.URL, Token: token}, srv.Client())
		require.NoError(t, err)

		_, err = client.ListConversations(context.Background())
		var gwErr *Error
		require.True(t, errors.As(err, &gwErr))
		require.Zero(t, gwErr.Status)
		require.Contains(t, gwErr.Reason, "log in again")
	}
	require.False(t, called.Load())

	client, err := New(Config{BaseURL: srv.URL, Token: "opaque-token", AllowOpaqueToken: true}, srv.Client())
	require.NoError(t, err)
	_, err = client.ListConversations(context.Background())
	require.NoError(t, err)
	require.True(t, called.Load())
}

func TestUnreachableRemote(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := New(Config{BaseURL: url, Token: testToken}, nil)
	require.NoError(t, err)

	_, err = client.ListConversations(context.Background())
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, "service unavailable", gwErr.Reason)
	require.NotNil(t, errors.Unwrap(gwErr))
}
