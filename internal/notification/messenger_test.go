package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineClientPush(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/message/push", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewLineClient(srv.URL, "tok", time.Second)
	require.NoError(t, c.Push(context.Background(), "U1", "こんにちは"))
	assert.Equal(t, "U1", got.To)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "text", got.Messages[0].Type)
	assert.Equal(t, "こんにちは", got.Messages[0].Text)
}

func TestLineClientPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"The property, 'to', in the request body is invalid"}`))
	}))
	defer srv.Close()

	err := NewLineClient(srv.URL, "tok", time.Second).Push(context.Background(), "bad", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Contains(t, err.Error(), "invalid")

	err = NewLineClient(srv.URL, "", time.Second).Push(context.Background(), "U1", "x")
	assert.Error(t, err)
}
