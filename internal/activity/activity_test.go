package activity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/pricebook/internal/domain"
)

type recordingLogger struct {
	entries []domain.ActivityEntry
	err     error
}

func (r *recordingLogger) Log(_ context.Context, e domain.ActivityEntry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func TestMulti_DeliversToEverySink(t *testing.T) {
	failing := &recordingLogger{err: errors.New("sink down")}
	ok := &recordingLogger{}

	err := Multi{failing, nil, ok}.Log(context.Background(), domain.ActivityEntry{OrganizationID: "org-1"})
	assert.ErrorContains(t, err, "sink down")
	assert.Len(t, failing.entries, 1)
	assert.Len(t, ok.entries, 1)
}

func TestWebhook_Log(t *testing.T) {
	var got webhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(&WebhookConfig{URL: srv.URL, Token: "tkn"})
	err := hook.Log(context.Background(), domain.ActivityEntry{
		OrganizationID: "org-1",
		EntityType:     domain.EntityPricingMode,
		EntityID:       "m1",
		Action:         domain.ActionCreated,
		Description:    "Created pricing mode Rush Job",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tkn", auth)
	assert.Equal(t, "m1", got.EntityID)
	assert.Equal(t, domain.ActionCreated, got.Action)
	assert.False(t, got.OccurredAt.IsZero())
}

func TestWebhook_LogErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(&WebhookConfig{URL: srv.URL}).Log(context.Background(), domain.ActivityEntry{})
	assert.ErrorContains(t, err, "502")
}
