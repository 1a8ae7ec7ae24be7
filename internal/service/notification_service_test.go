package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tpia/internal/domain"
	"tpia/internal/repository"
	"tpia/internal/testutil"
)

type capturePusher struct {
	mu    sync.Mutex
	users []uint
}

func (p *capturePusher) BroadcastToUser(userID uint, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userID)
}

func TestNotifyStoresPushesAndPostsWebhook(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.SeedUser(t, db, "noor", true)

	got := make(chan WebhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		got <- p
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pusher := &capturePusher{}
	svc := NewNotificationService(repository.NewNotificationRepository(db), pusher, NewWebhookSender(srv.URL, time.Second), nil)
	svc.Notify(context.Background(), user.ID, domain.NotifyUnitApproved, "Unit approved", "TPIA-000001 is active.", map[string]any{"unit_id": 1})

	select {
	case p := <-got:
		require.Equal(t, domain.NotifyUnitApproved, p.Event)
		require.Equal(t, user.ID, p.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}
	require.Equal(t, []uint{user.ID}, pusher.users)

	list, err := svc.List(context.Background(), user.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Nil(t, list[0].ReadAt)

	require.NoError(t, svc.MarkRead(context.Background(), list[0].ID, user.ID))
	list, err = svc.List(context.Background(), user.ID, 10, 0)
	require.NoError(t, err)
	require.NotNil(t, list[0].ReadAt)
}

func TestWebhookSenderReportsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	require.Nil(t, NewWebhookSender("", time.Second))
	err := NewWebhookSender(srv.URL, time.Second).Send(context.Background(), WebhookPayload{Event: "x"})
	require.Error(t, err)
}
