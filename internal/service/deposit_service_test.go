package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tpia/internal/domain"
)

func TestDepositConfirmIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	uid := h.investor(0)
	in := DepositConfirmation{
		UserID:      uid,
		Amount:      dec(50_000),
		Provider:    "gateway",
		ProviderRef: "PSK-1001",
		Metadata:    map[string]any{"channel": "card"},
	}

	p, credited, err := h.deposits.Confirm(ctx, in)
	require.NoError(t, err)
	require.True(t, credited)
	require.Equal(t, domain.PaymentCompleted, p.Status)
	require.NotEmpty(t, p.LedgerReference)

	again, credited, err := h.deposits.Confirm(ctx, in)
	require.NoError(t, err)
	require.False(t, credited)
	require.Equal(t, p.ID, again.ID)

	require.Equal(t, "50000", h.wallet(uid).Balance.String())
	require.Equal(t, 1, h.notifier.count(domain.NotifyDepositConfirmed))

	list, err := h.deposits.ListForUser(ctx, uid, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestDepositConfirmValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	uid := h.investor(0)

	_, _, err := h.deposits.Confirm(ctx, DepositConfirmation{UserID: uid, Amount: dec(0), ProviderRef: "X"})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, _, err = h.deposits.Confirm(ctx, DepositConfirmation{UserID: uid, Amount: dec(10)})
	require.ErrorIs(t, err, domain.ErrMissingReference)

	_, _, err = h.deposits.Confirm(ctx, DepositConfirmation{UserID: uid + 500, Amount: dec(10), Provider: "gateway", ProviderRef: "PSK-404"})
	require.ErrorIs(t, err, domain.ErrWalletNotFound)
	var n int64
	require.NoError(t, h.db.Table("payments").Count(&n).Error)
	require.Zero(t, n)
}
