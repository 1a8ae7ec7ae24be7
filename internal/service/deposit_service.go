package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/ledger"
	"tpia/internal/models"
	"tpia/internal/repository"
)

// DepositConfirmation is a verified gateway notification.
type DepositConfirmation struct {
	UserID      uint
	Amount      decimal.Decimal
	Currency    string
	Provider    string
	ProviderRef string
	Metadata    map[string]any
}

// DepositService credits confirmed gateway payments to the wallet.
type DepositService struct {
	d        Deps
	payments *repository.PaymentRepository
}

func NewDepositService(d Deps) *DepositService {
	d = d.withDefaults()
	return &DepositService{d: d, payments: repository.NewPaymentRepository(d.DB)}
}

// Confirm credits the deposit once per provider reference. A replayed
// confirmation returns the stored payment and moves no money.
func (s *DepositService) Confirm(ctx context.Context, in DepositConfirmation) (*models.Payment, bool, error) {
	if !in.Amount.IsPositive() {
		return nil, false, domain.ErrInvalidAmount
	}
	ref := strings.TrimSpace(in.ProviderRef)
	if ref == "" {
		return nil, false, domain.ErrMissingReference
	}
	if in.Currency == "" {
		in.Currency = "NGN"
	}
	var meta datatypes.JSON
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, false, err
		}
		meta = b
	}

	now := s.d.Now()
	var (
		payment  *models.Payment
		credited bool
	)
	err := s.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		p, err := repo.GetByProviderRefForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		if p != nil && p.Status == domain.PaymentCompleted {
			payment = p
			return nil
		}
		if p == nil {
			p = &models.Payment{
				UserID:      in.UserID,
				Amount:      in.Amount.Round(2),
				Currency:    in.Currency,
				Provider:    in.Provider,
				ProviderRef: ref,
				Status:      domain.PaymentPending,
				Metadata:    meta,
				CreatedAt:   now,
			}
			if err := repo.Create(ctx, p); err != nil {
				return err
			}
		}
		entry, err := s.d.Ledger.WithTx(tx).Credit(ctx, p.UserID, p.Amount, ledger.Movement{
			Type:        domain.TxTypeDeposit,
			Description: "Deposit via " + p.Provider,
			Metadata:    map[string]any{"provider_ref": ref},
		})
		if err != nil {
			return err
		}
		p.Status = domain.PaymentCompleted
		p.LedgerReference = entry.Reference
		p.CompletedAt = &now
		payment = p
		credited = true
		return repo.Update(ctx, p)
	})
	if err != nil {
		return nil, false, err
	}
	if !credited {
		s.d.Log.Info("duplicate deposit confirmation ignored", zap.String("provider_ref", ref))
		return payment, false, nil
	}
	s.d.Log.Info("deposit credited", zap.Uint("user_id", payment.UserID), zap.String("amount", payment.Amount.String()), zap.String("provider_ref", ref))
	s.d.Notifier.Notify(ctx, payment.UserID, domain.NotifyDepositConfirmed, "Deposit received",
		"Your wallet was credited with "+payment.Amount.StringFixed(2)+".", map[string]any{"payment_id": payment.ID})
	return payment, true, nil
}

func (s *DepositService) ListForUser(ctx context.Context, userID uint, limit, offset int) ([]models.Payment, error) {
	return s.payments.ListByUser(ctx, userID, limit, offset)
}
