package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/ledger"
	"tpia/internal/models"
	"tpia/internal/repository"
)

// WithdrawalService runs the hold, complete or release flow for payouts.
type WithdrawalService struct {
	d     Deps
	repo  *repository.WithdrawalRepository
	users *repository.UserRepository
}

func NewWithdrawalService(d Deps) *WithdrawalService {
	d = d.withDefaults()
	return &WithdrawalService{
		d:     d,
		repo:  repository.NewWithdrawalRepository(d.DB),
		users: repository.NewUserRepository(d.DB),
	}
}

// Request moves amount from available into the pending-withdrawal bucket and
// records the request for review.
func (s *WithdrawalService) Request(ctx context.Context, userID uint, amount decimal.Decimal, destination string) (*models.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.KYC {
		return nil, domain.ErrKYCRequired
	}
	w := &models.Withdrawal{
		UserID:      userID,
		OrderID:     "WD-" + strings.ToUpper(uuid.NewString()),
		Amount:      amount.Round(2),
		Destination: strings.TrimSpace(destination),
		Status:      domain.WithdrawalPending,
		CreatedAt:   s.d.Now(),
	}
	err = s.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		_, err := s.d.Ledger.WithTx(tx).LockForWithdrawal(ctx, userID, w.Amount, ledger.Movement{
			Description: "Withdrawal request " + w.OrderID,
			Metadata:    map[string]any{"order_id": w.OrderID},
		})
		if err != nil {
			return err
		}
		return s.repo.WithTx(tx).Create(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	s.d.Log.Info("withdrawal requested", zap.Uint("user_id", userID), zap.String("order_id", w.OrderID), zap.String("amount", w.Amount.String()))
	return w, nil
}

// Approve pays out the held funds.
func (s *WithdrawalService) Approve(ctx context.Context, id uint, actorID *uint, note string) (*models.Withdrawal, error) {
	return s.decide(ctx, id, actorID, note, true)
}

// Reject returns the held funds to available.
func (s *WithdrawalService) Reject(ctx context.Context, id uint, actorID *uint, note string) (*models.Withdrawal, error) {
	if strings.TrimSpace(note) == "" {
		return nil, domain.ErrRejectReasonRequired
	}
	return s.decide(ctx, id, actorID, note, false)
}

func (s *WithdrawalService) decide(ctx context.Context, id uint, actorID *uint, note string, approve bool) (*models.Withdrawal, error) {
	now := s.d.Now()
	var out *models.Withdrawal
	err := s.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		w, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != domain.WithdrawalPending {
			return domain.ErrInvalidStateTransition
		}
		book := s.d.Ledger.WithTx(tx)
		m := ledger.Movement{Description: "Withdrawal " + w.OrderID, Metadata: map[string]any{"order_id": w.OrderID}}
		if approve {
			_, err = book.CompleteWithdrawal(ctx, w.UserID, w.Amount, m)
			w.Status = domain.WithdrawalApproved
		} else {
			_, err = book.UnlockForWithdrawal(ctx, w.UserID, w.Amount, m)
			w.Status = domain.WithdrawalRejected
		}
		if err != nil {
			return err
		}
		w.DecidedBy = actorID
		w.DecisionNote = strings.TrimSpace(note)
		w.CompletedAt = &now
		out = w
		return repo.Decide(ctx, w)
	})
	if err != nil {
		return nil, err
	}

	s.d.Log.Info("withdrawal decided", zap.Uint("withdrawal_id", out.ID), zap.String("status", out.Status))
	s.d.Audit.Record(ctx, actorID, "withdrawal."+strings.ToLower(out.Status), "withdrawal", idString(out.ID),
		map[string]any{"amount": out.Amount.String(), "note": out.DecisionNote})
	s.d.Notifier.Notify(ctx, out.UserID, domain.NotifyWithdrawalDecided, "Withdrawal "+strings.ToLower(out.Status),
		"Your withdrawal "+out.OrderID+" of "+out.Amount.StringFixed(2)+" was "+strings.ToLower(out.Status)+".",
		map[string]any{"withdrawal_id": out.ID, "status": out.Status})
	return out, nil
}

func (s *WithdrawalService) ListForUser(ctx context.Context, userID uint, limit, offset int) ([]models.Withdrawal, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

func (s *WithdrawalService) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Withdrawal, error) {
	return s.repo.ListByStatus(ctx, status, limit, offset)
}
