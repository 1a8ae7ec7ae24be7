package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/ledger"
	"tpia/internal/models"
	"tpia/internal/repository"
)

// UnitService drives a unit from purchase through approval or rejection and
// handles investor requests against active units.
type UnitService struct {
	d           Deps
	clusters    *ClusterService
	units       *repository.UnitRepository
	cycles      *repository.CycleRepository
	users       *repository.UserRepository
	commodities *repository.CommodityRepository
}

func NewUnitService(d Deps, clusters *ClusterService) *UnitService {
	d = d.withDefaults()
	return &UnitService{
		d:           d,
		clusters:    clusters,
		units:       repository.NewUnitRepository(d.DB),
		cycles:      repository.NewCycleRepository(d.DB),
		users:       repository.NewUserRepository(d.DB),
		commodities: repository.NewCommodityRepository(d.DB),
	}
}

type PurchaseRequest struct {
	UserID         uint
	CommodityCode  string
	CycleStartMode domain.CycleStartMode
	ProfitMode     domain.ProfitMode
}

// Purchase reserves the unit price in the buyer's wallet, seats the unit in a
// cluster of the commodity and creates it pending approval.
func (s *UnitService) Purchase(ctx context.Context, req PurchaseRequest) (*models.Unit, error) {
	if req.CycleStartMode == "" {
		req.CycleStartMode = domain.StartWithCluster
	}
	if req.ProfitMode == "" {
		req.ProfitMode = domain.ProfitPayout
	}
	if !req.CycleStartMode.Valid() {
		return nil, domain.ErrInvalidCycleStartMode
	}
	if !req.ProfitMode.Valid() {
		return nil, domain.ErrInvalidProfitMode
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !user.KYC {
		return nil, domain.ErrKYCRequired
	}
	snap, err := s.d.Econ.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	price := snap.UnitPrice

	// Fail fast before any row is written.
	w, err := s.d.Ledger.GetWallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if w.Balances().Available().LessThan(price) {
		return nil, domain.ErrInsufficientBalance
	}

	now := s.d.Now()
	var unit *models.Unit
	err = s.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		commodity, err := s.commodities.WithTx(tx).GetActiveByCode(ctx, req.CommodityCode)
		if err != nil {
			return err
		}
		profit := snap.ProfitPerCycle
		if commodity.ProfitPerCycle.Valid {
			profit = commodity.ProfitPerCycle.Decimal
		}
		cluster, err := s.clusters.ResolveOrCreate(ctx, tx, commodity.ID)
		if err != nil {
			return err
		}
		unit = &models.Unit{
			UserID:         req.UserID,
			CommodityID:    commodity.ID,
			ClusterID:      cluster.ID,
			ClusterNumber:  cluster.ClusterNumber,
			Amount:         price,
			ProfitAmount:   profit,
			CurrentValue:   price,
			Status:         domain.UnitPendingApproval,
			CycleStartMode: req.CycleStartMode,
			ProfitMode:     req.ProfitMode,
			CoreCycles:     snap.CoreCycles,
			TotalCycles:    snap.TotalCycles(),
			Phase:          domain.PhaseCore,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.units.WithTx(tx).Create(ctx, unit); err != nil {
			return err
		}
		_, err = s.d.Ledger.WithTx(tx).Lock(ctx, req.UserID, price, ledger.Movement{
			Type:        domain.TxTypeLock,
			Description: fmt.Sprintf("Purchase of %s (%s)", unit.Code(), commodity.Code),
			UnitID:      &unit.ID,
			Pending:     true,
			Metadata:    map[string]any{"commodity": commodity.Code, "cluster_number": cluster.ClusterNumber},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.d.Log.Info("unit purchased",
		zap.Uint("unit_id", unit.ID), zap.Uint("user_id", unit.UserID),
		zap.Uint("cluster_id", unit.ClusterID), zap.String("amount", unit.Amount.String()))
	s.recordEvent("purchased")
	s.d.Notifier.Notify(ctx, unit.UserID, domain.NotifyPurchaseSubmitted, "Purchase submitted",
		fmt.Sprintf("%s is awaiting approval.", unit.Code()), map[string]any{"unit_id": unit.ID})
	return unit, nil
}

// Approve activates a pending unit. The reserved principal is settled, the
// unit joins its cluster's member list and immediate-mode units start cycle 1.
func (s *UnitService) Approve(ctx context.Context, unitID uint, actorID *uint) (*models.Unit, error) {
	snap, err := s.d.Econ.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := s.d.Now()
	var unit *models.Unit
	err = s.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		units := s.units.WithTx(tx)
		u, err := units.GetByIDForUpdate(ctx, unitID)
		if err != nil {
			return err
		}
		next, err := domain.NextUnitStatus(u.Status, domain.UnitEventApprove)
		if err != nil {
			return err
		}
		_, err = s.d.Ledger.WithTx(tx).SettleLocked(ctx, u.UserID, u.Amount, ledger.Movement{
			Type:        domain.TxTypePurchase,
			Description: "Approved purchase of " + u.Code(),
			UnitID:      &u.ID,
		})
		if err != nil {
			return err
		}
		u.Status = next
		u.ApprovedAt = &now
		u.ApprovedBy = actorID
		if err := s.clusters.AddMember(ctx, tx, u, now); err != nil {
			return err
		}
		if u.CycleStartMode == domain.StartImmediate {
			if _, err := openCycle(ctx, s.cycles.WithTx(tx), u, 1, now, snap); err != nil {
				return err
			}
			if err := s.clusters.activate(ctx, tx, u.ClusterID, now); err != nil {
				return err
			}
		}
		unit = u
		return units.Save(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	s.d.Log.Info("unit approved", zap.Uint("unit_id", unit.ID), zap.Bool("auto", actorID == nil))
	s.recordEvent("approved")
	if actorID != nil {
		s.d.Audit.Record(ctx, actorID, "unit.approve", "unit", idString(unit.ID), nil)
	}
	body := fmt.Sprintf("%s has been approved.", unit.Code())
	if unit.CurrentCycle == 1 {
		body = fmt.Sprintf("%s has been approved and cycle 1 has started.", unit.Code())
	}
	s.d.Notifier.Notify(ctx, unit.UserID, domain.NotifyUnitApproved, "Unit approved", body,
		map[string]any{"unit_id": unit.ID, "current_cycle": unit.CurrentCycle})
	return unit, nil
}

// Reject returns the reserved principal and closes the unit for good.
func (s *UnitService) Reject(ctx context.Context, unitID uint, reason string, actorID *uint) (*models.Unit, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrRejectReasonRequired
	}
	now := s.d.Now()
	var unit *models.Unit
	err := s.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		units := s.units.WithTx(tx)
		u, err := units.GetByIDForUpdate(ctx, unitID)
		if err != nil {
			return err
		}
		next, err := domain.NextUnitStatus(u.Status, domain.UnitEventReject)
		if err != nil {
			return err
		}
		_, err = s.d.Ledger.WithTx(tx).Unlock(ctx, u.UserID, u.Amount, ledger.Movement{
			Type:        domain.TxTypeUnlock,
			Description: "Rejected purchase of " + u.Code(),
			UnitID:      &u.ID,
			Metadata:    map[string]any{"reason": reason},
		})
		if err != nil {
			return err
		}
		u.Status = next
		u.RejectionReason = reason
		u.RejectedAt = &now
		if err := units.Save(ctx, u); err != nil {
			return err
		}
		unit = u
		return s.clusters.ReleaseSeat(ctx, tx, u.ClusterID)
	})
	if err != nil {
		return nil, err
	}

	s.d.Log.Info("unit rejected", zap.Uint("unit_id", unit.ID), zap.String("reason", reason))
	s.recordEvent("rejected")
	if actorID != nil {
		s.d.Audit.Record(ctx, actorID, "unit.reject", "unit", idString(unit.ID), map[string]any{"reason": reason})
	}
	s.d.Notifier.Notify(ctx, unit.UserID, domain.NotifyUnitRejected, "Unit rejected",
		fmt.Sprintf("%s was rejected: %s", unit.Code(), reason), map[string]any{"unit_id": unit.ID})
	return unit, nil
}

// RequestEarlyExit flags the unit for exit at the end of its running cycle.
// Only allowed in the extended phase while an exit window is open. A repeat
// request is a no-op.
func (s *UnitService) RequestEarlyExit(ctx context.Context, userID, unitID uint) (*models.Unit, error) {
	now := s.d.Now()
	var unit *models.Unit
	err := s.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		units := s.units.WithTx(tx)
		u, err := units.GetByIDForUpdate(ctx, unitID)
		if err != nil {
			return err
		}
		if u.UserID != userID {
			return domain.ErrUnitNotFound
		}
		unit = u
		if u.Status != domain.UnitActive {
			return fmt.Errorf("%w: unit %s", domain.ErrInvalidStateTransition, u.Status)
		}
		if u.Phase != domain.PhaseExtended {
			return domain.ErrWrongPhase
		}
		if u.NextExitWindowStart == nil || now.Before(*u.NextExitWindowStart) {
			return domain.ErrWindowNotOpen
		}
		if u.NextExitWindowEnd == nil || now.After(*u.NextExitWindowEnd) {
			return domain.ErrWindowClosed
		}
		if u.WithdrawalRequested {
			return nil
		}
		u.WithdrawalRequested = true
		u.WithdrawalRequestedAt = &now
		return units.Save(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.d.Log.Info("early exit requested", zap.Uint("unit_id", unit.ID), zap.Int("cycle", unit.CurrentCycle))
	return unit, nil
}

// SetProfitMode switches how future profit is distributed. Profit already
// compounded stays in the unit value until maturity or exit.
func (s *UnitService) SetProfitMode(ctx context.Context, userID, unitID uint, mode domain.ProfitMode) (*models.Unit, error) {
	if !mode.Valid() {
		return nil, domain.ErrInvalidProfitMode
	}
	var unit *models.Unit
	err := s.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		units := s.units.WithTx(tx)
		u, err := units.GetByIDForUpdate(ctx, unitID)
		if err != nil {
			return err
		}
		if u.UserID != userID {
			return domain.ErrUnitNotFound
		}
		if u.Status.Terminal() {
			return fmt.Errorf("%w: unit %s", domain.ErrInvalidStateTransition, u.Status)
		}
		unit = u
		if u.ProfitMode == mode {
			return nil
		}
		u.ProfitMode = mode
		return units.Save(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// AutoApprove approves every unit that has been pending for longer than the
// configured approval window. Disabled unless the snapshot enables it.
func (s *UnitService) AutoApprove(ctx context.Context) (int, error) {
	snap, err := s.d.Econ.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if !snap.AutoApproveEnabled {
		return 0, nil
	}
	cutoff := s.d.Now().Add(-snap.ApprovalWindow())
	pending, err := s.units.ListPendingCreatedBefore(ctx, cutoff, 500)
	if err != nil {
		return 0, err
	}
	approved := 0
	for _, u := range pending {
		if _, err := s.Approve(ctx, u.ID, nil); err != nil {
			s.d.Log.Error("auto-approve failed", zap.Uint("unit_id", u.ID), zap.Error(err))
			if s.d.Metrics != nil {
				s.d.Metrics.RecordJobFailure("auto_approve", failureReason(err))
			}
			continue
		}
		approved++
	}
	return approved, nil
}

func (s *UnitService) Get(ctx context.Context, unitID uint) (*models.Unit, error) {
	return s.units.GetWithHistory(ctx, unitID)
}

// GetForUser hides other investors' units behind ErrUnitNotFound.
func (s *UnitService) GetForUser(ctx context.Context, userID, unitID uint) (*models.Unit, error) {
	u, err := s.units.GetWithHistory(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if u.UserID != userID {
		return nil, domain.ErrUnitNotFound
	}
	return u, nil
}

func (s *UnitService) ListForUser(ctx context.Context, userID uint, limit, offset int) ([]models.Unit, int64, error) {
	return s.units.ListByUser(ctx, userID, limit, offset)
}

func (s *UnitService) ListByStatus(ctx context.Context, status domain.UnitStatus, limit, offset int) ([]models.Unit, error) {
	return s.units.ListByStatus(ctx, status, limit, offset)
}

func (s *UnitService) Cycles(ctx context.Context, unitID uint) ([]models.Cycle, error) {
	return s.cycles.ListByUnit(ctx, unitID)
}

func (s *UnitService) recordEvent(event string) {
	if s.d.Metrics != nil {
		s.d.Metrics.RecordUnitEvent(event)
	}
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
