package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/econ"
	"tpia/internal/ledger"
	"tpia/internal/models"
	"tpia/internal/repository"
)

// Outcome is what happened to a unit when its cycle closed.
type Outcome string

const (
	OutcomeContinued Outcome = "continued"
	OutcomeMatured   Outcome = "matured"
	OutcomeExited    Outcome = "exited"
)

type CompleteOptions struct {
	// ExpectedCycle guards against processing a unit that moved on since it
	// was selected. Zero skips the check.
	ExpectedCycle int
	// Force closes the cycle even if it has not reached its end date.
	Force bool
}

type CompletionResult struct {
	UnitID        uint              `json:"unit_id"`
	Cycle         int               `json:"cycle"`
	Profit        decimal.Decimal   `json:"profit"`
	Mode          domain.ProfitMode `json:"mode"`
	Outcome       Outcome           `json:"outcome"`
	Phase         domain.Phase      `json:"phase"`
	WindowOpened  bool              `json:"window_opened"`
	NextMaturity  *time.Time        `json:"next_maturity,omitempty"`
	PenaltyRate   decimal.Decimal   `json:"penalty_rate"`
	PenaltyAmount decimal.Decimal   `json:"penalty_amount"`
	Refund        decimal.Decimal   `json:"refund"`
}

// CycleProcessor closes due cycles: profit distribution, exit and maturity
// handling, and opening the next cycle. Each unit is processed in one
// transaction.
type CycleProcessor struct {
	d        Deps
	clusters *ClusterService
	units    *repository.UnitRepository
	cycles   *repository.CycleRepository
	cRepo    *repository.ClusterRepository
}

func NewCycleProcessor(d Deps, clusters *ClusterService) *CycleProcessor {
	d = d.withDefaults()
	return &CycleProcessor{
		d:        d,
		clusters: clusters,
		units:    repository.NewUnitRepository(d.DB),
		cycles:   repository.NewCycleRepository(d.DB),
		cRepo:    repository.NewClusterRepository(d.DB),
	}
}

// CompleteUnit closes the unit's running cycle. Re-running it for a cycle
// that is already closed fails with ErrStaleCycle or ErrMissingCycleRecord
// and moves no money.
func (p *CycleProcessor) CompleteUnit(ctx context.Context, unitID uint, opts CompleteOptions) (*CompletionResult, error) {
	snap, err := p.d.Econ.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := p.d.Now()
	var (
		res  *CompletionResult
		unit *models.Unit
	)
	err = p.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		var err error
		unit, res, err = p.complete(ctx, tx, unitID, opts, snap, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.afterCompletion(ctx, unit, res)
	return res, nil
}

func (p *CycleProcessor) complete(ctx context.Context, tx *gorm.DB, unitID uint, opts CompleteOptions,
	snap econ.Snapshot, now time.Time) (*models.Unit, *CompletionResult, error) {
	units := p.units.WithTx(tx)
	cycles := p.cycles.WithTx(tx)
	book := p.d.Ledger.WithTx(tx)

	u, err := units.GetByIDForUpdate(ctx, unitID)
	if err != nil {
		return nil, nil, err
	}
	if u.Status != domain.UnitActive {
		return nil, nil, fmt.Errorf("%w: unit %d is %s", domain.ErrStaleCycle, u.ID, u.Status)
	}
	if opts.ExpectedCycle > 0 && u.CurrentCycle != opts.ExpectedCycle {
		return nil, nil, fmt.Errorf("%w: unit %d at cycle %d, expected %d", domain.ErrStaleCycle, u.ID, u.CurrentCycle, opts.ExpectedCycle)
	}

	// 1. locate the open record
	cyc, err := cycles.GetRunning(ctx, u.ID, u.CurrentCycle)
	if err != nil {
		return nil, nil, fmt.Errorf("unit %d cycle %d: %w", u.ID, u.CurrentCycle, err)
	}
	if !opts.Force && now.Before(cyc.EndAt) {
		return nil, nil, domain.ErrCycleNotDue
	}

	// 2. profit for the cycle
	profit := u.ProfitAmount
	if !profit.IsPositive() {
		profit = u.Amount.Mul(snap.ProfitRatio()).Round(2)
	}

	// 3. history plus distribution
	if err := units.AddProfitRecord(ctx, &models.ProfitRecord{
		UnitID:      u.ID,
		CycleID:     cyc.ID,
		CycleNumber: cyc.CycleNumber,
		Amount:      profit,
		Mode:        u.ProfitMode,
		CreatedAt:   now,
	}); err != nil {
		return nil, nil, err
	}
	if profit.IsPositive() {
		if u.ProfitMode == domain.ProfitCompounding {
			u.CurrentValue = u.CurrentValue.Add(profit)
		} else {
			_, err := book.Credit(ctx, u.UserID, profit, ledger.Movement{
				Type:        domain.TxTypeProfit,
				Description: fmt.Sprintf("Cycle %d profit for %s", cyc.CycleNumber, u.Code()),
				UnitID:      &u.ID,
				Metadata:    map[string]any{"cycle": cyc.CycleNumber, "cycle_id": cyc.ID},
			})
			if err != nil {
				return nil, nil, err
			}
		}
	}

	// 4. close the record
	cyc.TotalProfitDistributed = profit
	if u.Amount.IsPositive() {
		cyc.ProfitRate = profit.DivRound(u.Amount, 6)
	}
	cyc.CompletedAt = &now
	if err := cycles.Close(ctx, cyc); err != nil {
		return nil, nil, err
	}

	res := &CompletionResult{UnitID: u.ID, Cycle: cyc.CycleNumber, Profit: profit, Mode: u.ProfitMode}

	// 5. exit check comes before phase progression, the final cycle included
	if u.WithdrawalRequested && u.Phase == domain.PhaseExtended {
		if err := p.exit(ctx, book, u, snap, now, res); err != nil {
			return nil, nil, err
		}
		return u, res, units.Save(ctx, u)
	}

	// 6. phase and continuation
	switch {
	case u.CurrentCycle >= u.TotalCycles:
		if err := p.mature(ctx, book, u, now, res); err != nil {
			return nil, nil, err
		}
		return u, res, units.Save(ctx, u)
	case u.CurrentCycle < u.CoreCycles:
		u.Phase = domain.PhaseCore
	default:
		u.Phase = domain.PhaseExtended
		if (u.CurrentCycle-u.CoreCycles)%snap.ExitWindowIntervalCycles == 0 {
			start := now
			end := now.Add(snap.ExitWindowDuration())
			u.NextExitWindowStart = &start
			u.NextExitWindowEnd = &end
			res.WindowOpened = true
		}
	}

	// 7. next cycle starts where the closed one ended
	if _, err := openCycle(ctx, cycles, u, u.CurrentCycle+1, cyc.EndAt, snap); err != nil {
		return nil, nil, err
	}
	res.Outcome = OutcomeContinued
	res.Phase = u.Phase
	res.NextMaturity = u.MaturityDate
	return u, res, units.Save(ctx, u)
}

func (p *CycleProcessor) exit(ctx context.Context, book *ledger.Ledger, u *models.Unit, snap econ.Snapshot, now time.Time, res *CompletionResult) error {
	next, err := domain.NextUnitStatus(u.Status, domain.UnitEventExit)
	if err != nil {
		return err
	}
	rate := snap.ExitPenalties.ExitRate(u.CurrentCycle)
	penalty := u.Amount.Mul(rate).Round(2)
	refund := u.Amount.Sub(penalty)
	if refund.IsPositive() {
		_, err := book.Credit(ctx, u.UserID, refund, ledger.Movement{
			Type:        domain.TxTypeExitRefund,
			Description: fmt.Sprintf("Early exit of %s after cycle %d", u.Code(), u.CurrentCycle),
			UnitID:      &u.ID,
			Metadata:    map[string]any{"penalty_rate": rate.String(), "penalty_amount": penalty.String()},
		})
		if err != nil {
			return err
		}
	}
	if err := p.releaseCompounded(ctx, book, u); err != nil {
		return err
	}
	u.Status = next
	u.Phase = domain.PhaseCompleted
	u.ExitPenaltyApplied = true
	u.PenaltyRate = rate
	u.PenaltyAmount = penalty
	u.ReturnedPrincipal = refund
	u.CompletedAt = &now

	res.Outcome = OutcomeExited
	res.Phase = u.Phase
	res.PenaltyRate = rate
	res.PenaltyAmount = penalty
	res.Refund = refund
	return nil
}

func (p *CycleProcessor) mature(ctx context.Context, book *ledger.Ledger, u *models.Unit, now time.Time, res *CompletionResult) error {
	next, err := domain.NextUnitStatus(u.Status, domain.UnitEventMature)
	if err != nil {
		return err
	}
	_, err = book.Credit(ctx, u.UserID, u.Amount, ledger.Movement{
		Type:        domain.TxTypePrincipalReturn,
		Description: fmt.Sprintf("Principal returned for matured %s", u.Code()),
		UnitID:      &u.ID,
	})
	if err != nil {
		return err
	}
	if err := p.releaseCompounded(ctx, book, u); err != nil {
		return err
	}
	u.Status = next
	u.Phase = domain.PhaseCompleted
	u.ReturnedPrincipal = u.Amount
	u.CompletedAt = &now

	res.Outcome = OutcomeMatured
	res.Phase = u.Phase
	res.Refund = u.Amount
	return nil
}

// releaseCompounded pays out profit accumulated in the unit value.
func (p *CycleProcessor) releaseCompounded(ctx context.Context, book *ledger.Ledger, u *models.Unit) error {
	gain := u.CurrentValue.Sub(u.Amount)
	if !gain.IsPositive() {
		return nil
	}
	_, err := book.Credit(ctx, u.UserID, gain, ledger.Movement{
		Type:        domain.TxTypeCompoundedProfit,
		Description: "Compounded profit for " + u.Code(),
		UnitID:      &u.ID,
	})
	return err
}

func (p *CycleProcessor) afterCompletion(ctx context.Context, u *models.Unit, res *CompletionResult) {
	p.d.Log.Info("cycle completed",
		zap.Uint("unit_id", u.ID), zap.Uint("cluster_id", u.ClusterID),
		zap.Int("cycle", res.Cycle), zap.String("profit", res.Profit.String()),
		zap.String("outcome", string(res.Outcome)))
	if p.d.Metrics != nil {
		p.d.Metrics.RecordCycle(string(res.Outcome), string(res.Mode), res.Profit.InexactFloat64())
	}

	if res.Mode == domain.ProfitPayout && res.Profit.IsPositive() {
		p.d.Notifier.Notify(ctx, u.UserID, domain.NotifyProfitCredited, "Profit credited",
			fmt.Sprintf("Cycle %d of %s paid %s.", res.Cycle, u.Code(), res.Profit.StringFixed(2)),
			map[string]any{"unit_id": u.ID, "cycle": res.Cycle, "amount": res.Profit.String()})
	}
	switch res.Outcome {
	case OutcomeMatured:
		p.d.Notifier.Notify(ctx, u.UserID, domain.NotifyUnitMatured, "Unit matured",
			fmt.Sprintf("%s completed all %d cycles. Principal has been returned.", u.Code(), u.TotalCycles),
			map[string]any{"unit_id": u.ID, "principal": u.Amount.String()})
	case OutcomeExited:
		p.d.Notifier.Notify(ctx, u.UserID, domain.NotifyUnitExited, "Early exit completed",
			fmt.Sprintf("%s exited after cycle %d. %s returned after a %s penalty.",
				u.Code(), res.Cycle, res.Refund.StringFixed(2), res.PenaltyAmount.StringFixed(2)),
			map[string]any{"unit_id": u.ID, "refund": res.Refund.String(), "penalty_rate": res.PenaltyRate.String()})
	}
	if res.WindowOpened {
		p.d.Notifier.Notify(ctx, u.UserID, domain.NotifyExitWindowOpened, "Exit window open",
			fmt.Sprintf("You may request an early exit for %s until %s.", u.Code(), u.NextExitWindowEnd.Format(time.RFC1123)),
			map[string]any{"unit_id": u.ID, "window_start": u.NextExitWindowStart, "window_end": u.NextExitWindowEnd})
	}
}

type SweepReport struct {
	Clusters  int `json:"clusters"`
	Processed int `json:"processed"`
	Matured   int `json:"matured"`
	Exited    int `json:"exited"`
	Failed    int `json:"failed"`
}

func (r *SweepReport) add(o SweepReport) {
	r.Clusters += o.Clusters
	r.Processed += o.Processed
	r.Matured += o.Matured
	r.Exited += o.Exited
	r.Failed += o.Failed
}

// SweepCluster completes every due member of the cluster, then runs cluster
// maintenance. A failing unit is logged and skipped. Units that fell behind
// are caught up cycle by cycle.
func (p *CycleProcessor) SweepCluster(ctx context.Context, clusterID uint) (SweepReport, error) {
	report := SweepReport{Clusters: 1}
	now := p.d.Now()
	due, err := p.units.ListDueInCluster(ctx, clusterID, now)
	if err != nil {
		return report, err
	}
	for _, u := range due {
		expected := u.CurrentCycle
		for expected > 0 && expected <= u.TotalCycles {
			res, err := p.CompleteUnit(ctx, u.ID, CompleteOptions{ExpectedCycle: expected})
			if err != nil {
				report.Failed++
				p.d.Log.Error("cycle completion failed, skipping unit",
					zap.Uint("unit_id", u.ID), zap.Uint("cluster_id", clusterID), zap.Int("cycle", expected), zap.Error(err))
				if p.d.Metrics != nil {
					p.d.Metrics.RecordJobFailure("sweep", failureReason(err))
				}
				break
			}
			report.Processed++
			switch res.Outcome {
			case OutcomeMatured:
				report.Matured++
			case OutcomeExited:
				report.Exited++
			}
			if res.Outcome != OutcomeContinued || res.NextMaturity == nil || res.NextMaturity.After(now) {
				break
			}
			expected = res.Cycle + 1
		}
	}
	if err := p.clusters.Maintain(ctx, clusterID); err != nil {
		return report, fmt.Errorf("maintain cluster %d: %w", clusterID, err)
	}
	return report, nil
}

// SweepAll sweeps every active cluster.
func (p *CycleProcessor) SweepAll(ctx context.Context) (SweepReport, error) {
	var total SweepReport
	list, err := p.cRepo.ListByStatus(ctx, domain.ClusterActive)
	if err != nil {
		return total, err
	}
	for _, c := range list {
		r, err := p.SweepCluster(ctx, c.ID)
		total.add(r)
		if err != nil {
			p.d.Log.Error("cluster sweep failed", zap.Uint("cluster_id", c.ID), zap.Error(err))
		}
	}
	return total, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingCycleRecord):
		return "missing_cycle_record"
	case errors.Is(err, domain.ErrStaleCycle):
		return "stale_cycle"
	case errors.Is(err, domain.ErrCycleNotDue):
		return "not_due"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return "concurrent_update"
	default:
		return "error"
	}
}
