package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/econ"
	"tpia/internal/ledger"
	"tpia/internal/models"
	"tpia/internal/testutil"
	"tpia/internal/txn"
)

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordedNotification struct {
	UserID uint
	Kind   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []recordedNotification
}

func (n *recordingNotifier) Notify(_ context.Context, userID uint, kind, _, _ string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, recordedNotification{UserID: userID, Kind: kind})
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			c++
		}
	}
	return c
}

type harness struct {
	t          *testing.T
	db         *gorm.DB
	clock      *clock
	snap       econ.Snapshot
	notifier   *recordingNotifier
	ledger     *ledger.Ledger
	clusters   *ClusterService
	units      *UnitService
	processor  *CycleProcessor
	withdraws  *WithdrawalService
	deposits   *DepositService
	commodity  *models.Commodity
	adminID    uint
	userSerial int
}

func newHarness(t *testing.T, tweak ...func(*econ.Snapshot)) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	snap := econ.Defaults()
	for _, fn := range tweak {
		fn(&snap)
	}
	clk := &clock{t: epoch}
	runner := txn.NewAtomic(db)
	l := ledger.New(db, runner, ledger.WithClock(clk.Now))
	notifier := &recordingNotifier{}
	deps := Deps{
		DB:       db,
		Runner:   runner,
		Ledger:   l,
		Econ:     econ.Static(snap),
		Notifier: notifier,
		Now:      clk.Now,
	}
	clusters := NewClusterService(deps, domain.DefaultClusterCapacity)
	h := &harness{
		t:         t,
		db:        db,
		clock:     clk,
		snap:      snap,
		notifier:  notifier,
		ledger:    l,
		clusters:  clusters,
		units:     NewUnitService(deps, clusters),
		processor: NewCycleProcessor(deps, clusters),
		withdraws: NewWithdrawalService(deps),
		deposits:  NewDepositService(deps),
		commodity: testutil.SeedCommodity(t, db, "GOLD"),
	}
	h.adminID = testutil.SeedUser(t, db, "admin", true).ID
	return h
}

// investor creates a verified user with an open wallet holding funds.
func (h *harness) investor(funds int64) uint {
	h.t.Helper()
	h.userSerial++
	u := testutil.SeedUser(h.t, h.db, "investor"+idString(uint(h.userSerial)), true)
	ctx := context.Background()
	_, err := h.ledger.OpenWallet(ctx, u.ID)
	require.NoError(h.t, err)
	if funds > 0 {
		_, err = h.ledger.Credit(ctx, u.ID, dec(funds), ledger.Movement{Type: domain.TxTypeDeposit})
		require.NoError(h.t, err)
	}
	return u.ID
}

func (h *harness) wallet(userID uint) *models.Wallet {
	h.t.Helper()
	w, err := h.ledger.GetWallet(context.Background(), userID)
	require.NoError(h.t, err)
	return w
}

func (h *harness) unit(id uint) *models.Unit {
	h.t.Helper()
	u, err := h.units.Get(context.Background(), id)
	require.NoError(h.t, err)
	return u
}

func (h *harness) cluster(id uint) *models.Cluster {
	h.t.Helper()
	c, err := h.clusters.Get(context.Background(), id)
	require.NoError(h.t, err)
	return c
}

func (h *harness) purchase(userID uint, start domain.CycleStartMode, mode domain.ProfitMode) *models.Unit {
	h.t.Helper()
	u, err := h.units.Purchase(context.Background(), PurchaseRequest{
		UserID:         userID,
		CommodityCode:  h.commodity.Code,
		CycleStartMode: start,
		ProfitMode:     mode,
	})
	require.NoError(h.t, err)
	return u
}

// activeUnit buys and approves an immediate-start unit; cycle 1 is running.
func (h *harness) activeUnit(userID uint, mode domain.ProfitMode) *models.Unit {
	h.t.Helper()
	u := h.purchase(userID, domain.StartImmediate, mode)
	u, err := h.units.Approve(context.Background(), u.ID, &h.adminID)
	require.NoError(h.t, err)
	return u
}

// completeThrough closes cycles until the unit has finished cycle last,
// moving the clock to each maturity date.
func (h *harness) completeThrough(unitID uint, last int) *CompletionResult {
	h.t.Helper()
	var res *CompletionResult
	for {
		u := h.unit(unitID)
		if u.CurrentCycle > last || u.Status != domain.UnitActive {
			return res
		}
		h.clock.Set(*u.MaturityDate)
		var err error
		res, err = h.processor.CompleteUnit(context.Background(), unitID, CompleteOptions{ExpectedCycle: u.CurrentCycle})
		require.NoError(h.t, err)
		if res.Cycle == last {
			return res
		}
	}
}

func (h *harness) entries(unitID uint, txType string) []models.WalletTransaction {
	h.t.Helper()
	var list []models.WalletTransaction
	require.NoError(h.t, h.db.Where("unit_id = ? AND type = ?", unitID, txType).Find(&list).Error)
	return list
}
