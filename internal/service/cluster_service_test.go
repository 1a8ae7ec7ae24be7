package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tpia/internal/domain"
	"tpia/internal/models"
	"tpia/internal/testutil"
)

func fillCluster(t *testing.T, h *harness) []*models.Unit {
	t.Helper()
	ctx := context.Background()
	units := make([]*models.Unit, 0, domain.DefaultClusterCapacity)
	for i := 0; i < domain.DefaultClusterCapacity; i++ {
		u := h.purchase(h.investor(1_000_000), domain.StartWithCluster, domain.ProfitPayout)
		_, err := h.units.Approve(ctx, u.ID, &h.adminID)
		require.NoError(t, err)
		units = append(units, u)
	}
	return units
}

func TestClusterFillsAndStartsTogether(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	units := fillCluster(t, h)
	clusterID := units[0].ClusterID
	for _, u := range units {
		require.Equal(t, clusterID, u.ClusterID)
		require.Equal(t, 0, h.unit(u.ID).CurrentCycle)
	}

	c := h.cluster(clusterID)
	require.Equal(t, domain.ClusterFull, c.Status)
	require.Equal(t, 10, c.CurrentFill)
	require.Len(t, c.Members, 10)
	for i, m := range c.Members {
		require.Equal(t, i+1, m.Position)
	}

	started, err := h.clusters.StartCluster(ctx, clusterID, &h.adminID)
	require.NoError(t, err)
	require.Equal(t, 10, started)
	for _, u := range units {
		got := h.unit(u.ID)
		require.Equal(t, 1, got.CurrentCycle)
		require.True(t, got.MaturityDate.Equal(epoch.Add(h.snap.CycleDuration())))
	}
	c = h.cluster(clusterID)
	require.Equal(t, domain.ClusterActive, c.Status)
	require.NotNil(t, c.ActivationDate)
	require.Equal(t, 10, h.notifier.count(domain.NotifyCycleStarted))

	again, err := h.clusters.StartCluster(ctx, clusterID, &h.adminID)
	require.NoError(t, err)
	require.Zero(t, again)
}

func TestStartFilledClustersSkipsPartialOnes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	units := fillCluster(t, h)
	lone := h.purchase(h.investor(1_000_000), domain.StartWithCluster, domain.ProfitPayout)
	_, err := h.units.Approve(ctx, lone.ID, &h.adminID)
	require.NoError(t, err)
	require.NotEqual(t, units[0].ClusterID, lone.ClusterID)

	n, err := h.clusters.StartFilledClusters(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, 0, h.unit(lone.ID).CurrentCycle)
}

func TestClusterNumbersAdvanceByCapacity(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < domain.DefaultClusterCapacity; i++ {
		u := h.purchase(h.investor(1_000_000), domain.StartWithCluster, domain.ProfitPayout)
		require.Equal(t, 10, u.ClusterNumber)
	}
	next := h.purchase(h.investor(1_000_000), domain.StartWithCluster, domain.ProfitPayout)
	require.Equal(t, 20, next.ClusterNumber)

	silver := testutil.SeedCommodity(t, h.db, "SILVER")
	u, err := h.units.Purchase(context.Background(), PurchaseRequest{UserID: h.investor(1_000_000), CommodityCode: silver.Code})
	require.NoError(t, err)
	require.Equal(t, 10, u.ClusterNumber)
	require.NotEqual(t, next.ClusterID, u.ClusterID)
}

func TestClusterNeverExceedsCapacity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var first uint
	for i := 0; i < 25; i++ {
		u := h.purchase(h.investor(1_000_000), domain.StartWithCluster, domain.ProfitPayout)
		if first == 0 {
			first = u.ClusterID
		}
	}
	var clusters []models.Cluster
	require.NoError(t, h.db.Find(&clusters).Error)
	require.Len(t, clusters, 3)
	for _, c := range clusters {
		require.LessOrEqual(t, c.CurrentFill, c.Capacity)
		var n int64
		require.NoError(t, h.db.Model(&models.Unit{}).Where("cluster_id = ?", c.ID).Count(&n).Error)
		require.LessOrEqual(t, int(n), c.Capacity)
	}

	counts, err := h.clusters.StatusCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts[domain.ClusterFull])
	require.Equal(t, 1, counts[domain.ClusterFilling])
}

// retryable reports errors a caller may resolve by submitting again: a lost
// wallet version race or a cluster number taken by a concurrent purchase.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrConcurrentUpdate) ||
		strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func TestConcurrentPurchasesRespectCapacity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const buyers = 15
	const approvers = 4

	users := make([]uint, buyers)
	for i := range users {
		users[i] = h.investor(1_000_000)
	}

	errs := make([]error, buyers)
	bought := make([]*models.Unit, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := h.units.Purchase(ctx, PurchaseRequest{
				UserID:         users[i],
				CommodityCode:  h.commodity.Code,
				CycleStartMode: domain.StartWithCluster,
			})
			if err != nil {
				errs[i] = err
				return
			}
			bought[i] = u
			if i < approvers {
				_, errs[i] = h.units.Approve(ctx, u.ID, &h.adminID)
			}
		}(i)
	}
	wg.Wait()

	placed := 0
	for i, err := range errs {
		if err != nil {
			require.True(t, retryable(err), "buyer %d: %v", i, err)
		}
		if bought[i] != nil {
			placed++
		}
	}
	require.Positive(t, placed)

	var clusters []models.Cluster
	require.NoError(t, h.db.Where("commodity_id = ?", h.commodity.ID).
		Order("cluster_number ASC").Find(&clusters).Error)
	require.Len(t, clusters, (placed+domain.DefaultClusterCapacity-1)/domain.DefaultClusterCapacity)

	seated := 0
	for i, c := range clusters {
		require.Equal(t, (i+1)*domain.DefaultClusterCapacity, c.ClusterNumber)
		var n int64
		require.NoError(t, h.db.Model(&models.Unit{}).
			Where("cluster_id = ? AND status <> ?", c.ID, domain.UnitRejected).Count(&n).Error)
		require.LessOrEqual(t, int(n), c.Capacity)
		require.Equal(t, int(n), c.CurrentFill)
		seated += int(n)

		var members int64
		require.NoError(t, h.db.Model(&models.ClusterMember{}).Where("cluster_id = ?", c.ID).Count(&members).Error)
		require.LessOrEqual(t, int(members), int(n))
	}
	require.Equal(t, placed, seated)
}

func TestRejectionReopensFullCluster(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var last *models.Unit
	for i := 0; i < domain.DefaultClusterCapacity; i++ {
		last = h.purchase(h.investor(1_000_000), domain.StartWithCluster, domain.ProfitPayout)
	}
	require.Equal(t, domain.ClusterFull, h.cluster(last.ClusterID).Status)

	_, err := h.units.Reject(ctx, last.ID, "duplicate order", &h.adminID)
	require.NoError(t, err)
	c := h.cluster(last.ClusterID)
	require.Equal(t, domain.ClusterFilling, c.Status)
	require.Equal(t, 9, c.CurrentFill)

	refill := h.purchase(h.investor(1_000_000), domain.StartWithCluster, domain.ProfitPayout)
	require.Equal(t, last.ClusterID, refill.ClusterID)
	require.Equal(t, domain.ClusterFull, h.cluster(last.ClusterID).Status)
}

func TestResolveReconcilesDriftedFill(t *testing.T) {
	h := newHarness(t)
	u := h.purchase(h.investor(1_000_000), domain.StartWithCluster, domain.ProfitPayout)
	require.NoError(t, h.db.Model(&models.Cluster{}).Where("id = ?", u.ClusterID).Update("current_fill", 7).Error)

	next := h.purchase(h.investor(1_000_000), domain.StartWithCluster, domain.ProfitPayout)
	require.Equal(t, u.ClusterID, next.ClusterID)
	require.Equal(t, 2, h.cluster(u.ClusterID).CurrentFill)
}
