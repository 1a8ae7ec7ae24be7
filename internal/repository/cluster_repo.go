package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tpia/internal/domain"
	"tpia/internal/models"
)

type ClusterRepository struct {
	db *gorm.DB
}

func NewClusterRepository(db *gorm.DB) *ClusterRepository {
	return &ClusterRepository{db: db}
}

func (r *ClusterRepository) WithTx(tx *gorm.DB) *ClusterRepository {
	return &ClusterRepository{db: tx}
}

func (r *ClusterRepository) Create(ctx context.Context, c *models.Cluster) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
}

func (r *ClusterRepository) Save(ctx context.Context, c *models.Cluster) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(c).Error
}

func (r *ClusterRepository) GetByID(ctx context.Context, id uint) (*models.Cluster, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *ClusterRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Cluster, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// GetDetail loads the cluster with its ordered members and cycle records.
func (r *ClusterRepository) GetDetail(ctx context.Context, id uint) (*models.Cluster, error) {
	return r.get(r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Cycles", func(db *gorm.DB) *gorm.DB { return db.Order("unit_id ASC, cycle_number ASC") }), id)
}

func (r *ClusterRepository) get(q *gorm.DB, id uint) (*models.Cluster, error) {
	var c models.Cluster
	err := q.First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrClusterNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListOpen returns clusters of the commodity that may still take units, lowest number first.
func (r *ClusterRepository) ListOpen(ctx context.Context, commodityID uint) ([]models.Cluster, error) {
	var list []models.Cluster
	err := r.db.WithContext(ctx).
		Where("commodity_id = ? AND status IN ? AND current_fill < capacity", commodityID,
			[]domain.ClusterStatus{domain.ClusterFilling, domain.ClusterActive}).
		Order("cluster_number ASC").Find(&list).Error
	return list, err
}

// LastNumber is the highest cluster number used for the commodity, 0 if none.
func (r *ClusterRepository) LastNumber(ctx context.Context, commodityID uint) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Cluster{}).
		Where("commodity_id = ?", commodityID).
		Select("COALESCE(MAX(cluster_number), 0)").Row().Scan(&n)
	return int(n), err
}

// ListFilled returns clusters at capacity that can start cycles.
func (r *ClusterRepository) ListFilled(ctx context.Context) ([]models.Cluster, error) {
	var list []models.Cluster
	err := r.db.WithContext(ctx).
		Where("status IN ? AND current_fill >= capacity",
			[]domain.ClusterStatus{domain.ClusterFull, domain.ClusterActive}).
		Order("id ASC").Find(&list).Error
	return list, err
}

func (r *ClusterRepository) ListByStatus(ctx context.Context, status domain.ClusterStatus) ([]models.Cluster, error) {
	var list []models.Cluster
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *ClusterRepository) List(ctx context.Context, commodityID uint, limit, offset int) ([]models.Cluster, error) {
	q := r.db.WithContext(ctx).Model(&models.Cluster{})
	if commodityID != 0 {
		q = q.Where("commodity_id = ?", commodityID)
	}
	var list []models.Cluster
	err := q.Order("commodity_id ASC, cluster_number ASC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *ClusterRepository) CountMembers(ctx context.Context, clusterID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ClusterMember{}).Where("cluster_id = ?", clusterID).Count(&n).Error
	return n, err
}

// AddMember appends unitID at the next position.
func (r *ClusterRepository) AddMember(ctx context.Context, clusterID, unitID uint, at time.Time) (*models.ClusterMember, error) {
	n, err := r.CountMembers(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	m := &models.ClusterMember{ClusterID: clusterID, UnitID: unitID, Position: int(n) + 1, JoinedAt: at}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *ClusterRepository) ListMembers(ctx context.Context, clusterID uint) ([]models.ClusterMember, error) {
	var list []models.ClusterMember
	err := r.db.WithContext(ctx).Where("cluster_id = ?", clusterID).Order("position ASC").Find(&list).Error
	return list, err
}

func (r *ClusterRepository) CountByStatus(ctx context.Context) (map[domain.ClusterStatus]int, error) {
	var rows []struct {
		Status domain.ClusterStatus
		N      int
	}
	err := r.db.WithContext(ctx).Model(&models.Cluster{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ClusterStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
