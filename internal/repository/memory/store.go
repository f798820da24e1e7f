// Package memory 提供内存版仓库，事务串行执行并在失败时整体回滚，用于服务层测试和本地演示。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/repository"
)

type assetKey struct {
	userID    uint
	assetType models.AssetType
	assetID   string
}

type state struct {
	orders        map[string]*models.Order
	assets        map[assetKey]*models.UserAsset
	grants        map[string]*models.EntitlementGrant
	paymentEvents map[string]*models.PaymentEventRecord
	apps          map[string]*models.DifyApp
	courses       map[uint]*models.Course
	users         map[uint]*models.User
	nextAssetID   uint
}

func newState() *state {
	return &state{
		orders:        make(map[string]*models.Order),
		assets:        make(map[assetKey]*models.UserAsset),
		grants:        make(map[string]*models.EntitlementGrant),
		paymentEvents: make(map[string]*models.PaymentEventRecord),
		apps:          make(map[string]*models.DifyApp),
		courses:       make(map[uint]*models.Course),
		users:         make(map[uint]*models.User),
		nextAssetID:   1,
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range s.assets {
		c.assets[k] = v.Clone()
	}
	for k, v := range s.grants {
		c.grants[k] = v.Clone()
	}
	for k, v := range s.paymentEvents {
		r := *v
		c.paymentEvents[k] = &r
	}
	// 目录只读，共享指针
	c.apps = s.apps
	c.courses = s.courses
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	c.nextAssetID = s.nextAssetID
	return c
}

// Store 内存仓库
type Store struct {
	mu   *sync.Mutex
	inTx bool
	st   *state
}

// New 创建空的内存仓库
func New() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState()}
}

var _ repository.Store = (*Store)(nil)

// with 在根仓库上加锁执行，事务内已持有锁
func (s *Store) with(fn func(st *state) error) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}

// Transaction 全局串行执行 fn，fn 返回错误时丢弃全部修改
func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	working := s.st.clone()
	tx := &Store{mu: s.mu, inTx: true, st: working}
	if err := fn(tx); err != nil {
		return err
	}
	*s.st = *working
	return nil
}

func (s *Store) Orders() repository.OrderRepository               { return &orderRepo{s} }
func (s *Store) Assets() repository.UserAssetRepository           { return &assetRepo{s} }
func (s *Store) Grants() repository.GrantRepository               { return &grantRepo{s} }
func (s *Store) PaymentEvents() repository.PaymentEventRepository { return &paymentEventRepo{s} }
func (s *Store) Catalog() repository.CatalogRepository            { return &catalogRepo{s} }
func (s *Store) Users() repository.UserRepository                 { return &userRepo{s} }

// SeedUser 写入用户
func (s *Store) SeedUser(u *models.User) {
	_ = s.with(func(st *state) error {
		c := *u
		st.users[u.ID] = &c
		return nil
	})
}

// SeedApp 写入应用目录
func (s *Store) SeedApp(app *models.DifyApp) {
	_ = s.with(func(st *state) error {
		apps := make(map[string]*models.DifyApp, len(st.apps)+1)
		for k, v := range st.apps {
			apps[k] = v
		}
		c := *app
		apps[app.ID] = &c
		st.apps = apps
		return nil
	})
}

// SeedCourse 写入课程目录
func (s *Store) SeedCourse(course *models.Course) {
	_ = s.with(func(st *state) error {
		courses := make(map[uint]*models.Course, len(st.courses)+1)
		for k, v := range st.courses {
			courses[k] = v
		}
		c := *course
		courses[course.ID] = &c
		st.courses = courses
		return nil
	})
}

type orderRepo struct{ s *Store }

func (r *orderRepo) Create(_ context.Context, order *models.Order) error {
	return r.s.with(func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return apperrors.NewSystemError(apperrors.ErrCodeConflict, "duplicate order id "+order.ID)
		}
		st.orders[order.ID] = order.Clone()
		return nil
	})
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*models.Order, error) {
	var out *models.Order
	err := r.s.with(func(st *state) error {
		if o, ok := st.orders[id]; ok {
			out = o.Clone()
		}
		return nil
	})
	return out, err
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orderRepo) UpdateStatus(_ context.Context, order *models.Order) error {
	return r.s.with(func(st *state) error {
		o, ok := st.orders[order.ID]
		if !ok {
			return apperrors.NewOrderNotFoundError(order.ID)
		}
		o.Status = order.Status
		o.GatewayTradeNo = order.GatewayTradeNo
		o.UpdatedAt = order.UpdatedAt
		o.PayTime = nil
		if order.PayTime != nil {
			t := *order.PayTime
			o.PayTime = &t
		}
		return nil
	})
}

func (r *orderRepo) ListByUser(_ context.Context, userID uint, limit, offset int) ([]*models.Order, int64, error) {
	var out []*models.Order
	var total int64
	err := r.s.with(func(st *state) error {
		all := make([]*models.Order, 0)
		for _, o := range st.orders {
			if o.UserID == userID {
				all = append(all, o)
			}
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].ID > all[j].ID
			}
			return all[i].CreatedAt.After(all[j].CreatedAt)
		})
		total = int64(len(all))
		for _, o := range page(all, limit, offset) {
			out = append(out, o.Clone())
		}
		return nil
	})
	return out, total, err
}

func (r *orderRepo) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]*models.Order, error) {
	var out []*models.Order
	err := r.s.with(func(st *state) error {
		pending := make([]*models.Order, 0)
		for _, o := range st.orders {
			if o.Status == models.OrderStatusPending && o.CreatedAt.Before(before) {
				pending = append(pending, o)
			}
		}
		sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
		for _, o := range page(pending, limit, 0) {
			out = append(out, o.Clone())
		}
		return nil
	})
	return out, err
}

func page[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type assetRepo struct{ s *Store }

func (r *assetRepo) Find(_ context.Context, userID uint, assetType models.AssetType, assetID string) (*models.UserAsset, error) {
	var out *models.UserAsset
	err := r.s.with(func(st *state) error {
		if a, ok := st.assets[assetKey{userID, assetType, assetID}]; ok {
			out = a.Clone()
		}
		return nil
	})
	return out, err
}

func (r *assetRepo) FindForUpdate(ctx context.Context, userID uint, assetType models.AssetType, assetID string) (*models.UserAsset, error) {
	return r.Find(ctx, userID, assetType, assetID)
}

func (r *assetRepo) Create(_ context.Context, asset *models.UserAsset) error {
	return r.s.with(func(st *state) error {
		key := assetKey{asset.UserID, asset.AssetType, asset.AssetID}
		if _, exists := st.assets[key]; exists {
			return apperrors.NewSystemError(apperrors.ErrCodeConflict, "duplicate user asset "+asset.AssetID)
		}
		asset.ID = st.nextAssetID
		st.nextAssetID++
		st.assets[key] = asset.Clone()
		return nil
	})
}

func (r *assetRepo) Update(_ context.Context, asset *models.UserAsset) error {
	return r.s.with(func(st *state) error {
		for key, a := range st.assets {
			if a.ID == asset.ID {
				st.assets[key] = asset.Clone()
				return nil
			}
		}
		return apperrors.NewNotFoundError("user asset")
	})
}

func (r *assetRepo) ListByUser(_ context.Context, userID uint) ([]*models.UserAsset, error) {
	var out []*models.UserAsset
	err := r.s.with(func(st *state) error {
		for _, a := range st.assets {
			if a.UserID == userID {
				out = append(out, a.Clone())
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].AssetType != out[j].AssetType {
				return out[i].AssetType < out[j].AssetType
			}
			return out[i].AssetID < out[j].AssetID
		})
		return nil
	})
	return out, err
}

func (r *assetRepo) CountByExpiry(_ context.Context, at time.Time) (repository.AssetExpiryStats, error) {
	var stats repository.AssetExpiryStats
	err := r.s.with(func(st *state) error {
		for _, a := range st.assets {
			switch {
			case a.Quantity <= 0:
				stats.Depleted++
			case a.IsActiveAt(at):
				stats.Active++
			default:
				stats.Expired++
			}
		}
		return nil
	})
	return stats, err
}

type grantRepo struct{ s *Store }

func (r *grantRepo) Get(_ context.Context, orderID string) (*models.EntitlementGrant, error) {
	var out *models.EntitlementGrant
	err := r.s.with(func(st *state) error {
		if g, ok := st.grants[orderID]; ok {
			out = g.Clone()
		}
		return nil
	})
	return out, err
}

func (r *grantRepo) Create(_ context.Context, grant *models.EntitlementGrant) error {
	return r.s.with(func(st *state) error {
		if _, exists := st.grants[grant.OrderID]; exists {
			return apperrors.NewSystemError(apperrors.ErrCodeConflict, "duplicate grant for order "+grant.OrderID)
		}
		st.grants[grant.OrderID] = grant.Clone()
		return nil
	})
}

func (r *grantRepo) MarkRevoked(_ context.Context, orderID string, at time.Time) error {
	return r.s.with(func(st *state) error {
		if g, ok := st.grants[orderID]; ok && g.RevokedAt == nil {
			t := at
			g.RevokedAt = &t
		}
		return nil
	})
}

type paymentEventRepo struct{ s *Store }

func (r *paymentEventRepo) Get(_ context.Context, gatewayTransactionID string) (*models.PaymentEventRecord, error) {
	var out *models.PaymentEventRecord
	err := r.s.with(func(st *state) error {
		if rec, ok := st.paymentEvents[gatewayTransactionID]; ok {
			c := *rec
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *paymentEventRepo) Create(_ context.Context, record *models.PaymentEventRecord) error {
	return r.s.with(func(st *state) error {
		if _, exists := st.paymentEvents[record.GatewayTransactionID]; exists {
			return apperrors.NewSystemError(apperrors.ErrCodeConflict, "duplicate transaction "+record.GatewayTransactionID)
		}
		c := *record
		st.paymentEvents[record.GatewayTransactionID] = &c
		return nil
	})
}

func (r *paymentEventRepo) ListByOrder(_ context.Context, orderID string) ([]*models.PaymentEventRecord, error) {
	var out []*models.PaymentEventRecord
	err := r.s.with(func(st *state) error {
		for _, rec := range st.paymentEvents {
			if rec.OrderID == orderID {
				c := *rec
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.Before(out[j].ProcessedAt) })
		return nil
	})
	return out, err
}

type catalogRepo struct{ s *Store }

func (r *catalogRepo) GetApp(_ context.Context, id string) (*models.DifyApp, error) {
	var out *models.DifyApp
	err := r.s.with(func(st *state) error {
		if a, ok := st.apps[id]; ok {
			c := *a
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *catalogRepo) GetCourse(_ context.Context, id uint) (*models.Course, error) {
	var out *models.Course
	err := r.s.with(func(st *state) error {
		if c, ok := st.courses[id]; ok {
			cc := *c
			out = &cc
		}
		return nil
	})
	return out, err
}

type userRepo struct{ s *Store }

func (r *userRepo) GetByID(_ context.Context, id uint) (*models.User, error) {
	var out *models.User
	err := r.s.with(func(st *state) error {
		if u, ok := st.users[id]; ok {
			c := *u
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *userRepo) GetForUpdate(ctx context.Context, id uint) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userRepo) UpdateMembership(_ context.Context, userID uint, expires *time.Time, at time.Time) error {
	return r.s.with(func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return apperrors.NewNotFoundError("user")
		}
		u.MembershipExpires = nil
		if expires != nil {
			t := *expires
			u.MembershipExpires = &t
		}
		u.UpdatedAt = at
		return nil
	})
}
