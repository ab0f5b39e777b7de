package repo

import (
	"context"

	"fidelity/config"
	"fidelity/entity"

	"gorm.io/gorm"
)

const customerCachePrefix = "roster"

type Customer struct {
	ID               *uint64
	Name             *string
	Email            *string
	Points           *uint64
	TotalSpent       *float64
	CreateTime       *uint64
	LastPurchaseTime *uint64
}

func (m *Customer) TableName() string {
	return "customer_tab"
}

// CustomerRepo reads the roster the loyalty backend maintains. The
// dispatch engine never writes customers.
type CustomerRepo interface {
	GetAll(ctx context.Context) ([]*entity.Customer, error)
	GetByIDs(ctx context.Context, ids []uint64) ([]*entity.Customer, error)
	Close(ctx context.Context) error
}

type customerRepo struct {
	orm   *gorm.DB
	cache BaseCache
}

func NewCustomerRepo(_ context.Context, mysqlCfg config.MySQL, cache BaseCache) (CustomerRepo, error) {
	orm, err := gorm.Open(newMysqlDialector(mysqlCfg), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &customerRepo{orm: orm, cache: cache}, nil
}

// GetAll returns a roster snapshot. Snapshots are cached briefly so one
// campaign run does not hammer the roster table per preview + dispatch.
func (r *customerRepo) GetAll(ctx context.Context) ([]*entity.Customer, error) {
	if v, ok := r.cache.Get(ctx, customerCachePrefix, "all"); ok {
		if customers, ok := v.([]*entity.Customer); ok {
			return customers, nil
		}
	}

	customerModels := make([]*Customer, 0)
	if err := r.orm.Order("id ASC").Find(&customerModels).Error; err != nil {
		return nil, err
	}

	customers := make([]*entity.Customer, 0, len(customerModels))
	for _, customerModel := range customerModels {
		customers = append(customers, ToCustomer(customerModel))
	}

	r.cache.Set(ctx, customerCachePrefix, "all", customers)

	return customers, nil
}

func (r *customerRepo) GetByIDs(_ context.Context, ids []uint64) ([]*entity.Customer, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	customerModels := make([]*Customer, 0)
	if err := r.orm.Where("id IN ?", ids).Order("id ASC").Find(&customerModels).Error; err != nil {
		return nil, err
	}

	customers := make([]*entity.Customer, 0, len(customerModels))
	for _, customerModel := range customerModels {
		customers = append(customers, ToCustomer(customerModel))
	}

	return customers, nil
}

func (r *customerRepo) Close(_ context.Context) error {
	return closeOrm(r.orm)
}

func ToCustomer(customerModel *Customer) *entity.Customer {
	return &entity.Customer{
		ID:               customerModel.ID,
		Name:             customerModel.Name,
		Email:            customerModel.Email,
		Points:           customerModel.Points,
		TotalSpent:       customerModel.TotalSpent,
		CreateTime:       customerModel.CreateTime,
		LastPurchaseTime: customerModel.LastPurchaseTime,
	}
}
