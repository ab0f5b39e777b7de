package repo

import (
	"context"
	"errors"
	"time"

	"fidelity/config"
	"fidelity/entity"
	"fidelity/pkg/goutil"

	"gorm.io/gorm"
)

type QuotaCounter struct {
	ID          *uint64
	Period      *uint32
	WindowStart *uint64
	Used        *uint64
	Limit       *uint64 `gorm:"column:send_limit"`
	CreateTime  *uint64
	UpdateTime  *uint64
}

func (m *QuotaCounter) TableName() string {
	return "quota_counter_tab"
}

type QuotaRepo interface {
	// GetOrCreate returns the counter for the period window, creating a
	// zeroed one at the window boundary. The limit follows config.
	GetOrCreate(ctx context.Context, period entity.QuotaPeriod, windowStart, limit uint64) (*entity.QuotaCounter, error)
	// Reserve atomically adds n to the counter iff used+n <= limit.
	// Returns false when the reservation is refused. The conditional
	// UPDATE serializes concurrent campaigns on the shared counter.
	Reserve(ctx context.Context, period entity.QuotaPeriod, windowStart, n uint64) (bool, error)
	// Release gives back a reservation that was never sent.
	Release(ctx context.Context, period entity.QuotaPeriod, windowStart, n uint64) error
	Close(ctx context.Context) error
}

type quotaRepo struct {
	orm *gorm.DB
}

func NewQuotaRepo(_ context.Context, mysqlCfg config.MySQL) (QuotaRepo, error) {
	orm, err := gorm.Open(newMysqlDialector(mysqlCfg), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &quotaRepo{orm: orm}, nil
}

func (r *quotaRepo) GetOrCreate(_ context.Context, period entity.QuotaPeriod, windowStart, limit uint64) (*entity.QuotaCounter, error) {
	now := uint64(time.Now().Unix())

	counterModel := new(QuotaCounter)
	err := r.orm.
		Where("period = ? AND window_start = ?", uint32(period), windowStart).
		First(counterModel).Error

	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		counterModel = &QuotaCounter{
			Period:      goutil.Uint32(uint32(period)),
			WindowStart: goutil.Uint64(windowStart),
			Used:        goutil.Uint64(0),
			Limit:       goutil.Uint64(limit),
			CreateTime:  goutil.Uint64(now),
			UpdateTime:  goutil.Uint64(now),
		}
		if err := r.orm.Create(counterModel).Error; err != nil {
			return nil, err
		}
	} else if counterModel.Limit == nil || *counterModel.Limit != limit {
		// config changed mid-window
		if err := r.orm.Model(counterModel).Where("id = ?", counterModel.GetID()).
			Updates(map[string]interface{}{"send_limit": limit, "update_time": now}).Error; err != nil {
			return nil, err
		}
		counterModel.Limit = goutil.Uint64(limit)
	}

	return ToQuotaCounter(counterModel), nil
}

func (r *quotaRepo) Reserve(_ context.Context, period entity.QuotaPeriod, windowStart, n uint64) (bool, error) {
	res := r.orm.Model(new(QuotaCounter)).
		Where("period = ? AND window_start = ? AND used + ? <= send_limit", uint32(period), windowStart, n).
		Updates(map[string]interface{}{
			"used":        gorm.Expr("used + ?", n),
			"update_time": uint64(time.Now().Unix()),
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (r *quotaRepo) Release(_ context.Context, period entity.QuotaPeriod, windowStart, n uint64) error {
	return r.orm.Model(new(QuotaCounter)).
		Where("period = ? AND window_start = ?", uint32(period), windowStart).
		Updates(map[string]interface{}{
			"used":        gorm.Expr("GREATEST(CAST(used AS SIGNED) - ?, 0)", n),
			"update_time": uint64(time.Now().Unix()),
		}).Error
}

func (m *QuotaCounter) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

func (r *quotaRepo) Close(_ context.Context) error {
	return closeOrm(r.orm)
}

func ToQuotaCounter(counterModel *QuotaCounter) *entity.QuotaCounter {
	counter := &entity.QuotaCounter{
		ID:          counterModel.ID,
		WindowStart: counterModel.WindowStart,
		Used:        counterModel.Used,
		Limit:       counterModel.Limit,
		CreateTime:  counterModel.CreateTime,
		UpdateTime:  counterModel.UpdateTime,
	}

	if counterModel.Period != nil {
		counter.Period = entity.QuotaPeriod(*counterModel.Period)
	}

	return counter
}
