package dispatch

import (
	"context"
	"errors"
	"math"
	"time"

	"fidelity/config"
	"fidelity/entity"
	"fidelity/pkg/goutil"
	"fidelity/repo"
)

var ErrQuotaExceeded = errors.New("send quota exceeded")

// QuotaGuard enforces the daily and monthly send limits. Reservations are
// taken on durable counters before any email leaves, so two campaigns
// dispatching at once cannot both spend the last slot.
type QuotaGuard struct {
	quotaRepo repo.QuotaRepo
	cfg       config.Quota
	now       func() time.Time
}

func NewQuotaGuard(quotaRepo repo.QuotaRepo, cfg config.Quota) *QuotaGuard {
	return &QuotaGuard{
		quotaRepo: quotaRepo,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Reserve claims n sends against both windows. Returns ErrQuotaExceeded when
// either window cannot fit n. A daily claim is released again when the
// monthly window refuses, so a refused reservation leaves both counters
// untouched.
func (g *QuotaGuard) Reserve(ctx context.Context, n uint64) error {
	if n == 0 {
		return nil
	}

	now := g.now()
	dailyStart := uint64(goutil.StartOfDay(now).Unix())
	monthlyStart := uint64(goutil.StartOfMonth(now).Unix())

	if _, err := g.quotaRepo.GetOrCreate(ctx, entity.QuotaPeriodDaily, dailyStart, g.cfg.DailyLimit); err != nil {
		return err
	}
	if _, err := g.quotaRepo.GetOrCreate(ctx, entity.QuotaPeriodMonthly, monthlyStart, g.cfg.MonthlyLimit); err != nil {
		return err
	}

	ok, err := g.quotaRepo.Reserve(ctx, entity.QuotaPeriodDaily, dailyStart, n)
	if err != nil {
		return err
	}
	if !ok {
		return ErrQuotaExceeded
	}

	ok, err = g.quotaRepo.Reserve(ctx, entity.QuotaPeriodMonthly, monthlyStart, n)
	if err == nil && !ok {
		err = ErrQuotaExceeded
	}
	if err != nil {
		if releaseErr := g.quotaRepo.Release(ctx, entity.QuotaPeriodDaily, dailyStart, n); releaseErr != nil {
			return releaseErr
		}
		return err
	}

	return nil
}

// Release gives back reservations for emails that were never sent, e.g.
// when a send fails after the slot was claimed.
func (g *QuotaGuard) Release(ctx context.Context, n uint64) error {
	if n == 0 {
		return nil
	}

	now := g.now()

	if err := g.quotaRepo.Release(ctx, entity.QuotaPeriodDaily, uint64(goutil.StartOfDay(now).Unix()), n); err != nil {
		return err
	}

	return g.quotaRepo.Release(ctx, entity.QuotaPeriodMonthly, uint64(goutil.StartOfMonth(now).Unix()), n)
}

// Usage snapshots the counter of one period for the dashboard.
func (g *QuotaGuard) Usage(ctx context.Context, period entity.QuotaPeriod) (*entity.QuotaUsage, error) {
	now := g.now()

	var (
		windowStart uint64
		limit       uint64
	)
	switch period {
	case entity.QuotaPeriodDaily:
		windowStart = uint64(goutil.StartOfDay(now).Unix())
		limit = g.cfg.DailyLimit
	case entity.QuotaPeriodMonthly:
		windowStart = uint64(goutil.StartOfMonth(now).Unix())
		limit = g.cfg.MonthlyLimit
	default:
		return nil, errors.New("unknown quota period")
	}

	counter, err := g.quotaRepo.GetOrCreate(ctx, period, windowStart, limit)
	if err != nil {
		return nil, err
	}

	return g.toUsage(counter), nil
}

func (g *QuotaGuard) toUsage(counter *entity.QuotaCounter) *entity.QuotaUsage {
	var (
		used  = counter.GetUsed()
		limit = counter.GetLimit()
	)

	var remaining uint64
	if limit > used {
		remaining = limit - used
	}

	var pct float64
	if limit > 0 {
		pct = float64(used) / float64(limit) * 100
	}

	status := entity.QuotaStatusNormal
	switch {
	case pct >= g.cfg.CriticalPct:
		status = entity.QuotaStatusCritical
	case pct >= g.cfg.WarningPct:
		status = entity.QuotaStatusWarning
	}

	return &entity.QuotaUsage{
		Period:     counter.GetPeriod(),
		Used:       goutil.Uint64(used),
		Limit:      goutil.Uint64(limit),
		Remaining:  goutil.Uint64(remaining),
		Percentage: goutil.Float64(pct),
		Status:     status,
	}
}

// Projection extrapolates the monthly counter to the end of the month from
// the average daily rate so far.
func (g *QuotaGuard) Projection(ctx context.Context) (*entity.QuotaProjection, error) {
	now := g.now()

	monthly, err := g.quotaRepo.GetOrCreate(
		ctx, entity.QuotaPeriodMonthly, uint64(goutil.StartOfMonth(now).Unix()), g.cfg.MonthlyLimit,
	)
	if err != nil {
		return nil, err
	}

	var (
		used        = float64(monthly.GetUsed())
		limit       = float64(monthly.GetLimit())
		daysElapsed = float64(goutil.DaysElapsedInMonth(now))
		daysInMonth = float64(goutil.DaysInMonth(now))
	)

	avgPerDay := used / daysElapsed
	projected := avgPerDay * daysInMonth

	projection := &entity.QuotaProjection{
		AvgPerDay:           goutil.Float64(avgPerDay),
		ProjectedEndOfMonth: goutil.Float64(projected),
		WillExceed:          goutil.Bool(projected > limit),
	}

	if avgPerDay > 0 && used < limit {
		daysToLimit := (limit - used) / avgPerDay
		projection.DaysToLimit = goutil.Float64(math.Round(daysToLimit*10) / 10)
	}

	return projection, nil
}
