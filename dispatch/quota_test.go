package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fidelity/config"
	"fidelity/entity"
	"fidelity/pkg/goutil"
)

func testQuotaConfig() config.Quota {
	return config.Quota{
		DailyLimit:   1000,
		MonthlyLimit: 9000,
		WarningPct:   80,
		CriticalPct:  95,
	}
}

func testQuotaGuard(quotaRepo *fakeQuotaRepo, now time.Time) *QuotaGuard {
	g := NewQuotaGuard(quotaRepo, testQuotaConfig())
	g.now = func() time.Time { return now }
	return g
}

func TestQuotaGuardUsageStatus(t *testing.T) {
	tests := []struct {
		used uint64
		want entity.QuotaStatus
	}{
		{100, entity.QuotaStatusNormal},
		{850, entity.QuotaStatusWarning},
		{950, entity.QuotaStatusCritical},
		{1000, entity.QuotaStatusCritical},
	}

	for _, test := range tests {
		var (
			now        = time.Now()
			quotaRepo  = newFakeQuotaRepo()
			quotaGuard = testQuotaGuard(quotaRepo, now)
			dayStart   = uint64(goutil.StartOfDay(now).Unix())
		)
		quotaRepo.setUsed(entity.QuotaPeriodDaily, dayStart, test.used, 1000)

		usage, err := quotaGuard.Usage(context.Background(), entity.QuotaPeriodDaily)
		require.NoError(t, err)
		assert.Equal(t, test.want, usage.Status, "used=%d", test.used)
		assert.Equal(t, test.used, usage.GetUsed())
		assert.Equal(t, uint64(1000)-test.used, usage.GetRemaining())
	}
}

func TestQuotaGuardReserveRefusal(t *testing.T) {
	var (
		now        = time.Now()
		quotaRepo  = newFakeQuotaRepo()
		quotaGuard = testQuotaGuard(quotaRepo, now)
		dayStart   = uint64(goutil.StartOfDay(now).Unix())
	)
	quotaRepo.setUsed(entity.QuotaPeriodDaily, dayStart, 995, 1000)

	require.NoError(t, quotaGuard.Reserve(context.Background(), 5))

	err := quotaGuard.Reserve(context.Background(), 1)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestQuotaGuardMonthlyRefusalUnwindsDaily(t *testing.T) {
	var (
		now        = time.Now()
		quotaRepo  = newFakeQuotaRepo()
		quotaGuard = testQuotaGuard(quotaRepo, now)
		dayStart   = uint64(goutil.StartOfDay(now).Unix())
		monthStart = uint64(goutil.StartOfMonth(now).Unix())
	)
	quotaRepo.setUsed(entity.QuotaPeriodDaily, dayStart, 0, 1000)
	quotaRepo.setUsed(entity.QuotaPeriodMonthly, monthStart, 8999, 9000)

	err := quotaGuard.Reserve(context.Background(), 10)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	daily, err := quotaGuard.Usage(context.Background(), entity.QuotaPeriodDaily)
	require.NoError(t, err)
	assert.Zero(t, daily.GetUsed())
}

func TestQuotaGuardConcurrentReserve(t *testing.T) {
	var (
		now        = time.Now()
		quotaRepo  = newFakeQuotaRepo()
		quotaGuard = testQuotaGuard(quotaRepo, now)
		dayStart   = uint64(goutil.StartOfDay(now).Unix())
	)
	quotaRepo.setUsed(entity.QuotaPeriodDaily, dayStart, 990, 1000)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := quotaGuard.Reserve(context.Background(), 1); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, granted)

	daily, err := quotaGuard.Usage(context.Background(), entity.QuotaPeriodDaily)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), daily.GetUsed())
}

func TestQuotaGuardProjection(t *testing.T) {
	var (
		// day 10: 3000 used, averaging 300/day over a 31-day month
		now        = time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local)
		quotaRepo  = newFakeQuotaRepo()
		quotaGuard = testQuotaGuard(quotaRepo, now)
		monthStart = uint64(goutil.StartOfMonth(now).Unix())
	)
	quotaRepo.setUsed(entity.QuotaPeriodMonthly, monthStart, 3000, 9000)

	projection, err := quotaGuard.Projection(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 300, projection.GetAvgPerDay(), 0.01)
	assert.InDelta(t, 9300, projection.GetProjectedEndOfMonth(), 0.01)
	assert.True(t, projection.GetWillExceed())
	assert.InDelta(t, 20, *projection.DaysToLimit, 0.1)
}

func TestQuotaGuardProjectionNoUsage(t *testing.T) {
	var (
		now        = time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local)
		quotaGuard = testQuotaGuard(newFakeQuotaRepo(), now)
	)

	projection, err := quotaGuard.Projection(context.Background())
	require.NoError(t, err)

	assert.Zero(t, projection.GetAvgPerDay())
	assert.False(t, projection.GetWillExceed())
	assert.Nil(t, projection.DaysToLimit)
}
