package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fidelity/config"
	"fidelity/entity"
	"fidelity/pkg/goutil"
)

func testSegmentsConfig() config.Segments {
	return config.Segments{
		SilverMinPoints:   100,
		GoldMinPoints:     300,
		PlatinumMinPoints: 500,
		MediumMinSpend:    50,
		HighMinSpend:      200,
		NewCustomerDays:   30,
		ActiveDays:        60,
	}
}

func TestClassifierTier(t *testing.T) {
	c := NewClassifier(testSegmentsConfig())

	tests := []struct {
		points uint64
		want   entity.Tier
	}{
		{0, entity.TierBronze},
		{99, entity.TierBronze},
		{100, entity.TierSilver},
		{299, entity.TierSilver},
		{300, entity.TierGold},
		{499, entity.TierGold},
		{500, entity.TierPlatinum},
		{10000, entity.TierPlatinum},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, c.Tier(test.points), "points=%d", test.points)
	}
}

func TestClassifierSpendBucket(t *testing.T) {
	c := NewClassifier(testSegmentsConfig())

	tests := []struct {
		spent float64
		want  entity.SpendBucket
	}{
		{0, entity.SpendLow},
		{49.99, entity.SpendLow},
		{50, entity.SpendMedium},
		{199.99, entity.SpendMedium},
		{200, entity.SpendHigh},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, c.SpendBucket(test.spent), "spent=%f", test.spent)
	}
}

func TestClassifierRecency(t *testing.T) {
	var (
		c   = NewClassifier(testSegmentsConfig())
		now = time.Now()
	)

	unixDaysAgo := func(days int) *uint64 {
		return goutil.Uint64(uint64(now.AddDate(0, 0, -days).Unix()))
	}

	tests := []struct {
		name     string
		customer *entity.Customer
		want     entity.RecencyBucket
	}{
		{
			name:     "created recently",
			customer: &entity.Customer{CreateTime: unixDaysAgo(10)},
			want:     entity.RecencyNew,
		},
		{
			name: "recent purchase",
			customer: &entity.Customer{
				CreateTime:       unixDaysAgo(200),
				LastPurchaseTime: unixDaysAgo(15),
			},
			want: entity.RecencyActive,
		},
		{
			name: "new wins over active",
			customer: &entity.Customer{
				CreateTime:       unixDaysAgo(5),
				LastPurchaseTime: unixDaysAgo(1),
			},
			want: entity.RecencyNew,
		},
		{
			name: "stale purchase",
			customer: &entity.Customer{
				CreateTime:       unixDaysAgo(200),
				LastPurchaseTime: unixDaysAgo(90),
			},
			want: entity.RecencyDormant,
		},
		{
			name:     "never purchased",
			customer: &entity.Customer{CreateTime: unixDaysAgo(200)},
			want:     entity.RecencyDormant,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, c.Recency(test.customer, now))
		})
	}
}
