package dispatch

import (
	"time"

	"fidelity/config"
	"fidelity/entity"
)

// Classifier maps a customer onto the loyalty tiers and the spend and
// recency buckets. Boundaries come from config and are lower-inclusive,
// upper-exclusive: exactly 100 points is silver, not bronze.
type Classifier struct {
	cfg config.Segments
}

func NewClassifier(cfg config.Segments) *Classifier {
	return &Classifier{cfg: cfg}
}

func (c *Classifier) Tier(points uint64) entity.Tier {
	switch {
	case points >= c.cfg.PlatinumMinPoints:
		return entity.TierPlatinum
	case points >= c.cfg.GoldMinPoints:
		return entity.TierGold
	case points >= c.cfg.SilverMinPoints:
		return entity.TierSilver
	default:
		return entity.TierBronze
	}
}

func (c *Classifier) SpendBucket(totalSpent float64) entity.SpendBucket {
	switch {
	case totalSpent >= c.cfg.HighMinSpend:
		return entity.SpendHigh
	case totalSpent >= c.cfg.MediumMinSpend:
		return entity.SpendMedium
	default:
		return entity.SpendLow
	}
}

// Recency classifies new before active: a recently created customer is
// "new" even when they have already purchased.
func (c *Classifier) Recency(customer *entity.Customer, now time.Time) entity.RecencyBucket {
	var (
		newCutoff    = now.AddDate(0, 0, -c.cfg.NewCustomerDays).Unix()
		activeCutoff = now.AddDate(0, 0, -c.cfg.ActiveDays).Unix()
	)

	if created := customer.GetCreateTime(); created > 0 && int64(created) >= newCutoff {
		return entity.RecencyNew
	}

	if last := customer.GetLastPurchaseTime(); last > 0 && int64(last) >= activeCutoff {
		return entity.RecencyActive
	}

	return entity.RecencyDormant
}
