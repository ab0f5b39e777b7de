package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"fidelity/entity"
	"fidelity/pkg/goutil"
	"fidelity/repo"
)

// StatsAggregator recomputes a campaign's delivery and engagement counters
// from the delivery and tracking tables. Aggregates replace the stored
// values, so running twice in a row is a no-op.
type StatsAggregator struct {
	campaignRepo      repo.CampaignRepo
	deliveryRepo      repo.DeliveryRepo
	trackingEventRepo repo.TrackingEventRepo
}

func NewStatsAggregator(
	campaignRepo repo.CampaignRepo,
	deliveryRepo repo.DeliveryRepo,
	trackingEventRepo repo.TrackingEventRepo,
) *StatsAggregator {
	return &StatsAggregator{
		campaignRepo:      campaignRepo,
		deliveryRepo:      deliveryRepo,
		trackingEventRepo: trackingEventRepo,
	}
}

// Recompute refreshes the campaign's counters and rates. Opens and clicks
// count distinct recipients, a customer opening five times is one open.
func (a *StatsAggregator) Recompute(ctx context.Context, campaignID uint64) (*entity.Campaign, error) {
	totalSent, err := a.deliveryRepo.CountByStatus(ctx, campaignID, entity.DeliveryStatusSent)
	if err != nil {
		return nil, err
	}

	totalOpened, err := a.trackingEventRepo.CountDistinctEmails(ctx, campaignID, entity.EventOpen)
	if err != nil {
		return nil, err
	}

	totalClicked, err := a.trackingEventRepo.CountDistinctEmails(ctx, campaignID, entity.EventClick)
	if err != nil {
		return nil, err
	}

	var openRate, clickRate float64
	if totalSent > 0 {
		openRate = float64(totalOpened) / float64(totalSent) * 100
		clickRate = float64(totalClicked) / float64(totalSent) * 100
	}

	campaign := &entity.Campaign{
		ID:           goutil.Uint64(campaignID),
		TotalSent:    goutil.Uint64(totalSent),
		TotalOpened:  goutil.Uint64(totalOpened),
		TotalClicked: goutil.Uint64(totalClicked),
		OpenRate:     goutil.Float64(openRate),
		ClickRate:    goutil.Float64(clickRate),
		UpdateTime:   goutil.Uint64(uint64(time.Now().Unix())),
	}

	if err := a.campaignRepo.Update(ctx, campaign); err != nil {
		return nil, err
	}

	return campaign, nil
}

// RefreshMany recomputes counters in place for every campaign that has
// sends, so list views show engagement that arrived since the last
// recompute. A failed recompute is logged and leaves that campaign's
// stored counters untouched.
func (a *StatsAggregator) RefreshMany(ctx context.Context, campaigns []*entity.Campaign) {
	for _, campaign := range campaigns {
		if campaign.GetTotalSent() == 0 {
			continue
		}

		refreshed, err := a.Recompute(ctx, campaign.GetID())
		if err != nil {
			log.Ctx(ctx).Error().Msgf("recompute stats err, campaign_id: %d, err: %v", campaign.GetID(), err)
			continue
		}
		campaign.Update(refreshed)
	}
}
