package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fidelity/entity"
	"fidelity/pkg/goutil"
)

func seedDelivery(t *testing.T, deliveryRepo *fakeDeliveryRepo, campaignID uint64, email string, status entity.DeliveryStatus) {
	t.Helper()
	require.NoError(t, deliveryRepo.Upsert(context.Background(), &entity.Delivery{
		CampaignID: goutil.Uint64(campaignID),
		Email:      goutil.String(email),
		Status:     status,
	}))
}

func seedEvent(t *testing.T, trackingEventRepo *fakeTrackingEventRepo, campaignID uint64, email string, event entity.Event) {
	t.Helper()
	require.NoError(t, trackingEventRepo.Create(context.Background(), &entity.TrackingEvent{
		CampaignID: goutil.Uint64(campaignID),
		Email:      goutil.String(email),
		Event:      event,
	}))
}

func TestStatsAggregatorRecompute(t *testing.T) {
	var (
		ctx               = context.Background()
		campaignRepo      = newFakeCampaignRepo()
		deliveryRepo      = newFakeDeliveryRepo()
		trackingEventRepo = &fakeTrackingEventRepo{}
	)

	campaignID, err := campaignRepo.Create(ctx, &entity.Campaign{
		Name:   goutil.String("spring promo"),
		Status: entity.CampaignStatusSent,
	})
	require.NoError(t, err)

	seedDelivery(t, deliveryRepo, campaignID, "a@example.com", entity.DeliveryStatusSent)
	seedDelivery(t, deliveryRepo, campaignID, "b@example.com", entity.DeliveryStatusSent)
	seedDelivery(t, deliveryRepo, campaignID, "c@example.com", entity.DeliveryStatusSent)
	seedDelivery(t, deliveryRepo, campaignID, "d@example.com", entity.DeliveryStatusSent)
	seedDelivery(t, deliveryRepo, campaignID, "e@example.com", entity.DeliveryStatusFailed)

	// a opens twice, counts once
	seedEvent(t, trackingEventRepo, campaignID, "a@example.com", entity.EventOpen)
	seedEvent(t, trackingEventRepo, campaignID, "a@example.com", entity.EventOpen)
	seedEvent(t, trackingEventRepo, campaignID, "b@example.com", entity.EventOpen)
	seedEvent(t, trackingEventRepo, campaignID, "a@example.com", entity.EventClick)

	aggregator := NewStatsAggregator(campaignRepo, deliveryRepo, trackingEventRepo)

	campaign, err := aggregator.Recompute(ctx, campaignID)
	require.NoError(t, err)

	assert.Equal(t, uint64(4), campaign.GetTotalSent())
	assert.Equal(t, uint64(2), campaign.GetTotalOpened())
	assert.Equal(t, uint64(1), campaign.GetTotalClicked())
	assert.InDelta(t, 50, campaign.GetOpenRate(), 0.01)
	assert.InDelta(t, 25, campaign.GetClickRate(), 0.01)

	// stored aggregates match
	stored, err := campaignRepo.GetByID(ctx, campaignID)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stored.GetTotalSent())
	assert.InDelta(t, 50, stored.GetOpenRate(), 0.01)
}

func TestStatsAggregatorIdempotent(t *testing.T) {
	var (
		ctx               = context.Background()
		campaignRepo      = newFakeCampaignRepo()
		deliveryRepo      = newFakeDeliveryRepo()
		trackingEventRepo = &fakeTrackingEventRepo{}
	)

	campaignID, err := campaignRepo.Create(ctx, &entity.Campaign{Status: entity.CampaignStatusSent})
	require.NoError(t, err)

	seedDelivery(t, deliveryRepo, campaignID, "a@example.com", entity.DeliveryStatusSent)
	seedEvent(t, trackingEventRepo, campaignID, "a@example.com", entity.EventOpen)

	aggregator := NewStatsAggregator(campaignRepo, deliveryRepo, trackingEventRepo)

	first, err := aggregator.Recompute(ctx, campaignID)
	require.NoError(t, err)

	second, err := aggregator.Recompute(ctx, campaignID)
	require.NoError(t, err)

	assert.Equal(t, first.GetTotalSent(), second.GetTotalSent())
	assert.Equal(t, first.GetTotalOpened(), second.GetTotalOpened())
	assert.Equal(t, first.GetOpenRate(), second.GetOpenRate())
}

func TestStatsAggregatorRefreshMany(t *testing.T) {
	var (
		ctx               = context.Background()
		campaignRepo      = newFakeCampaignRepo()
		deliveryRepo      = newFakeDeliveryRepo()
		trackingEventRepo = &fakeTrackingEventRepo{}
	)

	// paused mid-send with counters recorded before the opens arrived
	pausedID, err := campaignRepo.Create(ctx, &entity.Campaign{
		Name:      goutil.String("interrupted promo"),
		Status:    entity.CampaignStatusPaused,
		TotalSent: goutil.Uint64(2),
	})
	require.NoError(t, err)

	draftID, err := campaignRepo.Create(ctx, &entity.Campaign{
		Name:   goutil.String("untouched draft"),
		Status: entity.CampaignStatusDraft,
	})
	require.NoError(t, err)

	seedDelivery(t, deliveryRepo, pausedID, "a@example.com", entity.DeliveryStatusSent)
	seedDelivery(t, deliveryRepo, pausedID, "b@example.com", entity.DeliveryStatusSent)
	seedEvent(t, trackingEventRepo, pausedID, "a@example.com", entity.EventOpen)

	aggregator := NewStatsAggregator(campaignRepo, deliveryRepo, trackingEventRepo)

	paused, err := campaignRepo.GetByID(ctx, pausedID)
	require.NoError(t, err)
	draft, err := campaignRepo.GetByID(ctx, draftID)
	require.NoError(t, err)

	aggregator.RefreshMany(ctx, []*entity.Campaign{paused, draft})

	// refreshed in place
	assert.Equal(t, uint64(2), paused.GetTotalSent())
	assert.Equal(t, uint64(1), paused.GetTotalOpened())
	assert.Equal(t, float64(50), paused.GetOpenRate())

	// never-sent campaigns are left alone
	assert.Zero(t, draft.GetTotalSent())
	assert.Zero(t, draft.GetTotalOpened())

	stored, err := campaignRepo.GetByID(ctx, pausedID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored.GetTotalOpened())
}

func TestStatsAggregatorZeroSent(t *testing.T) {
	var (
		ctx               = context.Background()
		campaignRepo      = newFakeCampaignRepo()
		deliveryRepo      = newFakeDeliveryRepo()
		trackingEventRepo = &fakeTrackingEventRepo{}
	)

	campaignID, err := campaignRepo.Create(ctx, &entity.Campaign{Status: entity.CampaignStatusSent})
	require.NoError(t, err)

	aggregator := NewStatsAggregator(campaignRepo, deliveryRepo, trackingEventRepo)

	campaign, err := aggregator.Recompute(ctx, campaignID)
	require.NoError(t, err)

	assert.Zero(t, campaign.GetTotalSent())
	assert.Zero(t, campaign.GetOpenRate())
	assert.Zero(t, campaign.GetClickRate())
}
