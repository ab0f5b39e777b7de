package recompute_stats

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fidelity/dispatch"
	"fidelity/entity"
	"fidelity/pkg/goutil"
	"fidelity/pkg/service"
	"fidelity/repo"
)

// RecomputeStats refreshes the engagement counters of every sent campaign
// from the tracking tables. Opens and clicks trickle in for days after a
// send, so a periodic sweep keeps the stored rates honest.
type RecomputeStats struct {
	campaignRepo repo.CampaignRepo
	stats        *dispatch.StatsAggregator
}

func New(campaignRepo repo.CampaignRepo, stats *dispatch.StatsAggregator) service.Job {
	return &RecomputeStats{
		campaignRepo: campaignRepo,
		stats:        stats,
	}
}

func (h *RecomputeStats) Init(_ context.Context) error {
	return nil
}

func (h *RecomputeStats) Run(ctx context.Context) error {
	var (
		g  = new(errgroup.Group)
		c  = 10
		ch = make(chan struct{}, c)
	)

	sentStatus := uint32(entity.CampaignStatusSent)
	campaigns, _, err := h.campaignRepo.GetMany(ctx, &repo.CampaignFilter{
		Status: &sentStatus,
	}, &repo.Pagination{
		Limit: goutil.Uint32(0), // no limit
	})
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get sent campaigns failed: %v", err)
		return err
	}

	log.Ctx(ctx).Info().Msgf("number of campaigns to recompute: %d", len(campaigns))

	for _, campaign := range campaigns {
		ch <- struct{}{}

		campaign := campaign
		g.Go(func() error {
			defer func() {
				<-ch
			}()

			if _, err := h.stats.Recompute(ctx, campaign.GetID()); err != nil {
				log.Ctx(ctx).Error().Msgf("[campaign ID %d] recompute stats failed: %v", campaign.GetID(), err)
				return err
			}

			return nil
		})
	}

	return g.Wait()
}

func (h *RecomputeStats) CleanUp(_ context.Context) error {
	return nil
}
