package run_campaigns

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fidelity/config"
	"fidelity/pkg/goutil"
	"fidelity/pkg/mq"
	"fidelity/pkg/service"
	"fidelity/repo"
)

// RunCampaigns scans for campaigns whose schedule time has arrived, plus
// any left mid-send by a crash, and queues a dispatch for each. Meant to
// run every minute from cron.
type RunCampaigns struct {
	campaignRepo repo.CampaignRepo
	producer     *mq.Producer
	cfg          config.Dispatch
}

func New(campaignRepo repo.CampaignRepo, producer *mq.Producer, cfg config.Dispatch) service.Job {
	return &RunCampaigns{
		campaignRepo: campaignRepo,
		producer:     producer,
		cfg:          cfg,
	}
}

func (h *RunCampaigns) Init(_ context.Context) error {
	return nil
}

func (h *RunCampaigns) Run(ctx context.Context) error {
	var (
		g   = new(errgroup.Group)
		c   = 10
		ch  = make(chan struct{}, c)
		now = time.Now()

		// sending campaigns untouched for this long are treated as crashed
		stuckBefore = now.Add(-time.Duration(h.cfg.StuckSendingMinutes) * time.Minute)
	)

	campaigns, err := h.campaignRepo.GetDue(ctx, uint64(now.Unix()), uint64(stuckBefore.Unix()))
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get due campaigns failed: %v", err)
		return err
	}

	log.Ctx(ctx).Info().Msgf("number of campaigns to be dispatched: %d", len(campaigns))

	for _, campaign := range campaigns {
		ch <- struct{}{}

		campaign := campaign
		g.Go(func() error {
			defer func() {
				<-ch
			}()

			err := h.producer.SendMessage(&mq.Message{
				Payload: mq.PayloadDispatchCampaign,
				Key:     fmt.Sprintf("%d", campaign.GetID()),
				Body: &mq.DispatchCampaign{
					CampaignID: goutil.Uint64(campaign.GetID()),
					Resend:     goutil.Bool(false),
				},
			})
			if err != nil {
				log.Ctx(ctx).Error().Msgf("[campaign ID %d] queue dispatch failed: %v", campaign.GetID(), err)
				return err
			}

			return nil
		})
	}

	return g.Wait()
}

func (h *RunCampaigns) CleanUp(_ context.Context) error {
	return nil
}
