package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fidelity/config"
	"fidelity/dep"
	"fidelity/entity"
	"fidelity/pkg/goutil"
	"fidelity/repo"
	"fidelity/tracking"
)

var (
	ErrInvalidCampaignState = errors.New("campaign not in a dispatchable state")
	ErrNothingToSend        = errors.New("no content to send")
)

const quotaExceededError = "quota exceeded"

// Result summarizes one dispatch run.
type Result struct {
	TotalSent    uint64
	TotalFailed  uint64
	TotalSkipped uint64
}

// Dispatcher runs campaign sends end to end: resolve the audience, walk the
// recipients, personalize and decorate each email, and hand it to the
// transport under the quota guard. Worker failures never abort the batch,
// each recipient settles into its own Delivery row.
type Dispatcher struct {
	campaignRepo repo.CampaignRepo
	deliveryRepo repo.DeliveryRepo
	resolver     *SegmentResolver
	personalizer *Personalizer
	rewriter     *tracking.Rewriter
	quotaGuard   *QuotaGuard
	stats        *StatsAggregator
	emailService dep.EmailService
	sender       config.Sender
	cfg          config.Dispatch

	// control holds campaign IDs flagged to pause or cancel mid-run.
	// Flags only reach the run inside this process.
	control sync.Map
}

type controlSignal uint32

const (
	signalPause controlSignal = iota + 1
	signalCancel
)

func NewDispatcher(
	campaignRepo repo.CampaignRepo,
	deliveryRepo repo.DeliveryRepo,
	resolver *SegmentResolver,
	personalizer *Personalizer,
	rewriter *tracking.Rewriter,
	quotaGuard *QuotaGuard,
	stats *StatsAggregator,
	emailService dep.EmailService,
	sender config.Sender,
	cfg config.Dispatch,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Dispatcher{
		campaignRepo: campaignRepo,
		deliveryRepo: deliveryRepo,
		resolver:     resolver,
		personalizer: personalizer,
		rewriter:     rewriter,
		quotaGuard:   quotaGuard,
		stats:        stats,
		emailService: emailService,
		sender:       sender,
		cfg:          cfg,
	}
}

// Pause flags a running campaign to stop after the in-flight recipients
// settle. Already-sent deliveries stay sent.
func (d *Dispatcher) Pause(campaignID uint64) {
	d.control.Store(campaignID, signalPause)
}

// Cancel flags a running campaign to stop for good.
func (d *Dispatcher) Cancel(campaignID uint64) {
	d.control.Store(campaignID, signalCancel)
}

func (d *Dispatcher) signal(campaignID uint64) (controlSignal, bool) {
	v, ok := d.control.Load(campaignID)
	if !ok {
		return 0, false
	}
	return v.(controlSignal), true
}

// Dispatch runs the campaign to completion, pause, or cancellation.
// Recipients with a sent Delivery row are skipped, so resuming after a
// pause or crash never sends twice. With resend set, a finished campaign
// is re-entered for its failed and pending recipients only, the skip rule
// covers the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID uint64, resend bool) (*Result, error) {
	defer d.control.Delete(campaignID)

	campaign, err := d.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if err := d.checkDispatchable(campaign, resend); err != nil {
		return nil, err
	}

	if campaign.GetSubject() == "" || campaign.EffectiveHtml() == "" {
		return nil, ErrNothingToSend
	}

	// Resolve before any state change: an empty audience fails the send
	// with zero Delivery rows and the campaign still where it was.
	recipients, err := d.resolver.Resolve(ctx, campaign.GetAudienceFilter())
	if err != nil {
		return nil, err
	}

	sentEmails, err := d.deliveryRepo.GetSentEmails(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if err := d.markSending(ctx, campaign); err != nil {
		return nil, err
	}

	res, runErr := d.run(ctx, campaign, recipients, sentEmails)

	if err := d.finalize(ctx, campaignID, runErr); err != nil {
		log.Ctx(ctx).Error().Msgf("finalize campaign failed, campaign_id: %d, err: %v", campaignID, err)
	}

	if _, err := d.stats.Recompute(ctx, campaignID); err != nil {
		log.Ctx(ctx).Error().Msgf("recompute stats failed, campaign_id: %d, err: %v", campaignID, err)
	}

	return res, runErr
}

func (d *Dispatcher) checkDispatchable(campaign *entity.Campaign, resend bool) error {
	status := campaign.GetStatus()

	if resend {
		// Resend re-opens a finished campaign for its failed recipients.
		// Resuming a paused campaign goes through here too, so a plain
		// queued dispatch can never restart what a user paused.
		if status == entity.CampaignStatusSent || status == entity.CampaignStatusPaused {
			return nil
		}
		return fmt.Errorf("%w, status: %d", ErrInvalidCampaignState, status)
	}

	switch status {
	case entity.CampaignStatusScheduled:
		return nil
	case entity.CampaignStatusSending:
		// crash recovery, the previous run never finalized
		return nil
	default:
		return fmt.Errorf("%w, status: %d", ErrInvalidCampaignState, status)
	}
}

func (d *Dispatcher) markSending(ctx context.Context, campaign *entity.Campaign) error {
	if campaign.GetStatus() == entity.CampaignStatusSending {
		return nil
	}

	return d.campaignRepo.Update(ctx, &entity.Campaign{
		ID:         goutil.Uint64(campaign.GetID()),
		Status:     entity.CampaignStatusSending,
		UpdateTime: goutil.Uint64(uint64(time.Now().Unix())),
	})
}

func (d *Dispatcher) run(
	ctx context.Context,
	campaign *entity.Campaign,
	recipients []*entity.Customer,
	sentEmails map[string]struct{},
) (*Result, error) {
	var (
		campaignID   = campaign.GetID()
		now          = time.Now()
		sentCount    atomic.Uint64
		failedCount  atomic.Uint64
		skippedCount uint64
	)

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, d.cfg.Workers)

	var quotaStop bool
	for _, recipient := range recipients {
		if _, ok := sentEmails[recipient.GetEmail()]; ok {
			skippedCount++
			continue
		}

		if _, ok := d.signal(campaignID); ok {
			break
		}

		if quotaStop {
			failedCount.Add(1)
			if err := d.settle(ctx, campaignID, recipient.GetEmail(), entity.DeliveryStatusFailed, quotaExceededError); err != nil {
				log.Ctx(ctx).Error().Msgf("record delivery failed, campaign_id: %d, email: %s, err: %v",
					campaignID, recipient.GetEmail(), err)
			}
			continue
		}

		if err := d.quotaGuard.Reserve(ctx, 1); err != nil {
			if !errors.Is(err, ErrQuotaExceeded) {
				return d.result(&sentCount, &failedCount, skippedCount), err
			}
			// Mark this and every remaining recipient failed so a
			// resend can target them once quota frees up.
			quotaStop = true
			failedCount.Add(1)
			if err := d.settle(ctx, campaignID, recipient.GetEmail(), entity.DeliveryStatusFailed, quotaExceededError); err != nil {
				log.Ctx(ctx).Error().Msgf("record delivery failed, campaign_id: %d, email: %s, err: %v",
					campaignID, recipient.GetEmail(), err)
			}
			continue
		}

		if err := d.settle(ctx, campaignID, recipient.GetEmail(), entity.DeliveryStatusPending, ""); err != nil {
			log.Ctx(ctx).Error().Msgf("record delivery failed, campaign_id: %d, email: %s, err: %v",
				campaignID, recipient.GetEmail(), err)
		}

		recipient := recipient
		sem <- struct{}{}
		g.Go(func() error {
			defer func() {
				<-sem
			}()

			if err := d.sendOne(gctx, campaign, recipient, now); err != nil {
				failedCount.Add(1)
				log.Ctx(gctx).Error().Msgf("send failed, campaign_id: %d, email: %s, err: %v",
					campaignID, recipient.GetEmail(), err)

				if err := d.quotaGuard.Release(gctx, 1); err != nil {
					log.Ctx(gctx).Error().Msgf("release quota failed, err: %v", err)
				}
				if err := d.settle(gctx, campaignID, recipient.GetEmail(), entity.DeliveryStatusFailed, err.Error()); err != nil {
					log.Ctx(gctx).Error().Msgf("record delivery failed, campaign_id: %d, email: %s, err: %v",
						campaignID, recipient.GetEmail(), err)
				}
				return nil
			}

			sentCount.Add(1)
			if err := d.settle(gctx, campaignID, recipient.GetEmail(), entity.DeliveryStatusSent, ""); err != nil {
				log.Ctx(gctx).Error().Msgf("record delivery failed, campaign_id: %d, email: %s, err: %v",
					campaignID, recipient.GetEmail(), err)
			}
			return nil
		})

		if d.cfg.SendIntervalMs > 0 {
			time.Sleep(time.Duration(d.cfg.SendIntervalMs) * time.Millisecond)
		}
	}

	if err := g.Wait(); err != nil {
		return d.result(&sentCount, &failedCount, skippedCount), err
	}

	return d.result(&sentCount, &failedCount, skippedCount), nil
}

func (d *Dispatcher) result(sent, failed *atomic.Uint64, skipped uint64) *Result {
	return &Result{
		TotalSent:    sent.Load(),
		TotalFailed:  failed.Load(),
		TotalSkipped: skipped,
	}
}

func (d *Dispatcher) sendOne(ctx context.Context, campaign *entity.Campaign, recipient *entity.Customer, now time.Time) error {
	html := d.personalizer.Render(campaign.EffectiveHtml(), recipient, nil, now)
	subject := d.personalizer.Render(campaign.GetSubject(), recipient, nil, now)

	html, err := d.rewriter.Decorate(html, campaign.GetID(), recipient.GetEmail())
	if err != nil {
		return err
	}

	return d.emailService.SendEmail(ctx, &dep.SendEmail{
		CampaignID: campaign.GetID(),
		From: &dep.Sender{
			Email: d.sender.Email,
			Name:  d.sender.Name,
		},
		ReplyTo:  d.sender.ReplyTo,
		To:       recipient.GetEmail(),
		Subject:  subject,
		HtmlBody: html,
	})
}

func (d *Dispatcher) settle(ctx context.Context, campaignID uint64, email string, status entity.DeliveryStatus, errMsg string) error {
	delivery := &entity.Delivery{
		CampaignID: goutil.Uint64(campaignID),
		Email:      goutil.String(email),
		Status:     status,
		UpdateTime: goutil.Uint64(uint64(time.Now().Unix())),
	}

	if errMsg != "" {
		delivery.Error = goutil.String(errMsg)
	}
	if status == entity.DeliveryStatusSent {
		delivery.SendTime = goutil.Uint64(uint64(time.Now().Unix()))
	}

	return d.deliveryRepo.Upsert(ctx, delivery)
}

// finalize moves the campaign out of Sending: Paused or Cancelled when the
// run was flagged, Sent otherwise.
func (d *Dispatcher) finalize(ctx context.Context, campaignID uint64, runErr error) error {
	status := entity.CampaignStatusSent

	if sig, ok := d.signal(campaignID); ok {
		switch sig {
		case signalPause:
			status = entity.CampaignStatusPaused
		case signalCancel:
			status = entity.CampaignStatusCancelled
		}
	} else if runErr != nil {
		// The run aborted midway, leave the campaign resumable.
		status = entity.CampaignStatusPaused
	}

	if status == entity.CampaignStatusSent {
		// Sent means every delivery row settled. Stray pending rows, e.g.
		// a recipient dropped from the roster between runs, keep the
		// campaign resumable instead.
		pending, err := d.deliveryRepo.CountNonTerminal(ctx, campaignID)
		if err != nil {
			return err
		}
		if pending > 0 {
			status = entity.CampaignStatusPaused
		}
	}

	return d.campaignRepo.Update(ctx, &entity.Campaign{
		ID:         goutil.Uint64(campaignID),
		Status:     status,
		UpdateTime: goutil.Uint64(uint64(time.Now().Unix())),
	})
}

// SendTest sends the campaign content to the configured test inbox list
// with sample personalization values. No Delivery rows are written and the
// campaign state is untouched, test sends still consume quota.
func (d *Dispatcher) SendTest(ctx context.Context, campaign *entity.Campaign, emails []string) error {
	if campaign.GetSubject() == "" || campaign.EffectiveHtml() == "" {
		return ErrNothingToSend
	}
	if len(emails) == 0 {
		return errors.New("no test emails configured")
	}

	if err := d.quotaGuard.Reserve(ctx, uint64(len(emails))); err != nil {
		return err
	}

	now := time.Now()
	for _, email := range emails {
		sample := &entity.Customer{
			Name:   goutil.String("Mario Rossi"),
			Email:  goutil.String(email),
			Points: goutil.Uint64(350),
		}

		sendEmail := &dep.SendEmail{
			CampaignID: campaign.GetID(),
			From: &dep.Sender{
				Email: d.sender.Email,
				Name:  d.sender.Name,
			},
			ReplyTo:  d.sender.ReplyTo,
			To:       email,
			Subject:  fmt.Sprintf("[TEST] %s", d.personalizer.Render(campaign.GetSubject(), sample, nil, now)),
			HtmlBody: d.personalizer.Render(campaign.EffectiveHtml(), sample, nil, now),
		}

		if err := d.emailService.SendEmail(ctx, sendEmail); err != nil {
			if releaseErr := d.quotaGuard.Release(ctx, 1); releaseErr != nil {
				log.Ctx(ctx).Error().Msgf("release quota failed, err: %v", releaseErr)
			}
			return err
		}
	}

	return nil
}
