package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"fidelity/config"
	"fidelity/dispatch"
	"fidelity/entity"
	"fidelity/pkg/errutil"
	"fidelity/pkg/goutil"
	"fidelity/pkg/mq"
	"fidelity/pkg/validator"
	"fidelity/repo"
)

type CampaignHandler interface {
	CreateCampaign(ctx context.Context, req *CreateCampaignRequest, res *CreateCampaignResponse) error
	UpdateCampaign(ctx context.Context, req *UpdateCampaignRequest, res *UpdateCampaignResponse) error
	GetCampaign(ctx context.Context, req *GetCampaignRequest, res *GetCampaignResponse) error
	GetCampaigns(ctx context.Context, req *GetCampaignsRequest, res *GetCampaignsResponse) error
	GetCampaignStats(ctx context.Context, req *GetCampaignStatsRequest, res *GetCampaignStatsResponse) error
	SendCampaign(ctx context.Context, req *SendCampaignRequest, res *SendCampaignResponse) error
	ResendCampaign(ctx context.Context, req *ResendCampaignRequest, res *ResendCampaignResponse) error
	PauseCampaign(ctx context.Context, req *PauseCampaignRequest, res *PauseCampaignResponse) error
	ResumeCampaign(ctx context.Context, req *ResumeCampaignRequest, res *ResumeCampaignResponse) error
	CancelCampaign(ctx context.Context, req *CancelCampaignRequest, res *CancelCampaignResponse) error
	SendTestEmail(ctx context.Context, req *SendTestEmailRequest, res *SendTestEmailResponse) error
	RecomputeCampaignStats(ctx context.Context, req *RecomputeCampaignStatsRequest, res *RecomputeCampaignStatsResponse) error
}

type campaignHandler struct {
	cfg          *config.Config
	campaignRepo repo.CampaignRepo
	deliveryRepo repo.DeliveryRepo
	dispatcher   *dispatch.Dispatcher
	stats        *dispatch.StatsAggregator
	producer     *mq.Producer
}

func NewCampaignHandler(
	cfg *config.Config,
	campaignRepo repo.CampaignRepo,
	deliveryRepo repo.DeliveryRepo,
	dispatcher *dispatch.Dispatcher,
	stats *dispatch.StatsAggregator,
	producer *mq.Producer,
) CampaignHandler {
	return &campaignHandler{
		cfg:          cfg,
		campaignRepo: campaignRepo,
		deliveryRepo: deliveryRepo,
		dispatcher:   dispatcher,
		stats:        stats,
		producer:     producer,
	}
}

type CreateCampaignRequest struct {
	Name           *string             `json:"name,omitempty"`
	Subject        *string             `json:"subject,omitempty"`
	Html           *string             `json:"html,omitempty"`
	TemplateHtml   *string             `json:"template_html,omitempty"`
	AudienceFilter *entity.SegmentRule `json:"audience_filter,omitempty"`
}

func (r *CreateCampaignRequest) GetName() string {
	if r != nil && r.Name != nil {
		return *r.Name
	}
	return ""
}

type CreateCampaignResponse struct {
	Campaign *entity.Campaign `json:"campaign,omitempty"`
}

var CreateCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"name":          &validator.String{UnsetZero: true, MaxLen: 120},
	"subject":       &validator.String{Optional: true, MaxLen: 255},
	"html":          &validator.String{Optional: true},
	"template_html": &validator.String{Optional: true},
})

func (h *campaignHandler) CreateCampaign(ctx context.Context, req *CreateCampaignRequest, res *CreateCampaignResponse) error {
	if err := CreateCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	now := uint64(time.Now().Unix())

	campaign := &entity.Campaign{
		Name:           req.Name,
		Subject:        req.Subject,
		Html:           req.Html,
		TemplateHtml:   req.TemplateHtml,
		AudienceType:   audienceTypeOf(req.AudienceFilter),
		AudienceFilter: req.AudienceFilter,
		ScheduleType:   entity.ScheduleTypeNow,
		Status:         entity.CampaignStatusDraft,
		TotalSent:      goutil.Uint64(0),
		TotalOpened:    goutil.Uint64(0),
		TotalClicked:   goutil.Uint64(0),
		CreateTime:     goutil.Uint64(now),
		UpdateTime:     goutil.Uint64(now),
	}

	id, err := h.campaignRepo.Create(ctx, campaign)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("create campaign err: %v", err)
		return err
	}

	campaign.ID = goutil.Uint64(id)
	res.Campaign = campaign

	return nil
}

func audienceTypeOf(rule *entity.SegmentRule) entity.AudienceType {
	switch rule.GetKind() {
	case entity.RuleKindAll:
		return entity.AudienceTypeAll
	case entity.RuleKindCustom:
		return entity.AudienceTypeCustom
	default:
		return entity.AudienceTypeSegment
	}
}

type UpdateCampaignRequest struct {
	CampaignID     *uint64             `json:"campaign_id,omitempty"`
	Name           *string             `json:"name,omitempty"`
	Subject        *string             `json:"subject,omitempty"`
	Html           *string             `json:"html,omitempty"`
	TemplateHtml   *string             `json:"template_html,omitempty"`
	AudienceFilter *entity.SegmentRule `json:"audience_filter,omitempty"`
}

func (r *UpdateCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type UpdateCampaignResponse struct {
	Campaign *entity.Campaign `json:"campaign,omitempty"`
}

var UpdateCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"campaign_id":   &validator.UInt64{},
	"name":          &validator.String{Optional: true, UnsetZero: true, MaxLen: 120},
	"subject":       &validator.String{Optional: true, MaxLen: 255},
	"html":          &validator.String{Optional: true},
	"template_html": &validator.String{Optional: true},
})

// UpdateCampaign edits campaign content. Only drafts are editable, a
// campaign past Draft has deliveries keyed to its content.
func (h *campaignHandler) UpdateCampaign(ctx context.Context, req *UpdateCampaignRequest, res *UpdateCampaignResponse) error {
	if err := UpdateCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.campaignRepo.GetByID(ctx, req.GetCampaignID())
	if err != nil {
		return h.campaignErr(ctx, err)
	}

	if campaign.GetStatus() != entity.CampaignStatusDraft {
		return errutil.ConflictError(fmt.Errorf("campaign is not a draft, status: %d", campaign.GetStatus()))
	}

	patch := &entity.Campaign{
		Name:         req.Name,
		Subject:      req.Subject,
		Html:         req.Html,
		TemplateHtml: req.TemplateHtml,
		UpdateTime:   goutil.Uint64(uint64(time.Now().Unix())),
	}
	if req.AudienceFilter != nil {
		patch.AudienceType = audienceTypeOf(req.AudienceFilter)
		patch.AudienceFilter = req.AudienceFilter
	}
	campaign.Update(patch)

	if err := h.campaignRepo.Update(ctx, campaign); err != nil {
		log.Ctx(ctx).Error().Msgf("update campaign err: %v", err)
		return err
	}

	res.Campaign = campaign

	return nil
}

type GetCampaignRequest struct {
	CampaignID *uint64 `json:"campaign_id,omitempty" schema:"campaign_id"`
}

func (r *GetCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type GetCampaignResponse struct {
	Campaign   *entity.Campaign   `json:"campaign,omitempty"`
	Deliveries []*entity.Delivery `json:"deliveries,omitempty"`
}

var GetCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"campaign_id": &validator.UInt64{},
})

func (h *campaignHandler) GetCampaign(ctx context.Context, req *GetCampaignRequest, res *GetCampaignResponse) error {
	if err := GetCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.campaignRepo.GetByID(ctx, req.GetCampaignID())
	if err != nil {
		return h.campaignErr(ctx, err)
	}

	// Refresh engagement counters on read so the detail view always
	// shows opens and clicks that arrived since the last recompute.
	if campaign.GetTotalSent() > 0 {
		refreshed, err := h.stats.Recompute(ctx, campaign.GetID())
		if err != nil {
			log.Ctx(ctx).Error().Msgf("recompute stats err: %v", err)
		} else {
			campaign.Update(refreshed)
		}
	}

	deliveries, err := h.deliveryRepo.GetManyByCampaignID(ctx, campaign.GetID())
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get deliveries err: %v", err)
		return err
	}

	res.Campaign = campaign
	res.Deliveries = deliveries

	return nil
}

type GetCampaignsRequest struct {
	Status     *uint32          `json:"status,omitempty" schema:"status"`
	Keyword    *string          `json:"keyword,omitempty" schema:"keyword"`
	Pagination *repo.Pagination `json:"pagination,omitempty"`
}

type GetCampaignsResponse struct {
	Campaigns  []*entity.Campaign `json:"campaigns"`
	Pagination *repo.Pagination   `json:"pagination,omitempty"`
}

var GetCampaignsValidator = validator.MustForm(map[string]validator.Validator{
	"status":  &validator.UInt64{Optional: true},
	"keyword": &validator.String{Optional: true, MaxLen: 120},
})

func (h *campaignHandler) GetCampaigns(ctx context.Context, req *GetCampaignsRequest, res *GetCampaignsResponse) error {
	campaigns, pagination, err := h.campaignRepo.GetMany(ctx, &repo.CampaignFilter{
		Status:  req.Status,
		Keyword: req.Keyword,
	}, req.Pagination)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get campaigns err: %v", err)
		return err
	}

	// Refresh engagement counters for campaigns with sends, paused and
	// partially sent ones included, so the list never shows stale rates.
	h.stats.RefreshMany(ctx, campaigns)

	res.Campaigns = campaigns
	res.Pagination = pagination

	return nil
}

type RecomputeCampaignStatsRequest struct {
	CampaignID *uint64 `json:"campaign_id,omitempty"`
}

func (r *RecomputeCampaignStatsRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type RecomputeCampaignStatsResponse struct {
	Campaign *entity.Campaign `json:"campaign,omitempty"`
}

var RecomputeCampaignStatsValidator = validator.MustForm(map[string]validator.Validator{
	"campaign_id": &validator.UInt64{},
})

// RecomputeCampaignStats backs the manual refresh button on the campaign
// dashboard.
func (h *campaignHandler) RecomputeCampaignStats(ctx context.Context, req *RecomputeCampaignStatsRequest, res *RecomputeCampaignStatsResponse) error {
	if err := RecomputeCampaignStatsValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.campaignRepo.GetByID(ctx, req.GetCampaignID())
	if err != nil {
		return h.campaignErr(ctx, err)
	}

	refreshed, err := h.stats.Recompute(ctx, campaign.GetID())
	if err != nil {
		log.Ctx(ctx).Error().Msgf("recompute stats err: %v", err)
		return err
	}
	campaign.Update(refreshed)

	res.Campaign = campaign

	return nil
}

type GetCampaignStatsRequest struct{}

type GetCampaignStatsResponse struct {
	TotalCampaigns *uint64  `json:"total_campaigns,omitempty"`
	SentCampaigns  *uint64  `json:"sent_campaigns,omitempty"`
	TotalEmails    *uint64  `json:"total_emails,omitempty"`
	AvgOpenRate    *float64 `json:"avg_open_rate,omitempty"`
}

// GetCampaignStats feeds the dashboard header cards.
func (h *campaignHandler) GetCampaignStats(ctx context.Context, _ *GetCampaignStatsRequest, res *GetCampaignStatsResponse) error {
	total, err := h.campaignRepo.Count(ctx)
	if err != nil {
		return err
	}

	sent, err := h.campaignRepo.CountByStatus(ctx, entity.CampaignStatusSent)
	if err != nil {
		return err
	}

	totalEmails, err := h.campaignRepo.SumTotalSent(ctx)
	if err != nil {
		return err
	}

	avgOpenRate, err := h.campaignRepo.AvgOpenRate(ctx)
	if err != nil {
		return err
	}

	res.TotalCampaigns = goutil.Uint64(total)
	res.SentCampaigns = goutil.Uint64(sent)
	res.TotalEmails = goutil.Uint64(totalEmails)
	res.AvgOpenRate = goutil.Float64(avgOpenRate)

	return nil
}

type SendCampaignRequest struct {
	CampaignID   *uint64 `json:"campaign_id,omitempty"`
	ScheduleTime *uint64 `json:"schedule_time,omitempty"`
}

func (r *SendCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

func (r *SendCampaignRequest) GetScheduleTime() uint64 {
	if r != nil && r.ScheduleTime != nil {
		return *r.ScheduleTime
	}
	return 0
}

type SendCampaignResponse struct {
	Campaign *entity.Campaign `json:"campaign,omitempty"`
}

var SendCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"campaign_id":   &validator.UInt64{},
	"schedule_time": &validator.UInt64{Optional: true},
})

// SendCampaign schedules a draft. A schedule time in the past or absent
// means now: the dispatch message goes out immediately. A future time is
// left for the due-campaign scan to pick up.
func (h *campaignHandler) SendCampaign(ctx context.Context, req *SendCampaignRequest, res *SendCampaignResponse) error {
	if err := SendCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.campaignRepo.GetByID(ctx, req.GetCampaignID())
	if err != nil {
		return h.campaignErr(ctx, err)
	}

	if !campaign.GetStatus().CanTransitionTo(entity.CampaignStatusScheduled) {
		return errutil.ConflictError(fmt.Errorf("campaign cannot be sent, status: %d", campaign.GetStatus()))
	}

	if campaign.GetSubject() == "" || campaign.EffectiveHtml() == "" {
		return errutil.BadRequestError(dispatch.ErrNothingToSend)
	}

	var (
		now          = uint64(time.Now().Unix())
		scheduleTime = req.GetScheduleTime()
		scheduleType = entity.ScheduleTypeNow
	)
	if scheduleTime > now {
		scheduleType = entity.ScheduleTypeScheduled
	} else {
		scheduleTime = now
	}

	campaign.Update(&entity.Campaign{
		Status:       entity.CampaignStatusScheduled,
		ScheduleType: scheduleType,
		ScheduleTime: goutil.Uint64(scheduleTime),
		UpdateTime:   goutil.Uint64(now),
	})

	if err := h.campaignRepo.Update(ctx, campaign); err != nil {
		log.Ctx(ctx).Error().Msgf("update campaign err: %v", err)
		return err
	}

	if scheduleType == entity.ScheduleTypeNow {
		if err := h.publishDispatch(campaign.GetID(), false); err != nil {
			log.Ctx(ctx).Error().Msgf("publish dispatch err: %v", err)
			return err
		}
	}

	res.Campaign = campaign

	return nil
}

type ResendCampaignRequest struct {
	CampaignID *uint64 `json:"campaign_id,omitempty"`
}

func (r *ResendCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type ResendCampaignResponse struct{}

var ResendCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"campaign_id": &validator.UInt64{},
})

// ResendCampaign re-runs a finished campaign for its failed and pending
// recipients. Recipients with a sent delivery are never contacted again.
func (h *campaignHandler) ResendCampaign(ctx context.Context, req *ResendCampaignRequest, res *ResendCampaignResponse) error {
	if err := ResendCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.campaignRepo.GetByID(ctx, req.GetCampaignID())
	if err != nil {
		return h.campaignErr(ctx, err)
	}

	status := campaign.GetStatus()
	if status != entity.CampaignStatusSent && status != entity.CampaignStatusPaused {
		return errutil.ConflictError(fmt.Errorf("campaign cannot be resent, status: %d", status))
	}

	if err := h.publishDispatch(campaign.GetID(), true); err != nil {
		log.Ctx(ctx).Error().Msgf("publish dispatch err: %v", err)
		return err
	}

	return nil
}

type PauseCampaignRequest struct {
	CampaignID *uint64 `json:"campaign_id,omitempty"`
}

func (r *PauseCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type PauseCampaignResponse struct{}

var PauseCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"campaign_id": &validator.UInt64{},
})

func (h *campaignHandler) PauseCampaign(ctx context.Context, req *PauseCampaignRequest, res *PauseCampaignResponse) error {
	if err := PauseCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.campaignRepo.GetByID(ctx, req.GetCampaignID())
	if err != nil {
		return h.campaignErr(ctx, err)
	}

	if !campaign.GetStatus().CanTransitionTo(entity.CampaignStatusPaused) {
		return errutil.ConflictError(fmt.Errorf("campaign cannot be paused, status: %d", campaign.GetStatus()))
	}

	// The running dispatch sees the flag between recipients and writes
	// the paused status itself when it stops.
	h.dispatcher.Pause(campaign.GetID())

	return nil
}

type ResumeCampaignRequest struct {
	CampaignID *uint64 `json:"campaign_id,omitempty"`
}

func (r *ResumeCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type ResumeCampaignResponse struct{}

var ResumeCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"campaign_id": &validator.UInt64{},
})

func (h *campaignHandler) ResumeCampaign(ctx context.Context, req *ResumeCampaignRequest, res *ResumeCampaignResponse) error {
	if err := ResumeCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.campaignRepo.GetByID(ctx, req.GetCampaignID())
	if err != nil {
		return h.campaignErr(ctx, err)
	}

	if campaign.GetStatus() != entity.CampaignStatusPaused {
		return errutil.ConflictError(fmt.Errorf("campaign is not paused, status: %d", campaign.GetStatus()))
	}

	// The resend flag marks the dispatch as user-triggered. The dispatcher
	// refuses to pick up a paused campaign without it.
	if err := h.publishDispatch(campaign.GetID(), true); err != nil {
		log.Ctx(ctx).Error().Msgf("publish dispatch err: %v", err)
		return err
	}

	return nil
}

type CancelCampaignRequest struct {
	CampaignID *uint64 `json:"campaign_id,omitempty"`
}

func (r *CancelCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type CancelCampaignResponse struct{}

var CancelCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"campaign_id": &validator.UInt64{},
})

func (h *campaignHandler) CancelCampaign(ctx context.Context, req *CancelCampaignRequest, res *CancelCampaignResponse) error {
	if err := CancelCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.campaignRepo.GetByID(ctx, req.GetCampaignID())
	if err != nil {
		return h.campaignErr(ctx, err)
	}

	if !campaign.GetStatus().CanTransitionTo(entity.CampaignStatusCancelled) {
		return errutil.ConflictError(fmt.Errorf("campaign cannot be cancelled, status: %d", campaign.GetStatus()))
	}

	// Flag a running dispatch first so no further sends go out, then
	// settle the status for campaigns with no run in flight.
	h.dispatcher.Cancel(campaign.GetID())

	if campaign.GetStatus() != entity.CampaignStatusSending {
		if err := h.campaignRepo.Update(ctx, &entity.Campaign{
			ID:         goutil.Uint64(campaign.GetID()),
			Status:     entity.CampaignStatusCancelled,
			UpdateTime: goutil.Uint64(uint64(time.Now().Unix())),
		}); err != nil {
			log.Ctx(ctx).Error().Msgf("update campaign err: %v", err)
			return err
		}
	}

	return nil
}

type SendTestEmailRequest struct {
	CampaignID *uint64  `json:"campaign_id,omitempty"`
	Emails     []string `json:"emails,omitempty"`
}

func (r *SendTestEmailRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type SendTestEmailResponse struct{}

var SendTestEmailValidator = validator.MustForm(map[string]validator.Validator{
	"campaign_id": &validator.UInt64{},
	"emails": &validator.Slice{
		Optional:  true,
		MaxLen:    5,
		Validator: &validator.String{UnsetZero: true, MaxLen: 255},
	},
})

func (h *campaignHandler) SendTestEmail(ctx context.Context, req *SendTestEmailRequest, res *SendTestEmailResponse) error {
	if err := SendTestEmailValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.campaignRepo.GetByID(ctx, req.GetCampaignID())
	if err != nil {
		return h.campaignErr(ctx, err)
	}

	emails := req.Emails
	if len(emails) == 0 {
		emails = h.cfg.TestEmails
	}

	if err := h.dispatcher.SendTest(ctx, campaign, emails); err != nil {
		log.Ctx(ctx).Error().Msgf("send test email err: %v", err)
		if errors.Is(err, dispatch.ErrQuotaExceeded) {
			return errutil.ConflictError(err)
		}
		return err
	}

	return nil
}

func (h *campaignHandler) publishDispatch(campaignID uint64, resend bool) error {
	return h.producer.SendMessage(&mq.Message{
		Payload: mq.PayloadDispatchCampaign,
		Key:     fmt.Sprintf("%d", campaignID),
		Body: &mq.DispatchCampaign{
			CampaignID: goutil.Uint64(campaignID),
			Resend:     goutil.Bool(resend),
		},
	})
}

func (h *campaignHandler) campaignErr(ctx context.Context, err error) error {
	if errors.Is(err, repo.ErrCampaignNotFound) {
		return errutil.NotFoundError(err)
	}
	log.Ctx(ctx).Error().Msgf("get campaign err: %v", err)
	return err
}
