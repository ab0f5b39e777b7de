package handler

import (
	"context"

	"github.com/rs/zerolog/log"

	"fidelity/dispatch"
	"fidelity/entity"
)

type QuotaHandler interface {
	GetQuotaUsage(ctx context.Context, req *GetQuotaUsageRequest, res *GetQuotaUsageResponse) error
}

type quotaHandler struct {
	quotaGuard *dispatch.QuotaGuard
}

func NewQuotaHandler(quotaGuard *dispatch.QuotaGuard) QuotaHandler {
	return &quotaHandler{
		quotaGuard: quotaGuard,
	}
}

type GetQuotaUsageRequest struct{}

type GetQuotaUsageResponse struct {
	Daily      *entity.QuotaUsage      `json:"daily,omitempty"`
	Monthly    *entity.QuotaUsage      `json:"monthly,omitempty"`
	Projection *entity.QuotaProjection `json:"projection,omitempty"`
}

func (h *quotaHandler) GetQuotaUsage(ctx context.Context, _ *GetQuotaUsageRequest, res *GetQuotaUsageResponse) error {
	daily, err := h.quotaGuard.Usage(ctx, entity.QuotaPeriodDaily)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get daily quota usage err: %v", err)
		return err
	}

	monthly, err := h.quotaGuard.Usage(ctx, entity.QuotaPeriodMonthly)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get monthly quota usage err: %v", err)
		return err
	}

	projection, err := h.quotaGuard.Projection(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get quota projection err: %v", err)
		return err
	}

	res.Daily = daily
	res.Monthly = monthly
	res.Projection = projection

	return nil
}
