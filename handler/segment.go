package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"fidelity/dispatch"
	"fidelity/entity"
	"fidelity/pkg/goutil"
)

type SegmentHandler interface {
	PreviewAudience(ctx context.Context, req *PreviewAudienceRequest, res *PreviewAudienceResponse) error
	CountAudience(ctx context.Context, req *CountAudienceRequest, res *CountAudienceResponse) error
}

type segmentHandler struct {
	resolver *dispatch.SegmentResolver
}

func NewSegmentHandler(resolver *dispatch.SegmentResolver) SegmentHandler {
	return &segmentHandler{
		resolver: resolver,
	}
}

type PreviewAudienceRequest struct {
	AudienceFilter *entity.SegmentRule `json:"audience_filter,omitempty"`
	Limit          *uint32             `json:"limit,omitempty"`
}

func (r *PreviewAudienceRequest) GetLimit() uint32 {
	if r != nil && r.Limit != nil {
		return *r.Limit
	}
	return 10
}

type PreviewAudienceResponse struct {
	Customers []*entity.Customer `json:"customers"`
	Count     *uint64            `json:"count,omitempty"`
}

// PreviewAudience shows the first few matching recipients plus the total,
// so a rule can be checked before scheduling.
func (h *segmentHandler) PreviewAudience(ctx context.Context, req *PreviewAudienceRequest, res *PreviewAudienceResponse) error {
	customers, err := h.resolver.Resolve(ctx, req.AudienceFilter)
	if err != nil {
		if errors.Is(err, dispatch.ErrEmptyAudience) {
			res.Customers = []*entity.Customer{}
			res.Count = goutil.Uint64(0)
			return nil
		}
		log.Ctx(ctx).Error().Msgf("resolve audience err: %v", err)
		return err
	}

	count := uint64(len(customers))
	if limit := int(req.GetLimit()); len(customers) > limit {
		customers = customers[:limit]
	}

	res.Customers = customers
	res.Count = goutil.Uint64(count)

	return nil
}

type CountAudienceRequest struct {
	AudienceFilter *entity.SegmentRule `json:"audience_filter,omitempty"`
}

type CountAudienceResponse struct {
	Count *uint64 `json:"count,omitempty"`
}

func (h *segmentHandler) CountAudience(ctx context.Context, req *CountAudienceRequest, res *CountAudienceResponse) error {
	count, err := h.resolver.Count(ctx, req.AudienceFilter)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("count audience err: %v", err)
		return err
	}

	res.Count = goutil.Uint64(count)

	return nil
}
