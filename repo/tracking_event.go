package repo

import (
	"context"

	"fidelity/entity"
	"fidelity/pkg/goutil"
)

type TrackingEvent struct {
	ID         *uint64
	CampaignID *uint64
	Email      *string
	Event      *uint32
	Link       *string
	UserAgent  *string
	ClientIP   *string
	EventTime  *uint64
	CreateTime *uint64
}

func (m *TrackingEvent) TableName() string {
	return "tracking_event_tab"
}

type TrackingEventRepo interface {
	Create(ctx context.Context, event *entity.TrackingEvent) error
	// CountDistinctEmails counts unique recipients per event type, the
	// figure behind total_opened / total_clicked.
	CountDistinctEmails(ctx context.Context, campaignID uint64, event entity.Event) (uint64, error)
	GetManyByCampaignID(ctx context.Context, campaignID uint64, event entity.Event) ([]*entity.TrackingEvent, error)
}

type trackingEventRepo struct {
	baseRepo BaseRepo
}

func NewTrackingEventRepo(_ context.Context, baseRepo BaseRepo) TrackingEventRepo {
	return &trackingEventRepo{
		baseRepo: baseRepo,
	}
}

func (r *trackingEventRepo) Create(ctx context.Context, event *entity.TrackingEvent) error {
	return r.baseRepo.Create(ctx, ToTrackingEventModel(event))
}

func (r *trackingEventRepo) CountDistinctEmails(ctx context.Context, campaignID uint64, event entity.Event) (uint64, error) {
	return r.baseRepo.CountDistinct(ctx, new(TrackingEvent), "email", &Filter{
		Conditions: r.eventConditions(campaignID, event),
	})
}

func (r *trackingEventRepo) GetManyByCampaignID(ctx context.Context, campaignID uint64, event entity.Event) ([]*entity.TrackingEvent, error) {
	res, _, err := r.baseRepo.GetMany(ctx, new(TrackingEvent), &Filter{
		Conditions: r.eventConditions(campaignID, event),
		Pagination: &Pagination{Limit: goutil.Uint32(0)}, // no limit
	})
	if err != nil {
		return nil, err
	}

	events := make([]*entity.TrackingEvent, 0, len(res))
	for _, m := range res {
		events = append(events, ToTrackingEvent(m.(*TrackingEvent)))
	}

	return events, nil
}

func (r *trackingEventRepo) eventConditions(campaignID uint64, event entity.Event) []*Condition {
	return []*Condition{
		{Field: "campaign_id", Value: campaignID, Op: OpEq, NextLogicalOp: And},
		{Field: "event", Value: uint32(event), Op: OpEq},
	}
}

func ToTrackingEvent(eventModel *TrackingEvent) *entity.TrackingEvent {
	event := &entity.TrackingEvent{
		ID:         eventModel.ID,
		CampaignID: eventModel.CampaignID,
		Email:      eventModel.Email,
		Link:       eventModel.Link,
		UserAgent:  eventModel.UserAgent,
		ClientIP:   eventModel.ClientIP,
		EventTime:  eventModel.EventTime,
		CreateTime: eventModel.CreateTime,
	}

	if eventModel.Event != nil {
		event.Event = entity.Event(*eventModel.Event)
	}

	return event
}

func ToTrackingEventModel(event *entity.TrackingEvent) *TrackingEvent {
	return &TrackingEvent{
		CampaignID: event.CampaignID,
		Email:      event.Email,
		Event:      goutil.Uint32(uint32(event.GetEvent())),
		Link:       event.Link,
		UserAgent:  event.UserAgent,
		ClientIP:   event.ClientIP,
		EventTime:  event.EventTime,
		CreateTime: event.CreateTime,
	}
}
