package repo

import (
	"context"
	"errors"
	"time"

	"fidelity/entity"
	"fidelity/pkg/goutil"

	"gorm.io/gorm"
)

var (
	ErrDeliveryNotFound = errors.New("delivery not found")
)

type Delivery struct {
	ID         *uint64
	CampaignID *uint64
	Email      *string
	Status     *uint32
	Error      *string
	SendTime   *uint64
	CreateTime *uint64
	UpdateTime *uint64
}

func (m *Delivery) TableName() string {
	return "delivery_tab"
}

func (m *Delivery) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

type DeliveryRepo interface {
	// Upsert creates the (campaign, recipient) row or overwrites a
	// non-sent one. A row with status sent is left untouched, it is
	// the idempotency anchor for resume.
	Upsert(ctx context.Context, delivery *entity.Delivery) error
	Get(ctx context.Context, campaignID uint64, email string) (*entity.Delivery, error)
	GetManyByCampaignID(ctx context.Context, campaignID uint64) ([]*entity.Delivery, error)
	GetSentEmails(ctx context.Context, campaignID uint64) (map[string]struct{}, error)
	CountByStatus(ctx context.Context, campaignID uint64, status entity.DeliveryStatus) (uint64, error)
	CountNonTerminal(ctx context.Context, campaignID uint64) (uint64, error)
}

type deliveryRepo struct {
	baseRepo BaseRepo
}

func NewDeliveryRepo(_ context.Context, baseRepo BaseRepo) DeliveryRepo {
	return &deliveryRepo{
		baseRepo: baseRepo,
	}
}

func (r *deliveryRepo) Upsert(ctx context.Context, delivery *entity.Delivery) error {
	return r.baseRepo.RunTx(ctx, func(ctx context.Context) error {
		existing := new(Delivery)
		err := r.baseRepo.Get(ctx, existing, &Filter{
			Conditions: r.recipientConditions(delivery.GetCampaignID(), delivery.GetEmail()),
		})

		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			deliveryModel := ToDeliveryModel(delivery)
			deliveryModel.CreateTime = goutil.Uint64(uint64(time.Now().Unix()))
			return r.baseRepo.Create(ctx, deliveryModel)
		}

		if existing.Status != nil && entity.DeliveryStatus(*existing.Status) == entity.DeliveryStatusSent {
			return nil
		}

		deliveryModel := ToDeliveryModel(delivery)
		deliveryModel.ID = existing.ID
		return r.baseRepo.Update(ctx, deliveryModel)
	})
}

func (r *deliveryRepo) Get(ctx context.Context, campaignID uint64, email string) (*entity.Delivery, error) {
	deliveryModel := new(Delivery)
	if err := r.baseRepo.Get(ctx, deliveryModel, &Filter{
		Conditions: r.recipientConditions(campaignID, email),
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeliveryNotFound
		}
		return nil, err
	}

	return ToDelivery(deliveryModel), nil
}

func (r *deliveryRepo) GetManyByCampaignID(ctx context.Context, campaignID uint64) ([]*entity.Delivery, error) {
	res, _, err := r.baseRepo.GetMany(ctx, new(Delivery), &Filter{
		Conditions: []*Condition{
			{Field: "campaign_id", Value: campaignID, Op: OpEq},
		},
		Pagination: &Pagination{Limit: goutil.Uint32(0)}, // no limit
	})
	if err != nil {
		return nil, err
	}

	deliveries := make([]*entity.Delivery, 0, len(res))
	for _, m := range res {
		deliveries = append(deliveries, ToDelivery(m.(*Delivery)))
	}

	return deliveries, nil
}

func (r *deliveryRepo) GetSentEmails(ctx context.Context, campaignID uint64) (map[string]struct{}, error) {
	res, _, err := r.baseRepo.GetMany(ctx, new(Delivery), &Filter{
		Conditions: []*Condition{
			{Field: "campaign_id", Value: campaignID, Op: OpEq, NextLogicalOp: And},
			{Field: "status", Value: uint32(entity.DeliveryStatusSent), Op: OpEq},
		},
		Pagination: &Pagination{Limit: goutil.Uint32(0)},
	})
	if err != nil {
		return nil, err
	}

	sent := make(map[string]struct{}, len(res))
	for _, m := range res {
		deliveryModel := m.(*Delivery)
		if deliveryModel.Email != nil {
			sent[*deliveryModel.Email] = struct{}{}
		}
	}

	return sent, nil
}

func (r *deliveryRepo) CountByStatus(ctx context.Context, campaignID uint64, status entity.DeliveryStatus) (uint64, error) {
	return r.baseRepo.Count(ctx, new(Delivery), &Filter{
		Conditions: []*Condition{
			{Field: "campaign_id", Value: campaignID, Op: OpEq, NextLogicalOp: And},
			{Field: "status", Value: uint32(status), Op: OpEq},
		},
	})
}

func (r *deliveryRepo) CountNonTerminal(ctx context.Context, campaignID uint64) (uint64, error) {
	return r.baseRepo.Count(ctx, new(Delivery), &Filter{
		Conditions: []*Condition{
			{Field: "campaign_id", Value: campaignID, Op: OpEq, NextLogicalOp: And},
			{Field: "status", Value: uint32(entity.DeliveryStatusPending), Op: OpEq},
		},
	})
}

func ToDelivery(deliveryModel *Delivery) *entity.Delivery {
	delivery := &entity.Delivery{
		ID:         deliveryModel.ID,
		CampaignID: deliveryModel.CampaignID,
		Email:      deliveryModel.Email,
		Error:      deliveryModel.Error,
		SendTime:   deliveryModel.SendTime,
		CreateTime: deliveryModel.CreateTime,
		UpdateTime: deliveryModel.UpdateTime,
	}

	if deliveryModel.Status != nil {
		delivery.Status = entity.DeliveryStatus(*deliveryModel.Status)
	}

	return delivery
}

func ToDeliveryModel(delivery *entity.Delivery) *Delivery {
	deliveryModel := &Delivery{
		ID:         delivery.ID,
		CampaignID: delivery.CampaignID,
		Email:      delivery.Email,
		Error:      delivery.Error,
		SendTime:   delivery.SendTime,
		UpdateTime: goutil.Uint64(uint64(time.Now().Unix())),
	}

	if delivery.Status != entity.DeliveryStatusUnknown {
		deliveryModel.Status = goutil.Uint32(uint32(delivery.Status))
	}

	return deliveryModel
}

func (r *deliveryRepo) recipientConditions(campaignID uint64, email string) []*Condition {
	return []*Condition{
		{Field: "campaign_id", Value: campaignID, Op: OpEq, NextLogicalOp: And},
		{Field: "email", Value: email, Op: OpEq},
	}
}
