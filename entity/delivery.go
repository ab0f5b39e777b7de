package entity

type DeliveryStatus uint32

const (
	DeliveryStatusUnknown DeliveryStatus = iota
	DeliveryStatusPending
	DeliveryStatusSent
	DeliveryStatusFailed
)

// Delivery records one send attempt per (campaign, recipient).
// A row is immutable once its status is Sent, which makes resume
// after a crash or pause exact.
type Delivery struct {
	ID         *uint64        `json:"id,omitempty"`
	CampaignID *uint64        `json:"campaign_id,omitempty"`
	Email      *string        `json:"email,omitempty"`
	Status     DeliveryStatus `json:"status,omitempty"`
	Error      *string        `json:"error,omitempty"`
	SendTime   *uint64        `json:"send_time,omitempty"`
	CreateTime *uint64        `json:"create_time,omitempty"`
	UpdateTime *uint64        `json:"update_time,omitempty"`
}

func (e *Delivery) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Delivery) GetCampaignID() uint64 {
	if e != nil && e.CampaignID != nil {
		return *e.CampaignID
	}
	return 0
}

func (e *Delivery) GetEmail() string {
	if e != nil && e.Email != nil {
		return *e.Email
	}
	return ""
}

func (e *Delivery) GetStatus() DeliveryStatus {
	if e != nil {
		return e.Status
	}
	return DeliveryStatusUnknown
}

func (e *Delivery) GetError() string {
	if e != nil && e.Error != nil {
		return *e.Error
	}
	return ""
}

func (e *Delivery) GetSendTime() uint64 {
	if e != nil && e.SendTime != nil {
		return *e.SendTime
	}
	return 0
}

func (e *Delivery) IsTerminal() bool {
	return e.GetStatus() == DeliveryStatusSent || e.GetStatus() == DeliveryStatusFailed
}
