package mq

type Payload uint32

const (
	PayloadUnknown Payload = iota
	PayloadDispatchCampaign
)

var Payloads = map[Payload]string{
	PayloadDispatchCampaign: "dispatch_campaign",
}

// DispatchCampaign asks the dispatch worker to run one campaign send.
type DispatchCampaign struct {
	CampaignID *uint64 `json:"campaign_id"`
	Resend     *bool   `json:"resend,omitempty"`
}

func (m *DispatchCampaign) GetCampaignID() uint64 {
	if m != nil && m.CampaignID != nil {
		return *m.CampaignID
	}
	return 0
}

func (m *DispatchCampaign) GetResend() bool {
	if m != nil && m.Resend != nil {
		return *m.Resend
	}
	return false
}
