package entity

type CampaignStatus uint32

const (
	CampaignStatusUnknown CampaignStatus = iota
	CampaignStatusDraft
	CampaignStatusScheduled
	CampaignStatusSending
	CampaignStatusSent
	CampaignStatusPaused
	CampaignStatusCancelled
)

// campaignTransitions is the campaign state machine. Sent and Cancelled
// are terminal. Sending is re-entered from Paused on resume.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:     {CampaignStatusScheduled, CampaignStatusCancelled},
	CampaignStatusScheduled: {CampaignStatusSending, CampaignStatusCancelled},
	CampaignStatusSending:   {CampaignStatusSent, CampaignStatusPaused, CampaignStatusCancelled},
	CampaignStatusPaused:    {CampaignStatusSending, CampaignStatusCancelled},
}

func (s CampaignStatus) CanTransitionTo(to CampaignStatus) bool {
	for _, next := range campaignTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusSent || s == CampaignStatusCancelled
}

type ScheduleType uint32

const (
	ScheduleTypeUnknown ScheduleType = iota
	ScheduleTypeNow
	ScheduleTypeScheduled
)

type Campaign struct {
	ID             *uint64        `json:"id,omitempty"`
	Name           *string        `json:"name,omitempty"`
	Subject        *string        `json:"subject,omitempty"`
	Html           *string        `json:"html,omitempty"`
	TemplateHtml   *string        `json:"template_html,omitempty"`
	AudienceType   AudienceType   `json:"audience_type,omitempty"`
	AudienceFilter *SegmentRule   `json:"audience_filter,omitempty"`
	ScheduleType   ScheduleType   `json:"schedule_type,omitempty"`
	ScheduleTime   *uint64        `json:"schedule_time,omitempty"`
	Status         CampaignStatus `json:"status,omitempty"`
	TotalSent      *uint64        `json:"total_sent,omitempty"`
	TotalOpened    *uint64        `json:"total_opened,omitempty"`
	TotalClicked   *uint64        `json:"total_clicked,omitempty"`
	OpenRate       *float64       `json:"open_rate,omitempty"`
	ClickRate      *float64       `json:"click_rate,omitempty"`
	CreateTime     *uint64        `json:"create_time,omitempty"`
	UpdateTime     *uint64        `json:"update_time,omitempty"`
}

func (e *Campaign) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Campaign) GetName() string {
	if e != nil && e.Name != nil {
		return *e.Name
	}
	return ""
}

func (e *Campaign) GetSubject() string {
	if e != nil && e.Subject != nil {
		return *e.Subject
	}
	return ""
}

func (e *Campaign) GetHtml() string {
	if e != nil && e.Html != nil {
		return *e.Html
	}
	return ""
}

func (e *Campaign) GetTemplateHtml() string {
	if e != nil && e.TemplateHtml != nil {
		return *e.TemplateHtml
	}
	return ""
}

// EffectiveHtml returns the body to send. A bound template wins over
// freeform content when both are present.
func (e *Campaign) EffectiveHtml() string {
	if html := e.GetTemplateHtml(); html != "" {
		return html
	}
	return e.GetHtml()
}

func (e *Campaign) GetStatus() CampaignStatus {
	if e != nil {
		return e.Status
	}
	return CampaignStatusUnknown
}

func (e *Campaign) GetScheduleType() ScheduleType {
	if e != nil {
		return e.ScheduleType
	}
	return ScheduleTypeUnknown
}

func (e *Campaign) GetScheduleTime() uint64 {
	if e != nil && e.ScheduleTime != nil {
		return *e.ScheduleTime
	}
	return 0
}

func (e *Campaign) GetUpdateTime() uint64 {
	if e != nil && e.UpdateTime != nil {
		return *e.UpdateTime
	}
	return 0
}

func (e *Campaign) GetAudienceFilter() *SegmentRule {
	if e != nil && e.AudienceFilter != nil {
		return e.AudienceFilter
	}
	return nil
}

func (e *Campaign) GetTotalSent() uint64 {
	if e != nil && e.TotalSent != nil {
		return *e.TotalSent
	}
	return 0
}

func (e *Campaign) GetTotalOpened() uint64 {
	if e != nil && e.TotalOpened != nil {
		return *e.TotalOpened
	}
	return 0
}

func (e *Campaign) GetTotalClicked() uint64 {
	if e != nil && e.TotalClicked != nil {
		return *e.TotalClicked
	}
	return 0
}

func (e *Campaign) GetOpenRate() float64 {
	if e != nil && e.OpenRate != nil {
		return *e.OpenRate
	}
	return 0
}

func (e *Campaign) GetClickRate() float64 {
	if e != nil && e.ClickRate != nil {
		return *e.ClickRate
	}
	return 0
}

// Update copies the set fields of other into e.
func (e *Campaign) Update(other *Campaign) {
	if other == nil {
		return
	}

	if other.Name != nil {
		e.Name = other.Name
	}
	if other.Subject != nil {
		e.Subject = other.Subject
	}
	if other.Html != nil {
		e.Html = other.Html
	}
	if other.TemplateHtml != nil {
		e.TemplateHtml = other.TemplateHtml
	}
	if other.AudienceType != AudienceTypeUnknown {
		e.AudienceType = other.AudienceType
	}
	if other.AudienceFilter != nil {
		e.AudienceFilter = other.AudienceFilter
	}
	if other.ScheduleType != ScheduleTypeUnknown {
		e.ScheduleType = other.ScheduleType
	}
	if other.ScheduleTime != nil {
		e.ScheduleTime = other.ScheduleTime
	}
	if other.Status != CampaignStatusUnknown {
		e.Status = other.Status
	}
	if other.TotalSent != nil {
		e.TotalSent = other.TotalSent
	}
	if other.TotalOpened != nil {
		e.TotalOpened = other.TotalOpened
	}
	if other.TotalClicked != nil {
		e.TotalClicked = other.TotalClicked
	}
	if other.OpenRate != nil {
		e.OpenRate = other.OpenRate
	}
	if other.ClickRate != nil {
		e.ClickRate = other.ClickRate
	}
	if other.UpdateTime != nil {
		e.UpdateTime = other.UpdateTime
	}
}
