package entity

type Event uint32

const (
	EventUnknown Event = iota
	EventOpen
	EventClick
)

var SupportedEvents = map[string]Event{
	"open":  EventOpen,
	"click": EventClick,
}

// TrackingEvent is append-only, never updated.
type TrackingEvent struct {
	ID         *uint64 `json:"id,omitempty"`
	CampaignID *uint64 `json:"campaign_id,omitempty"`
	Email      *string `json:"email,omitempty"`
	Event      Event   `json:"event,omitempty"`
	Link       *string `json:"link,omitempty"`
	UserAgent  *string `json:"user_agent,omitempty"`
	ClientIP   *string `json:"client_ip,omitempty"`
	EventTime  *uint64 `json:"event_time,omitempty"`
	CreateTime *uint64 `json:"create_time,omitempty"`
}

func (e *TrackingEvent) GetCampaignID() uint64 {
	if e != nil && e.CampaignID != nil {
		return *e.CampaignID
	}
	return 0
}

func (e *TrackingEvent) GetEmail() string {
	if e != nil && e.Email != nil {
		return *e.Email
	}
	return ""
}

func (e *TrackingEvent) GetEvent() Event {
	if e != nil {
		return e.Event
	}
	return EventUnknown
}

func (e *TrackingEvent) GetLink() string {
	if e != nil && e.Link != nil {
		return *e.Link
	}
	return ""
}
