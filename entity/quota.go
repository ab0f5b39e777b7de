package entity

type QuotaPeriod uint32

const (
	QuotaPeriodUnknown QuotaPeriod = iota
	QuotaPeriodDaily
	QuotaPeriodMonthly
)

// QuotaCounter is the durable send counter for one period window.
// The counter is shared by every campaign of the tenant, so increments
// must go through an atomic check-and-reserve.
type QuotaCounter struct {
	ID          *uint64     `json:"id,omitempty"`
	Period      QuotaPeriod `json:"period,omitempty"`
	WindowStart *uint64     `json:"window_start,omitempty"`
	Used        *uint64     `json:"used,omitempty"`
	Limit       *uint64     `json:"limit,omitempty"`
	CreateTime  *uint64     `json:"create_time,omitempty"`
	UpdateTime  *uint64     `json:"update_time,omitempty"`
}

func (e *QuotaCounter) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *QuotaCounter) GetPeriod() QuotaPeriod {
	if e != nil {
		return e.Period
	}
	return QuotaPeriodUnknown
}

func (e *QuotaCounter) GetWindowStart() uint64 {
	if e != nil && e.WindowStart != nil {
		return *e.WindowStart
	}
	return 0
}

func (e *QuotaCounter) GetUsed() uint64 {
	if e != nil && e.Used != nil {
		return *e.Used
	}
	return 0
}

func (e *QuotaCounter) GetLimit() uint64 {
	if e != nil && e.Limit != nil {
		return *e.Limit
	}
	return 0
}

type QuotaStatus string

const (
	QuotaStatusNormal   QuotaStatus = "normal"
	QuotaStatusWarning  QuotaStatus = "warning"
	QuotaStatusCritical QuotaStatus = "critical"
)

// QuotaUsage is a read-only snapshot handed to the UI.
type QuotaUsage struct {
	Period     QuotaPeriod `json:"period,omitempty"`
	Used       *uint64     `json:"used,omitempty"`
	Limit      *uint64     `json:"limit,omitempty"`
	Remaining  *uint64     `json:"remaining,omitempty"`
	Percentage *float64    `json:"percentage,omitempty"`
	Status     QuotaStatus `json:"status,omitempty"`
}

func (e *QuotaUsage) GetUsed() uint64 {
	if e != nil && e.Used != nil {
		return *e.Used
	}
	return 0
}

func (e *QuotaUsage) GetLimit() uint64 {
	if e != nil && e.Limit != nil {
		return *e.Limit
	}
	return 0
}

func (e *QuotaUsage) GetRemaining() uint64 {
	if e != nil && e.Remaining != nil {
		return *e.Remaining
	}
	return 0
}

func (e *QuotaUsage) GetPercentage() float64 {
	if e != nil && e.Percentage != nil {
		return *e.Percentage
	}
	return 0
}

// QuotaProjection extrapolates the month's usage from the average
// daily rate so far.
type QuotaProjection struct {
	AvgPerDay           *float64 `json:"avg_per_day,omitempty"`
	ProjectedEndOfMonth *float64 `json:"projected_end_of_month,omitempty"`
	WillExceed          *bool    `json:"will_exceed,omitempty"`
	DaysToLimit         *float64 `json:"days_to_limit,omitempty"`
}

func (e *QuotaProjection) GetAvgPerDay() float64 {
	if e != nil && e.AvgPerDay != nil {
		return *e.AvgPerDay
	}
	return 0
}

func (e *QuotaProjection) GetProjectedEndOfMonth() float64 {
	if e != nil && e.ProjectedEndOfMonth != nil {
		return *e.ProjectedEndOfMonth
	}
	return 0
}

func (e *QuotaProjection) GetWillExceed() bool {
	if e != nil && e.WillExceed != nil {
		return *e.WillExceed
	}
	return false
}
