package entity

// Customer is a read-only roster snapshot row taken at segmentation time.
type Customer struct {
	ID               *uint64  `json:"id,omitempty"`
	Name             *string  `json:"name,omitempty"`
	Email            *string  `json:"email,omitempty"`
	Points           *uint64  `json:"points,omitempty"`
	TotalSpent       *float64 `json:"total_spent,omitempty"`
	CreateTime       *uint64  `json:"create_time,omitempty"`
	LastPurchaseTime *uint64  `json:"last_purchase_time,omitempty"`
}

func (e *Customer) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Customer) GetName() string {
	if e != nil && e.Name != nil {
		return *e.Name
	}
	return ""
}

func (e *Customer) GetEmail() string {
	if e != nil && e.Email != nil {
		return *e.Email
	}
	return ""
}

func (e *Customer) GetPoints() uint64 {
	if e != nil && e.Points != nil {
		return *e.Points
	}
	return 0
}

func (e *Customer) GetTotalSpent() float64 {
	if e != nil && e.TotalSpent != nil {
		return *e.TotalSpent
	}
	return 0
}

func (e *Customer) GetCreateTime() uint64 {
	if e != nil && e.CreateTime != nil {
		return *e.CreateTime
	}
	return 0
}

func (e *Customer) GetLastPurchaseTime() uint64 {
	if e != nil && e.LastPurchaseTime != nil {
		return *e.LastPurchaseTime
	}
	return 0
}
