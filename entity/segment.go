package entity

import (
	"encoding/json"
)

type AudienceType uint32

const (
	AudienceTypeUnknown AudienceType = iota
	AudienceTypeAll
	AudienceTypeSegment
	AudienceTypeCustom
)

type RuleKind string

const (
	RuleKindAll     RuleKind = "all"
	RuleKindTier    RuleKind = "tier"
	RuleKindSpend   RuleKind = "spend"
	RuleKindRecency RuleKind = "recency"
	RuleKindCustom  RuleKind = "custom"
)

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

type SpendBucket string

const (
	SpendLow    SpendBucket = "low"
	SpendMedium SpendBucket = "medium"
	SpendHigh   SpendBucket = "high"
)

type RecencyBucket string

const (
	RecencyNew     RecencyBucket = "new"
	RecencyActive  RecencyBucket = "active"
	RecencyDormant RecencyBucket = "dormant"
)

// SegmentRule is a tagged variant: exactly one of the payload fields is
// meaningful for a given Kind. It is the only place segment identity is
// branched on, callers pass it as data.
type SegmentRule struct {
	Kind      RuleKind       `json:"kind,omitempty"`
	Tier      *Tier          `json:"tier,omitempty"`
	Spend     *SpendBucket   `json:"spend,omitempty"`
	Recency   *RecencyBucket `json:"recency,omitempty"`
	CustomIDs []uint64       `json:"custom_ids,omitempty"`
}

func (e *SegmentRule) GetKind() RuleKind {
	if e != nil {
		return e.Kind
	}
	return RuleKindAll
}

func (e *SegmentRule) GetTier() Tier {
	if e != nil && e.Tier != nil {
		return *e.Tier
	}
	return ""
}

func (e *SegmentRule) GetSpend() SpendBucket {
	if e != nil && e.Spend != nil {
		return *e.Spend
	}
	return ""
}

func (e *SegmentRule) GetRecency() RecencyBucket {
	if e != nil && e.Recency != nil {
		return *e.Recency
	}
	return ""
}

func (e *SegmentRule) GetCustomIDs() []uint64 {
	if e != nil {
		return e.CustomIDs
	}
	return nil
}

func (e *SegmentRule) ToString() (string, error) {
	if e == nil {
		return "{}", nil
	}

	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
