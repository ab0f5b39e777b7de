package dispatch

import (
	"context"
	"errors"
	"time"

	"fidelity/entity"
	"fidelity/repo"
)

var ErrEmptyAudience = errors.New("audience resolves to zero recipients")

// SegmentResolver turns a campaign audience rule into the concrete list of
// recipients. Resolution works on a roster snapshot, so one campaign sees a
// consistent view even while the loyalty backend keeps writing.
type SegmentResolver struct {
	customerRepo repo.CustomerRepo
	classifier   *Classifier
}

func NewSegmentResolver(customerRepo repo.CustomerRepo, classifier *Classifier) *SegmentResolver {
	return &SegmentResolver{
		customerRepo: customerRepo,
		classifier:   classifier,
	}
}

// Resolve returns the deduplicated recipients matching the rule, ordered by
// customer ID. A nil rule means everyone. Returns ErrEmptyAudience when no
// customer matches.
func (s *SegmentResolver) Resolve(ctx context.Context, rule *entity.SegmentRule) ([]*entity.Customer, error) {
	var (
		customers []*entity.Customer
		err       error
	)

	if rule.GetKind() == entity.RuleKindCustom {
		customers, err = s.customerRepo.GetByIDs(ctx, rule.GetCustomIDs())
	} else {
		customers, err = s.customerRepo.GetAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()

	matched := make([]*entity.Customer, 0, len(customers))
	seen := make(map[uint64]struct{}, len(customers))
	for _, customer := range customers {
		if customer.GetEmail() == "" {
			continue
		}
		if _, ok := seen[customer.GetID()]; ok {
			continue
		}
		if !s.matches(customer, rule, now) {
			continue
		}
		seen[customer.GetID()] = struct{}{}
		matched = append(matched, customer)
	}

	if len(matched) == 0 {
		return nil, ErrEmptyAudience
	}

	return matched, nil
}

// Count is Resolve without the recipients. An empty audience counts as
// zero, not an error, so previews can show it.
func (s *SegmentResolver) Count(ctx context.Context, rule *entity.SegmentRule) (uint64, error) {
	customers, err := s.Resolve(ctx, rule)
	if err != nil {
		if errors.Is(err, ErrEmptyAudience) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(len(customers)), nil
}

func (s *SegmentResolver) matches(customer *entity.Customer, rule *entity.SegmentRule, now time.Time) bool {
	switch rule.GetKind() {
	case entity.RuleKindAll:
		return true
	case entity.RuleKindTier:
		return s.classifier.Tier(customer.GetPoints()) == rule.GetTier()
	case entity.RuleKindSpend:
		return s.classifier.SpendBucket(customer.GetTotalSpent()) == rule.GetSpend()
	case entity.RuleKindRecency:
		return s.classifier.Recency(customer, now) == rule.GetRecency()
	case entity.RuleKindCustom:
		// GetByIDs already restricted the roster to the requested IDs.
		return true
	default:
		return false
	}
}
