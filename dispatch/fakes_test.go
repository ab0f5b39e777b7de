package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fidelity/dep"
	"fidelity/entity"
	"fidelity/pkg/goutil"
	"fidelity/repo"
)

type fakeCustomerRepo struct {
	customers []*entity.Customer
}

func (r *fakeCustomerRepo) GetAll(_ context.Context) ([]*entity.Customer, error) {
	return r.customers, nil
}

func (r *fakeCustomerRepo) GetByIDs(_ context.Context, ids []uint64) ([]*entity.Customer, error) {
	matched := make([]*entity.Customer, 0)
	for _, customer := range r.customers {
		if goutil.ContainsUint64(ids, customer.GetID()) {
			matched = append(matched, customer)
		}
	}
	return matched, nil
}

func (r *fakeCustomerRepo) Close(_ context.Context) error {
	return nil
}

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[uint64]*entity.Campaign
	nextID    uint64
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns: make(map[uint64]*entity.Campaign),
		nextID:    1,
	}
}

func (r *fakeCampaignRepo) Create(_ context.Context, campaign *entity.Campaign) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	campaign.ID = goutil.Uint64(id)
	r.campaigns[id] = campaign
	return id, nil
}

func (r *fakeCampaignRepo) GetByID(_ context.Context, id uint64) (*entity.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return nil, repo.ErrCampaignNotFound
	}
	clone := *campaign
	return &clone, nil
}

func (r *fakeCampaignRepo) GetMany(_ context.Context, f *repo.CampaignFilter, p *repo.Pagination) ([]*entity.Campaign, *repo.Pagination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaigns := make([]*entity.Campaign, 0)
	for _, campaign := range r.campaigns {
		if f != nil && f.Status != nil && uint32(campaign.GetStatus()) != *f.Status {
			continue
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, p, nil
}

func (r *fakeCampaignRepo) GetDue(_ context.Context, now, stuckBefore uint64) ([]*entity.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaigns := make([]*entity.Campaign, 0)
	for _, campaign := range r.campaigns {
		due := campaign.GetStatus() == entity.CampaignStatusScheduled && campaign.GetScheduleTime() <= now
		stuck := campaign.GetStatus() == entity.CampaignStatusSending && campaign.GetUpdateTime() < stuckBefore
		if due || stuck {
			campaigns = append(campaigns, campaign)
		}
	}
	return campaigns, nil
}

func (r *fakeCampaignRepo) Update(_ context.Context, patch *entity.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[patch.GetID()]
	if !ok {
		return repo.ErrCampaignNotFound
	}
	campaign.Update(patch)
	return nil
}

func (r *fakeCampaignRepo) CountByStatus(_ context.Context, status entity.CampaignStatus) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count uint64
	for _, campaign := range r.campaigns {
		if campaign.GetStatus() == status {
			count++
		}
	}
	return count, nil
}

func (r *fakeCampaignRepo) Count(_ context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.campaigns)), nil
}

func (r *fakeCampaignRepo) SumTotalSent(_ context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum uint64
	for _, campaign := range r.campaigns {
		sum += campaign.GetTotalSent()
	}
	return sum, nil
}

func (r *fakeCampaignRepo) AvgOpenRate(_ context.Context) (float64, error) {
	return 0, nil
}

func (r *fakeCampaignRepo) Close(_ context.Context) error {
	return nil
}

type fakeDeliveryRepo struct {
	mu         sync.Mutex
	deliveries map[string]*entity.Delivery
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{
		deliveries: make(map[string]*entity.Delivery),
	}
}

func deliveryKey(campaignID uint64, email string) string {
	return fmt.Sprintf("%d:%s", campaignID, email)
}

func (r *fakeDeliveryRepo) Upsert(_ context.Context, delivery *entity.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := deliveryKey(delivery.GetCampaignID(), delivery.GetEmail())
	if existing, ok := r.deliveries[key]; ok && existing.GetStatus() == entity.DeliveryStatusSent {
		return nil
	}
	r.deliveries[key] = delivery
	return nil
}

func (r *fakeDeliveryRepo) Get(_ context.Context, campaignID uint64, email string) (*entity.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivery, ok := r.deliveries[deliveryKey(campaignID, email)]
	if !ok {
		return nil, repo.ErrDeliveryNotFound
	}
	return delivery, nil
}

func (r *fakeDeliveryRepo) GetManyByCampaignID(_ context.Context, campaignID uint64) ([]*entity.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deliveries := make([]*entity.Delivery, 0)
	for _, delivery := range r.deliveries {
		if delivery.GetCampaignID() == campaignID {
			deliveries = append(deliveries, delivery)
		}
	}
	return deliveries, nil
}

func (r *fakeDeliveryRepo) GetSentEmails(_ context.Context, campaignID uint64) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	emails := make(map[string]struct{})
	for _, delivery := range r.deliveries {
		if delivery.GetCampaignID() == campaignID && delivery.GetStatus() == entity.DeliveryStatusSent {
			emails[delivery.GetEmail()] = struct{}{}
		}
	}
	return emails, nil
}

func (r *fakeDeliveryRepo) CountByStatus(_ context.Context, campaignID uint64, status entity.DeliveryStatus) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count uint64
	for _, delivery := range r.deliveries {
		if delivery.GetCampaignID() == campaignID && delivery.GetStatus() == status {
			count++
		}
	}
	return count, nil
}

func (r *fakeDeliveryRepo) CountNonTerminal(_ context.Context, campaignID uint64) (uint64, error) {
	return r.CountByStatus(context.Background(), campaignID, entity.DeliveryStatusPending)
}

type fakeQuotaCounter struct {
	used  uint64
	limit uint64
}

type fakeQuotaRepo struct {
	mu       sync.Mutex
	counters map[string]*fakeQuotaCounter
}

func newFakeQuotaRepo() *fakeQuotaRepo {
	return &fakeQuotaRepo{
		counters: make(map[string]*fakeQuotaCounter),
	}
}

func quotaKey(period entity.QuotaPeriod, windowStart uint64) string {
	return fmt.Sprintf("%d:%d", period, windowStart)
}

func (r *fakeQuotaRepo) setUsed(period entity.QuotaPeriod, windowStart, used, limit uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[quotaKey(period, windowStart)] = &fakeQuotaCounter{used: used, limit: limit}
}

func (r *fakeQuotaRepo) GetOrCreate(_ context.Context, period entity.QuotaPeriod, windowStart, limit uint64) (*entity.QuotaCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := quotaKey(period, windowStart)
	counter, ok := r.counters[key]
	if !ok {
		counter = &fakeQuotaCounter{limit: limit}
		r.counters[key] = counter
	}
	counter.limit = limit

	return &entity.QuotaCounter{
		Period:      period,
		WindowStart: goutil.Uint64(windowStart),
		Used:        goutil.Uint64(counter.used),
		Limit:       goutil.Uint64(counter.limit),
	}, nil
}

func (r *fakeQuotaRepo) Reserve(_ context.Context, period entity.QuotaPeriod, windowStart, n uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter, ok := r.counters[quotaKey(period, windowStart)]
	if !ok {
		return false, errors.New("counter not found")
	}
	if counter.used+n > counter.limit {
		return false, nil
	}
	counter.used += n
	return true, nil
}

func (r *fakeQuotaRepo) Release(_ context.Context, period entity.QuotaPeriod, windowStart, n uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter, ok := r.counters[quotaKey(period, windowStart)]
	if !ok {
		return errors.New("counter not found")
	}
	if counter.used < n {
		counter.used = 0
	} else {
		counter.used -= n
	}
	return nil
}

func (r *fakeQuotaRepo) Close(_ context.Context) error {
	return nil
}

type fakeTrackingEventRepo struct {
	mu     sync.Mutex
	events []*entity.TrackingEvent
}

func (r *fakeTrackingEventRepo) Create(_ context.Context, event *entity.TrackingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeTrackingEventRepo) CountDistinctEmails(_ context.Context, campaignID uint64, event entity.Event) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	emails := make(map[string]struct{})
	for _, e := range r.events {
		if e.GetCampaignID() == campaignID && e.GetEvent() == event {
			emails[e.GetEmail()] = struct{}{}
		}
	}
	return uint64(len(emails)), nil
}

func (r *fakeTrackingEventRepo) GetManyByCampaignID(_ context.Context, campaignID uint64, event entity.Event) ([]*entity.TrackingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]*entity.TrackingEvent, 0)
	for _, e := range r.events {
		if e.GetCampaignID() == campaignID && e.GetEvent() == event {
			events = append(events, e)
		}
	}
	return events, nil
}

type fakeEmailService struct {
	mu         sync.Mutex
	sent       []*dep.SendEmail
	failEmails map[string]struct{}
}

func newFakeEmailService(failEmails ...string) *fakeEmailService {
	svc := &fakeEmailService{
		failEmails: make(map[string]struct{}),
	}
	for _, email := range failEmails {
		svc.failEmails[email] = struct{}{}
	}
	return svc
}

func (s *fakeEmailService) SendEmail(_ context.Context, sendEmail *dep.SendEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.failEmails[sendEmail.To]; ok {
		return errors.New("smtp rejected")
	}
	s.sent = append(s.sent, sendEmail)
	return nil
}

func (s *fakeEmailService) sentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	emails := make([]string, 0, len(s.sent))
	for _, sendEmail := range s.sent {
		emails = append(emails, sendEmail.To)
	}
	return emails
}

func (s *fakeEmailService) Close(_ context.Context) error {
	return nil
}
