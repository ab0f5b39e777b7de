package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fidelity/entity"
	"fidelity/tracking"
)

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

func (r *fakeTrackingEventRepo) CountDistinctEmails(_ context.Context, _ uint64, _ entity.Event) (uint64, error) {
	return 0, nil
}

func (r *fakeTrackingEventRepo) GetManyByCampaignID(_ context.Context, _ uint64, _ entity.Event) ([]*entity.TrackingEvent, error) {
	return nil, nil
}

func newTrackingFixture(t *testing.T) (*TrackingHandler, *tracking.Codec, *fakeTrackingEventRepo) {
	t.Helper()

	codec, err := tracking.NewCodec("test-secret")
	require.NoError(t, err)

	repo := &fakeTrackingEventRepo{}
	return NewTrackingHandler(codec, repo), codec, repo
}

func TestTrackingPixelRecordsOpen(t *testing.T) {
	h, codec, repo := newTrackingFixture(t)

	token, err := codec.Encode(7, "giulia@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/tracking/pixel?token="+url.QueryEscape(token), nil)
	req.Header.Set("User-Agent", "test-client")
	rec := httptest.NewRecorder()

	h.Pixel(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())

	require.Len(t, repo.events, 1)
	event := repo.events[0]
	assert.Equal(t, uint64(7), event.GetCampaignID())
	assert.Equal(t, "giulia@example.com", event.GetEmail())
	assert.Equal(t, entity.EventOpen, event.GetEvent())
}

func TestTrackingPixelFailsOpenOnBadToken(t *testing.T) {
	h, _, repo := newTrackingFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/tracking/pixel?token=garbage", nil)
	rec := httptest.NewRecorder()

	h.Pixel(rec, req)

	// the pixel still renders, nothing is recorded
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())
	assert.Empty(t, repo.events)
}

func TestTrackingClickRedirectsAndRecords(t *testing.T) {
	h, codec, repo := newTrackingFixture(t)

	token, err := codec.Encode(7, "giulia@example.com")
	require.NoError(t, err)

	target := "https://shop.example.com/promo"
	req := httptest.NewRequest(http.MethodGet,
		"/tracking/click?token="+url.QueryEscape(token)+"&url="+url.QueryEscape(target), nil)
	rec := httptest.NewRecorder()

	h.Click(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, target, rec.Header().Get("Location"))

	require.Len(t, repo.events, 1)
	event := repo.events[0]
	assert.Equal(t, entity.EventClick, event.GetEvent())
	assert.Equal(t, target, event.GetLink())
}

func TestTrackingClickFailsOpenOnBadToken(t *testing.T) {
	h, _, repo := newTrackingFixture(t)

	target := "https://shop.example.com/promo"
	req := httptest.NewRequest(http.MethodGet,
		"/tracking/click?token=garbage&url="+url.QueryEscape(target), nil)
	rec := httptest.NewRecorder()

	h.Click(rec, req)

	// the recipient still lands on the destination
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, target, rec.Header().Get("Location"))
	assert.Empty(t, repo.events)
}

func TestTrackingClickMissingUrl(t *testing.T) {
	h, codec, _ := newTrackingFixture(t)

	token, err := codec.Encode(7, "giulia@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/tracking/click?token="+url.QueryEscape(token), nil)
	rec := httptest.NewRecorder()

	h.Click(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
