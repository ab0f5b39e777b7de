package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"fidelity/entity"
	"fidelity/pkg/goutil"
	"fidelity/pkg/httputil"
	"fidelity/repo"
	"fidelity/tracking"
)

// transparentGif is a 1x1 transparent pixel.
var transparentGif = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingHandler serves the endpoints hit by recipient email clients.
// Both endpoints fail open: a bad or replayed token still gets the pixel
// or the redirect, it just records nothing. Broken images and dead links
// in delivered mail are worse than a lost data point.
type TrackingHandler struct {
	codec             *tracking.Codec
	trackingEventRepo repo.TrackingEventRepo
}

func NewTrackingHandler(codec *tracking.Codec, trackingEventRepo repo.TrackingEventRepo) *TrackingHandler {
	return &TrackingHandler{
		codec:             codec,
		trackingEventRepo: trackingEventRepo,
	}
}

func (h *TrackingHandler) Pixel(w http.ResponseWriter, r *http.Request) {
	h.record(r, entity.EventOpen, "")

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(transparentGif); err != nil {
		log.Ctx(r.Context()).Error().Msgf("write pixel err: %v", err)
	}
}

func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")

	h.record(r, entity.EventClick, url)

	if url == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

func (h *TrackingHandler) record(r *http.Request, event entity.Event, link string) {
	ctx := r.Context()

	campaignID, email, err := h.codec.Decode(r.URL.Query().Get("token"))
	if err != nil {
		log.Ctx(ctx).Warn().Msgf("undecodable tracking token, err: %v", err)
		return
	}

	trackingEvent := &entity.TrackingEvent{
		CampaignID: goutil.Uint64(campaignID),
		Email:      goutil.String(email),
		Event:      event,
		UserAgent:  goutil.String(r.UserAgent()),
		ClientIP:   goutil.String(httputil.ClientIP(r)),
		EventTime:  goutil.Uint64(uint64(time.Now().Unix())),
		CreateTime: goutil.Uint64(uint64(time.Now().Unix())),
	}
	if link != "" {
		trackingEvent.Link = goutil.String(link)
	}

	if err := h.trackingEventRepo.Create(ctx, trackingEvent); err != nil {
		log.Ctx(ctx).Error().Msgf("record tracking event err: %v", err)
	}
}
