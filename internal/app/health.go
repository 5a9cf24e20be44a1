package app

import (
	"time"

	"gchatlog/internal/eventbus"
)

// Health is the /healthz document.
type Health struct {
	Status     string      `json:"status"`
	Time       time.Time   `json:"time"`
	Chat       *ChatHealth `json:"chat,omitempty"`
	Throttled  uint64      `json:"log_throttled"`
	Rejected   uint64      `json:"log_rejected"`
	Goroutines int64       `json:"supervised"`
	BusDropped uint64      `json:"bus_dropped"`
	Heartbeats int64       `json:"heartbeats"`
	Journal    bool        `json:"journal"`
}

type ChatHealth struct {
	Webhooks int    `json:"webhooks"`
	Queued   int    `json:"queued"`
	Flushed  uint64 `json:"flushed"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
}

// Health reports a point-in-time view of the pipeline. Status is
// "degraded" once any batch has failed on the current sink.
func (a *App) Health() Health {
	h := Health{Status: "ok", Time: time.Now().UTC(), Journal: a.store != nil}
	if s := a.relay.current(); s != nil {
		st := s.Stats()
		h.Chat = &ChatHealth{
			Webhooks: len(s.Dispatcher().Webhooks()),
			Queued:   st.Queued,
			Flushed:  st.Flushed,
			Failed:   st.Failed,
			Dropped:  st.Dropped,
		}
		if st.Failed > 0 {
			h.Status = "degraded"
		}
	}
	h.Throttled, h.Rejected = a.logs.ChatStats()
	if a.sup != nil {
		h.Goroutines = a.sup.Active()
	}
	h.BusDropped = eventbus.Dropped(a.bus)
	a.mu.Lock()
	if a.hb != nil {
		h.Heartbeats = a.hb.beats.Load()
	}
	a.mu.Unlock()
	return h
}
