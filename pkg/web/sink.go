package web

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-rangegate/pkg/event"
	"github.com/teslashibe/go-rangegate/pkg/frame"
	"github.com/teslashibe/go-rangegate/pkg/hub"
)

// envelope is the JSON shape on /ws/events.
type envelope struct {
	Type string `json:"type"` // "alert", "status" or "notice"
	Data any    `json:"data"`
}

// Render implements event.Sink. Frames are handed to a per-view encoder
// goroutine; the caller never waits for JPEG compression.
func (s *Server) Render(e event.Render) {
	switch e.Kind {
	case event.LiveFrame:
		s.live.offer(e.Image)
	case event.FilteredFrame:
		s.filtered.offer(e.Image)
	}
}

// Alert implements event.Sink.
func (s *Server) Alert(e event.Alert) {
	s.mu.Lock()
	s.lastAlert = e
	s.mu.Unlock()
	s.broadcastEvent("alert", e)
}

// Status implements event.Sink.
func (s *Server) Status(e event.Status) {
	s.mu.Lock()
	s.lastStatus = e
	s.mu.Unlock()
	s.broadcastEvent("status", e)
}

// Notice implements event.Sink.
func (s *Server) Notice(e event.Notice) {
	s.mu.Lock()
	s.notice = &e
	s.noticeAt = time.Now()
	s.mu.Unlock()
	s.broadcastEvent("notice", noticeJSON{Text: e.Text, TTLMillis: e.TTL.Milliseconds()})
}

type noticeJSON struct {
	Text      string `json:"text"`
	TTLMillis int64  `json:"ttl_ms"`
}

func (s *Server) broadcastEvent(kind string, data any) {
	if s.eventsHub.ClientCount() == 0 {
		return
	}
	if err := s.eventsHub.BroadcastJSON(envelope{Type: kind, Data: data}); err != nil {
		s.log.Warn("encode event failed", "type", kind, "err", err)
	}
}

// activeNotice returns the notice if its TTL has not expired.
func (s *Server) activeNotice() *noticeJSON {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.notice == nil || time.Since(s.noticeAt) > s.notice.TTL {
		return nil
	}
	return &noticeJSON{Text: s.notice.Text, TTLMillis: s.notice.TTL.Milliseconds()}
}

// streamer encodes the latest offered frame and broadcasts it. Frames
// offered while an encode is in progress replace each other; only the
// newest is encoded next.
type streamer struct {
	hub    *hub.Hub
	encode Encoder

	mu      sync.Mutex
	pending *frame.Packet
	wake    chan struct{}

	encoded uint64
	skipped uint64
}

func newStreamer(h *hub.Hub, enc Encoder) *streamer {
	return &streamer{hub: h, encode: enc, wake: make(chan struct{}, 1)}
}

func (st *streamer) offer(f frame.Packet) {
	if st.encode == nil || st.hub.ClientCount() == 0 {
		return
	}
	st.mu.Lock()
	if st.pending != nil {
		st.skipped++
	}
	st.pending = &f
	st.mu.Unlock()

	select {
	case st.wake <- struct{}{}:
	default:
	}
}

func (st *streamer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-st.wake:
		}

		st.mu.Lock()
		f := st.pending
		st.pending = nil
		st.mu.Unlock()
		if f == nil {
			continue
		}

		data, err := st.encode(*f)
		if err != nil {
			continue
		}
		st.hub.BroadcastBinary(data)

		st.mu.Lock()
		st.encoded++
		st.mu.Unlock()
	}
}

func (st *streamer) stats() (encoded, skipped uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.encoded, st.skipped
}
