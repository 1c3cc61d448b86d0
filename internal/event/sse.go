package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const DefaultHeartbeat = 15 * time.Second

// Stream writes events to an HTTP client as server-sent events.
type Stream struct {
	w         io.Writer
	flush     func()
	heartbeat time.Duration
	mu        sync.Mutex
}

// NewStream sets the SSE response headers on w and returns a Stream that
// flushes after every frame when w supports it.
func NewStream(w http.ResponseWriter, heartbeat time.Duration) *Stream {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	s := &Stream{w: w, heartbeat: heartbeat}
	if f, ok := w.(http.Flusher); ok {
		s.flush = f.Flush
	}
	return s
}

// newStreamWriter wraps a plain writer without headers or heartbeats.
func newStreamWriter(w io.Writer) *Stream {
	return &Stream{w: w}
}

// StreamEvents forwards events until the channel closes or ctx is done.
// Heartbeat comments are written while the channel is idle.
func (s *Stream) StreamEvents(ctx context.Context, events <-chan Event) error {
	if s == nil {
		return errors.New("event: stream is nil")
	}
	var tick <-chan time.Time
	if s.heartbeat > 0 {
		t := time.NewTicker(s.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.Send(ev); err != nil {
				return err
			}
		case <-tick:
			if err := s.write([]byte(": ping\n\n")); err != nil {
				return err
			}
		}
	}
}

// Send writes a single "data: <json>" frame.
func (s *Stream) Send(ev Event) error {
	body, err := Marshal(ev)
	if err != nil {
		return err
	}
	return s.write([]byte(fmt.Sprintf("data: %s\n\n", body)))
}

func (s *Stream) write(p []byte) error {
	if s == nil || s.w == nil {
		return errors.New("event: stream writer not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(p); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}
