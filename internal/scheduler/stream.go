package scheduler

import (
	"context"
	"sync"
	"time"
)

// Event is one item on a run's output stream. Token events carry generated
// text, Err events report a failed run, and the final event has End set.
type Event struct {
	Token string
	Err   error
	End   bool
}

// OutputStream buffers run output for one consumer. Producers never block:
// events queue without bound until the consumer drains them or the stream is
// abandoned. The stream ends when the producer sends an End event.
type OutputStream struct {
	in        chan Event
	out       chan Event
	quit      chan struct{}
	quitOnce  sync.Once
	createdAt time.Time
}

// NewOutputStream creates a detached stream. The scheduler registers its own
// streams at dispatch; this is for executing runs outside the dispatch loop.
func NewOutputStream() *OutputStream {
	return newOutputStream()
}

func newOutputStream() *OutputStream {
	s := &OutputStream{
		in:        make(chan Event),
		out:       make(chan Event),
		quit:      make(chan struct{}),
		createdAt: time.Now(),
	}
	go s.pump()
	return s
}

// pump moves events from in to out through an unbounded buffer. It exits
// once the End event has been delivered, or when the stream is abandoned.
func (s *OutputStream) pump() {
	defer close(s.out)
	var queue []Event
	ended := false

	for {
		var inCh chan Event
		if !ended {
			inCh = s.in
		}
		var outCh chan Event
		var head Event
		if len(queue) > 0 {
			outCh = s.out
			head = queue[0]
		} else if ended {
			return
		}

		select {
		case <-s.quit:
			return
		case ev := <-inCh:
			queue = append(queue, ev)
			if ev.End {
				ended = true
			}
		case outCh <- head:
			queue = queue[1:]
		}
	}
}

// Send queues an event. It must not be called after an End event. Sends on
// an abandoned stream are discarded.
func (s *OutputStream) Send(ev Event) {
	select {
	case s.in <- ev:
	case <-s.quit:
	}
}

// SendToken queues generated text.
func (s *OutputStream) SendToken(token string) {
	s.Send(Event{Token: token})
}

// Finish queues the terminal event, with err describing a failed run. No
// further sends are permitted.
func (s *OutputStream) Finish(err error) {
	if err != nil {
		s.Send(Event{Err: err})
	}
	s.Send(Event{End: true})
}

// Next blocks for the next event. It returns false once the stream has
// ended or the context is done.
func (s *OutputStream) Next(ctx context.Context) (Event, bool) {
	select {
	case <-ctx.Done():
		return Event{}, false
	case ev, ok := <-s.out:
		if !ok || ev.End {
			return ev, false
		}
		return ev, true
	}
}

// abandon stops the pump and releases any blocked producer. Used when the
// stream expires unconsumed.
func (s *OutputStream) abandon() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// CreatedAt is when the stream was registered, used for expiry.
func (s *OutputStream) CreatedAt() time.Time {
	return s.createdAt
}
