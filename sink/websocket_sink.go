package sink

import (
	"context"
	"moonshop/domain/chat"
	"moonshop/errors"
	"sync"
)

// WebsocketSink queues outbound events for one socket.
// The socket writer goroutine drains Outbound until Done is closed.
type WebsocketSink struct {
	Outbound chan chat.ServerEvent
	done     chan struct{}
	once     sync.Once
}

func NewWebsocketSink(bufferSize int) *WebsocketSink {
	return &WebsocketSink{
		Outbound: make(chan chat.ServerEvent, bufferSize),
		done:     make(chan struct{}),
	}
}

// Send never blocks: a full queue means the client is not keeping up.
func (s *WebsocketSink) Send(ctx context.Context, e chat.ServerEvent) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case s.Outbound <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.ErrBackpressure
	}
}

// Close marks the sink as dead, later sends fail.
func (s *WebsocketSink) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *WebsocketSink) Done() <-chan struct{} {
	return s.done
}
