// Package events fans engine events out to subscribers, primarily the admin
// WebSocket feed.
package events

import (
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/interfaces"
)

// Service is a simple in-memory publish/subscribe hub. Publish never blocks:
// events for a saturated subscriber are dropped.
type Service struct {
	mu          sync.Mutex
	subscribers map[int]chan interfaces.Event
	nextID      int
	logger      arbor.ILogger
}

// NewService creates an event service.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subscribers: make(map[int]chan interfaces.Event),
		logger:      logger,
	}
}

// Publish delivers the event to every subscriber that has buffer room.
func (s *Service) Publish(event interfaces.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Debug().Int("subscriber", id).Str("type", event.Type).Msg("Event dropped for slow subscriber")
		}
	}
}

// Subscribe registers a new subscriber with the given channel buffer. The
// returned cancel function unregisters and closes the channel.
func (s *Service) Subscribe(buffer int) (<-chan interfaces.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan interfaces.Event, buffer)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}
