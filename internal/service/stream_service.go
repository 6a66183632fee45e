package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-outpass-api/internal/models"
)

type eventSource interface {
	Subscribe(ctx context.Context) (<-chan models.OutingEvent, error)
}

// StreamService fans the outing change feed out to connected live views.
// Staff subscribers see every transition; students only their own.
type StreamService struct {
	source eventSource
	logger *zap.Logger

	mu      sync.Mutex
	nextID  int
	clients map[int]streamClient
}

type streamClient struct {
	events chan models.OutingEvent
	actor  models.JWTClaims
}

// NewStreamService constructs the fan-out hub.
func NewStreamService(source eventSource, logger *zap.Logger) *StreamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamService{
		source:  source,
		logger:  logger,
		clients: make(map[int]streamClient),
	}
}

// Start consumes the upstream feed until the context is cancelled. All
// client channels are closed on exit.
func (s *StreamService) Start(ctx context.Context) error {
	events, err := s.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for event := range events {
			s.broadcast(event)
		}
		s.closeAll()
	}()
	return nil
}

// Register attaches a live view for the given actor. The returned function
// detaches it; the channel is closed on detach or hub shutdown.
func (s *StreamService) Register(actor models.JWTClaims) (<-chan models.OutingEvent, func()) {
	events := make(chan models.OutingEvent, 8)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.clients[id] = streamClient{events: events, actor: actor}
	s.mu.Unlock()

	unregister := func() {
		s.mu.Lock()
		client, ok := s.clients[id]
		if ok {
			delete(s.clients, id)
		}
		s.mu.Unlock()
		if ok {
			close(client.events)
		}
	}
	return events, unregister
}

func (s *StreamService) broadcast(event models.OutingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, client := range s.clients {
		if !visibleTo(client.actor, event) {
			continue
		}
		select {
		case client.events <- event:
		default:
			// Slow consumer: drop the event rather than stall the feed.
			s.logger.Debug("dropping event for slow stream client", zap.Int("client", id), zap.String("event", event.Event))
		}
	}
}

func (s *StreamService) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, client := range s.clients {
		close(client.events)
		delete(s.clients, id)
	}
}

func visibleTo(actor models.JWTClaims, event models.OutingEvent) bool {
	if actor.Role.Staff() || actor.Role == models.RoleGate {
		return true
	}
	return actor.UserID == event.StudentID
}
