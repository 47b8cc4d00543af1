package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
)

// subscriberBuffer is the number of events a slow subscriber may lag behind
// before events are dropped for it.
const subscriberBuffer = 100

// Subscriber represents a client subscribed to progress events.
type Subscriber struct {
	ID     string
	Filter *Filter
	Events chan *ProgressEvent
}

// Service fans task progress out to subscribers and remembers the latest
// state of every task it has seen.
type Service struct {
	mu          sync.RWMutex
	latest      map[models.ULID]TaskProgress
	subscribers map[string]*Subscriber
	logger      *slog.Logger
}

// NewService creates a new progress service.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		latest:      make(map[models.ULID]TaskProgress),
		subscribers: make(map[string]*Subscriber),
		logger:      logger.With(slog.String("component", "progress_service")),
	}
}

// Publish records the task state and broadcasts it to matching subscribers.
// Terminal states are forgotten after broadcasting.
func (s *Service) Publish(p TaskProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Status.IsTerminal() {
		delete(s.latest, p.TaskID)
	} else {
		s.latest[p.TaskID] = p
	}

	event := &ProgressEvent{
		EventType: eventTypeForStatus(p.Status),
		Task:      p,
		Timestamp: time.Now(),
	}
	s.broadcastLocked(event)
}

// broadcastLocked sends an event to all matching subscribers.
// Must be called with s.mu held.
func (s *Service) broadcastLocked(event *ProgressEvent) {
	for _, sub := range s.subscribers {
		if !sub.Filter.Matches(event.Task) {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			s.logger.Warn("subscriber event channel full, dropping event",
				slog.String("subscriber_id", sub.ID),
				slog.String("task_id", event.Task.TaskID.String()))
		}
	}
}

// Active returns the latest state of every running task matching the filter.
func (s *Service) Active(filter *Filter) []TaskProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []TaskProgress
	for _, p := range s.latest {
		if filter.Matches(p) {
			result = append(result, p)
		}
	}
	return result
}

// Subscribe creates a new subscriber for progress events.
func (s *Service) Subscribe(filter *Filter) *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscriber{
		ID:     models.NewULID().String(),
		Filter: filter,
		Events: make(chan *ProgressEvent, subscriberBuffer),
	}
	s.subscribers[sub.ID] = sub

	s.logger.Debug("subscriber added", slog.String("subscriber_id", sub.ID))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Service) Unsubscribe(subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subscribers[subscriberID]; ok {
		close(sub.Events)
		delete(s.subscribers, subscriberID)
		s.logger.Debug("subscriber removed", slog.String("subscriber_id", subscriberID))
	}
}

// SubscriberCount returns the number of active subscribers.
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
