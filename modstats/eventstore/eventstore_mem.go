package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sievebot/sieve/models"
)

// MemEventStore holds the log in memory; used in tests and for one-off
// offline report runs over exported data.
type MemEventStore struct {
	mu       sync.Mutex
	events   []models.DetectionEvent
	messages map[uint64]models.Message
	nextID   uint64
}

var _ EventStore = (*MemEventStore)(nil)

func NewMemEventStore() *MemEventStore {
	return &MemEventStore{
		messages: make(map[uint64]models.Message),
		nextID:   1,
	}
}

func (s *MemEventStore) AddEvent(ctx context.Context, evt *models.DetectionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt.ID == 0 {
		evt.ID = s.nextID
		s.nextID++
	} else if evt.ID >= s.nextID {
		s.nextID = evt.ID + 1
	}
	s.events = append(s.events, *evt)
	return nil
}

func sortEvents(evts []models.DetectionEvent) {
	sort.Slice(evts, func(i, j int) bool {
		if evts[i].DetectedAt.Equal(evts[j].DetectedAt) {
			return evts[i].ID < evts[j].ID
		}
		return evts[i].DetectedAt.Before(evts[j].DetectedAt)
	})
}

func (s *MemEventStore) ListWindow(ctx context.Context, start, end time.Time) ([]models.DetectionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.DetectionEvent{}
	for _, evt := range s.events {
		if !evt.DetectedAt.Before(start) && evt.DetectedAt.Before(end) {
			out = append(out, evt)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *MemEventStore) ListManualForMessages(ctx context.Context, messageIDs []uint64) ([]models.DetectionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[uint64]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	out := []models.DetectionEvent{}
	for _, evt := range s.events {
		if evt.DetectionSource == models.SourceManual && wanted[evt.MessageID] {
			out = append(out, evt)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *MemEventStore) ListForMessage(ctx context.Context, messageID uint64) ([]models.DetectionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.DetectionEvent{}
	for _, evt := range s.events {
		if evt.MessageID == messageID {
			out = append(out, evt)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *MemEventStore) GetMessage(ctx context.Context, messageID uint64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

func (s *MemEventStore) PutMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = *msg
	return nil
}

func (s *MemEventStore) DisableTraining(ctx context.Context, messageID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.events {
		if s.events[i].MessageID == messageID && s.events[i].UsedForTraining {
			s.events[i].UsedForTraining = false
			n++
		}
	}
	return n, nil
}

func (s *MemEventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var n int64
	for _, evt := range s.events {
		if evt.DetectedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, evt)
	}
	s.events = kept
	return n, nil
}
