package actionstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sievebot/sieve/models"
)

type MemActionStore struct {
	mu      sync.Mutex
	actions []models.ModerationAction
	nextID  uint64
}

var _ ActionStore = (*MemActionStore)(nil)

func NewMemActionStore() *MemActionStore {
	return &MemActionStore{nextID: 1}
}

func (s *MemActionStore) AddAction(ctx context.Context, act *models.ModerationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if act.ID == 0 {
		act.ID = s.nextID
		s.nextID++
	} else if act.ID >= s.nextID {
		s.nextID = act.ID + 1
	}
	s.actions = append(s.actions, *act)
	return nil
}

func sortActions(acts []models.ModerationAction) {
	sort.Slice(acts, func(i, j int) bool {
		if acts[i].IssuedAt.Equal(acts[j].IssuedAt) {
			return acts[i].ID < acts[j].ID
		}
		return acts[i].IssuedAt.Before(acts[j].IssuedAt)
	})
}

func (s *MemActionStore) ListWindow(ctx context.Context, start, end time.Time, types ...models.ActionType) ([]models.ModerationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[models.ActionType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	out := []models.ModerationAction{}
	for _, act := range s.actions {
		if act.IssuedAt.Before(start) || !act.IssuedAt.Before(end) {
			continue
		}
		if len(types) > 0 && !wanted[act.Action] {
			continue
		}
		out = append(out, act)
	}
	sortActions(out)
	return out, nil
}

func (s *MemActionStore) ListForMessages(ctx context.Context, messageIDs []uint64, types ...models.ActionType) ([]models.ModerationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wantedMsg := make(map[uint64]bool, len(messageIDs))
	for _, id := range messageIDs {
		wantedMsg[id] = true
	}
	wantedType := make(map[models.ActionType]bool, len(types))
	for _, t := range types {
		wantedType[t] = true
	}
	out := []models.ModerationAction{}
	for _, act := range s.actions {
		if act.MessageID == nil || !wantedMsg[*act.MessageID] {
			continue
		}
		if len(types) > 0 && !wantedType[act.Action] {
			continue
		}
		out = append(out, act)
	}
	sortActions(out)
	return out, nil
}

func (s *MemActionStore) ListForUser(ctx context.Context, userID uint64) ([]models.ModerationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ModerationAction{}
	for _, act := range s.actions {
		if act.UserID == userID {
			out = append(out, act)
		}
	}
	sortActions(out)
	return out, nil
}
