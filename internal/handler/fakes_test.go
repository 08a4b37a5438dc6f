package handler

import (
	"context"
	"sync"

	"github.com/fraudguard/fraudguard/internal/model"
	"github.com/fraudguard/fraudguard/internal/repository"
	"github.com/fraudguard/fraudguard/internal/webhook"
)

// userStore is an in-memory users table covering every user-facing interface.
type userStore struct {
	mu      sync.Mutex
	users   map[string]*model.User
	upserts int
	err     error
}

func newUserStore(ids ...string) *userStore {
	s := &userStore{users: make(map[string]*model.User)}
	for _, id := range ids {
		s.users[id] = &model.User{ExternalID: id}
	}
	return s
}

func (s *userStore) GetUserByExternalID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *userStore) UpsertUser(_ context.Context, id string, p model.UserProfile) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.upserts++
	u, ok := s.users[id]
	if !ok {
		u = &model.User{ExternalID: id}
		s.users[id] = u
	}
	if p.Email != nil {
		u.Email = p.Email
	}
	if p.FirstName != nil {
		u.FirstName = p.FirstName
	}
	if p.LastName != nil {
		u.LastName = p.LastName
	}
	copied := *u
	return &copied, nil
}

func (s *userStore) CreateUserIfAbsent(_ context.Context, id string, p model.UserProfile) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	u := &model.User{ExternalID: id, Email: p.Email, FirstName: p.FirstName, LastName: p.LastName}
	s.users[id] = u
	copied := *u
	return &copied, nil
}

func (s *userStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.users, id)
	return nil
}

func (s *userStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// ledger is an in-memory processed_webhook_messages table.
type ledger struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newLedger() *ledger {
	return &ledger{seen: make(map[string]bool)}
}

func (l *ledger) HasProcessed(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[id], l.err
}

func (l *ledger) MarkProcessed(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.seen[id] {
		return webhook.ErrAlreadyProcessed
	}
	l.seen[id] = true
	return nil
}

func (l *ledger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// predictionStore is an in-memory predictions table.
type predictionStore struct {
	mu    sync.Mutex
	saved []*model.Prediction
}

func (s *predictionStore) CreatePrediction(_ context.Context, p *model.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, p)
	return nil
}

func (s *predictionStore) ListPredictionsByUser(_ context.Context, userID string, offset, limit int) ([]*model.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mine []*model.Prediction
	for i := len(s.saved) - 1; i >= 0; i-- {
		if s.saved[i].UserID == userID {
			mine = append(mine, s.saved[i])
		}
	}
	if offset >= len(mine) {
		return nil, nil
	}
	return mine[offset:min(offset+limit, len(mine))], nil
}

func (s *predictionStore) CountPredictionsByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.saved {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *predictionStore) PredictionTotals(context.Context) (int64, int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := map[string]bool{}
	var fraud int64
	for _, p := range s.saved {
		users[p.UserID] = true
		if p.IsFraud() {
			fraud++
		}
	}
	return int64(len(s.saved)), fraud, int64(len(users)), nil
}

func (s *predictionStore) MonthlyCounts(_ context.Context, year int) ([]repository.MonthCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMonth := map[int]*repository.MonthCount{}
	for _, p := range s.saved {
		if p.CreatedAt.UTC().Year() != year {
			continue
		}
		m := int(p.CreatedAt.UTC().Month())
		if byMonth[m] == nil {
			byMonth[m] = &repository.MonthCount{Month: m}
		}
		if p.IsFraud() {
			byMonth[m].Fraud++
		} else {
			byMonth[m].Legitimate++
		}
	}
	var out []repository.MonthCount
	for m := 1; m <= 12; m++ {
		if c := byMonth[m]; c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *predictionStore) PredictionYears(context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int]bool{}
	var years []int
	for _, p := range s.saved {
		y := p.CreatedAt.UTC().Year()
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	return years, nil
}
