// Package memory provides in-process implementations of the repository
// interfaces. They are safe for concurrent use and hold data for the lifetime
// of the process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
)

// Store holds every collection behind one lock.
type Store struct {
	mu          sync.RWMutex
	accounts    map[string]models.Account
	journal     []models.JournalEntry
	history     []models.HistoryEntry
	routes      []models.RouteDecision
	policies    []models.PolicyRecord
	auditLogs   []models.AuditLog
	deadLetters []models.DeadLetter
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{accounts: make(map[string]models.Account)}
}

// NewRepositories creates all repository instances over a fresh store
func NewRepositories() *repositories.Repositories {
	return NewStore().Repositories()
}

// Repositories returns repository views over the store.
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Accounts:       &AccountRepository{s},
		Journal:        &JournalRepository{s},
		History:        &HistoryRepository{s},
		RouteDecisions: &RouteDecisionRepository{s},
		Policies:       &PolicyRepository{s},
		AuditLogs:      &AuditRepository{s},
		DeadLetters:    &DeadLetterRepository{s},
	}
}

// tail returns the last limit elements; limit <= 0 means all.
func tail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// AccountRepository implements repositories.AccountRepository
type AccountRepository struct{ s *Store }

func (r *AccountRepository) Get(ctx context.Context, id string) (*models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &account, nil
}

func (r *AccountRepository) Put(ctx context.Context, account *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.accounts[account.ID] = *account
	return nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*models.Account, 0, len(r.s.accounts))
	for _, a := range r.s.accounts {
		account := a
		out = append(out, &account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// JournalRepository implements repositories.JournalRepository
type JournalRepository struct{ s *Store }

func (r *JournalRepository) Append(ctx context.Context, entries []models.JournalEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.journal = append(r.s.journal, entries...)
	return nil
}

func (r *JournalRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]models.JournalEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []models.JournalEntry
	for _, e := range r.s.journal {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *JournalRepository) List(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return tail(r.s.journal, limit), nil
}

// HistoryRepository implements repositories.HistoryRepository
type HistoryRepository struct{ s *Store }

func (r *HistoryRepository) Append(ctx context.Context, entry *models.HistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.history = append(r.s.history, *entry)
	return nil
}

func (r *HistoryRepository) List(ctx context.Context, limit int) ([]*models.HistoryEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return pointers(tail(r.s.history, limit)), nil
}

func (r *HistoryRepository) Since(ctx context.Context, t time.Time) ([]*models.HistoryEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.HistoryEntry
	for _, e := range r.s.history {
		if !e.Timestamp.Before(t) {
			entry := e
			out = append(out, &entry)
		}
	}
	return out, nil
}

// RouteDecisionRepository implements repositories.RouteDecisionRepository
type RouteDecisionRepository struct{ s *Store }

func (r *RouteDecisionRepository) Append(ctx context.Context, decision *models.RouteDecision) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.routes = append(r.s.routes, *decision)
	return nil
}

func (r *RouteDecisionRepository) List(ctx context.Context, limit int) ([]*models.RouteDecision, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return pointers(tail(r.s.routes, limit)), nil
}

// PolicyRepository implements repositories.PolicyRepository
type PolicyRepository struct{ s *Store }

func (r *PolicyRepository) Create(ctx context.Context, policy *models.PolicyRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.policies = append(r.s.policies, *policy)
	return nil
}

func (r *PolicyRepository) GetByName(ctx context.Context, name string) (*models.PolicyRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for i := len(r.s.policies) - 1; i >= 0; i-- {
		p := r.s.policies[i]
		if p.Name == name && p.Enabled {
			return &p, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *PolicyRepository) List(ctx context.Context) ([]*models.PolicyRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return pointers(tail(r.s.policies, 0)), nil
}

// AuditRepository implements repositories.AuditRepository
type AuditRepository struct{ s *Store }

func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.auditLogs = append(r.s.auditLogs, *log)
	return nil
}

func (r *AuditRepository) GetByCorrelationID(ctx context.Context, correlationID string) ([]*models.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.AuditLog
	for _, l := range r.s.auditLogs {
		if l.CorrelationID == correlationID {
			entry := l
			out = append(out, &entry)
		}
	}
	return out, nil
}

func (r *AuditRepository) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.AuditLog
	skipped := 0
	for i := len(r.s.auditLogs) - 1; i >= 0; i-- {
		l := r.s.auditLogs[i]
		if l.Action != action {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, &l)
	}
	return out, nil
}

// DeadLetterRepository implements repositories.DeadLetterRepository
type DeadLetterRepository struct{ s *Store }

func (r *DeadLetterRepository) Insert(ctx context.Context, letter *models.DeadLetter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.deadLetters = append(r.s.deadLetters, *letter)
	return nil
}

func (r *DeadLetterRepository) List(ctx context.Context) ([]*models.DeadLetter, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return pointers(tail(r.s.deadLetters, 0)), nil
}

func pointers[T any](items []T) []*T {
	out := make([]*T, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out
}
