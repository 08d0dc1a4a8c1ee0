package token

import (
	"context"
	"sync"

	"github.com/coeus-solutions/api-podcast/internal/model"
)

// AccountStore is the persistence boundary for token accounts. The
// surrounding application owns account lifecycle; the meter only reads
// balances and grows used_tokens.
type AccountStore interface {
	Get(ctx context.Context, id string) (*model.TokenAccount, error)
	// AddUsage atomically increments used_tokens. Amount is non-negative.
	AddUsage(ctx context.Context, id string, amount int64) error
	// Grant atomically increments total_tokens. Called by the external
	// top-up subsystem, never by the pipeline.
	Grant(ctx context.Context, id string, amount int64) error
}

// MemoryStore is an in-process AccountStore for tests and development.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*model.TokenAccount
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*model.TokenAccount)}
}

// Put seeds or replaces an account.
func (s *MemoryStore) Put(account model.TokenAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := account
	s.accounts[account.ID] = &cp
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.TokenAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) AddUsage(ctx context.Context, id string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.UsedTokens += amount
	return nil
}

func (s *MemoryStore) Grant(ctx context.Context, id string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		s.accounts[id] = &model.TokenAccount{ID: id, TotalTokens: amount}
		return nil
	}
	acct.TotalTokens += amount
	return nil
}
