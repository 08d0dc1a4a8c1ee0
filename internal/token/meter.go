package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/model"
)

// Meter enforces the prepaid-token contract: no stage starts work the
// account cannot afford, and every stage's actual cost is debited exactly
// once. Balance checks and debits for one account are serialized through
// a per-account mutex. Admission reservations count only at admission
// time: two concurrent Reserve calls cannot jointly overrun the balance,
// while a running job's per-stage checks see the plain total minus used
// figure, never encumbered by its own reservation.
type Meter struct {
	store AccountStore
	log   zerolog.Logger

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	reserved map[string]map[string]int64 // accountID -> jobID -> reserved amount
}

func NewMeter(store AccountStore, log zerolog.Logger) *Meter {
	return &Meter{
		store:    store,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
		reserved: make(map[string]map[string]int64),
	}
}

func (m *Meter) lockFor(accountID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[accountID] = l
	}
	return l
}

func (m *Meter) outstanding(accountID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, amount := range m.reserved[accountID] {
		sum += amount
	}
	return sum
}

// available computes spendable balance minus outstanding reservations,
// the figure admission decisions are made against. Callers must hold the
// account lock.
func (m *Meter) available(ctx context.Context, accountID string) (int64, error) {
	acct, err := m.store.Get(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acct.Available() - m.outstanding(accountID), nil
}

// CheckBalance fails with InsufficientTokensError when the account cannot
// cover required. Callers invoke it before submitting the corresponding
// backend request. Availability here is total minus used: the admission
// reservation already admitted this job, so it must not encumber the
// job's own stage checks.
func (m *Meter) CheckBalance(ctx context.Context, accountID string, required int64) error {
	l := m.lockFor(accountID)
	l.Lock()
	defer l.Unlock()

	acct, err := m.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.Available() < required {
		return &InsufficientTokensError{Required: required, Available: acct.Available()}
	}
	return nil
}

// Reserve performs the admission check for a job and holds the estimate
// against the account until Release. The estimate is deliberately coarse;
// actual consumption is debited per stage as it happens.
func (m *Meter) Reserve(ctx context.Context, accountID, jobID string, estimate int64) error {
	l := m.lockFor(accountID)
	l.Lock()
	defer l.Unlock()

	available, err := m.available(ctx, accountID)
	if err != nil {
		return err
	}
	if available < estimate {
		return &InsufficientTokensError{Required: estimate, Available: available}
	}

	m.mu.Lock()
	if m.reserved[accountID] == nil {
		m.reserved[accountID] = make(map[string]int64)
	}
	m.reserved[accountID][jobID] = estimate
	m.mu.Unlock()
	return nil
}

// Release drops a job's admission reservation. Safe to call more than
// once and for unknown jobs.
func (m *Meter) Release(accountID, jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if jobs, ok := m.reserved[accountID]; ok {
		delete(jobs, jobID)
		if len(jobs) == 0 {
			delete(m.reserved, accountID)
		}
	}
}

// Debit records actual consumption. It is never rejected: the resource
// was genuinely consumed by the time the figure is known. Non-positive
// amounts are ignored.
func (m *Meter) Debit(ctx context.Context, accountID string, amount int64) error {
	if amount <= 0 {
		return nil
	}

	l := m.lockFor(accountID)
	l.Lock()
	defer l.Unlock()

	if err := m.store.AddUsage(ctx, accountID, amount); err != nil {
		return fmt.Errorf("debit %d tokens: %w", amount, err)
	}
	m.log.Debug().Str("account", accountID).Int64("tokens", amount).Msg("debited usage")
	return nil
}

// Balance returns the current account state.
func (m *Meter) Balance(ctx context.Context, accountID string) (*model.TokenAccount, error) {
	return m.store.Get(ctx, accountID)
}
