package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/model"
)

func newTestMeter(total, used int64) (*Meter, *MemoryStore) {
	store := NewMemoryStore()
	store.Put(model.TokenAccount{ID: "acct", TotalTokens: total, UsedTokens: used})
	return NewMeter(store, zerolog.Nop()), store
}

func TestCheckBalanceInsufficient(t *testing.T) {
	meter, _ := newTestMeter(1000, 950)

	err := meter.CheckBalance(context.Background(), "acct", 100)
	var insufficient *InsufficientTokensError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientTokensError", err)
	}
	if insufficient.Required != 100 || insufficient.Available != 50 {
		t.Errorf("error = %+v, want required 100 available 50", insufficient)
	}
}

func TestCheckBalanceSufficient(t *testing.T) {
	meter, _ := newTestMeter(1000, 950)
	if err := meter.CheckBalance(context.Background(), "acct", 50); err != nil {
		t.Fatalf("CheckBalance: %v", err)
	}
}

func TestCheckBalanceUnknownAccount(t *testing.T) {
	meter, _ := newTestMeter(1000, 0)
	err := meter.CheckBalance(context.Background(), "nobody", 1)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestReserveExcludesOutstandingReservations(t *testing.T) {
	meter, _ := newTestMeter(100, 0)

	if err := meter.Reserve(context.Background(), "acct", "job-1", 60); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	err := meter.Reserve(context.Background(), "acct", "job-2", 60)
	var insufficient *InsufficientTokensError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientTokensError", err)
	}
	if insufficient.Available != 40 {
		t.Errorf("available = %d, want 40 with 60 reserved", insufficient.Available)
	}

	meter.Release("acct", "job-1")
	if err := meter.Reserve(context.Background(), "acct", "job-2", 60); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	meter, _ := newTestMeter(100, 0)

	meter.Release("acct", "unknown-job")

	if err := meter.Reserve(context.Background(), "acct", "job-1", 100); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	meter.Release("acct", "job-1")
	meter.Release("acct", "job-1")

	if err := meter.Reserve(context.Background(), "acct", "job-2", 100); err != nil {
		t.Fatalf("balance still encumbered after release: %v", err)
	}
}

func TestStageCheckIgnoresReservations(t *testing.T) {
	// An account whose headroom covers the admission estimate but not
	// admission plus a stage estimate. Admission must succeed and the
	// job's own stage check must still pass: the reservation admitted
	// this job, it does not encumber it.
	meter, _ := newTestMeter(120, 0)

	if err := meter.Reserve(context.Background(), "acct", "job-1", 100); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := meter.CheckBalance(context.Background(), "acct", 50); err != nil {
		t.Fatalf("stage check blocked by own reservation: %v", err)
	}

	// Stage checks track real consumption, not reservations.
	if err := meter.Debit(context.Background(), "acct", 80); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	err := meter.CheckBalance(context.Background(), "acct", 50)
	var insufficient *InsufficientTokensError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientTokensError", err)
	}
	if insufficient.Available != 40 {
		t.Errorf("available = %d, want 40 (total minus used)", insufficient.Available)
	}
}

func TestConcurrentReservesNeverOverAdmit(t *testing.T) {
	meter, _ := newTestMeter(100, 0)

	const workers = 20
	var wg sync.WaitGroup
	admitted := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jobID := fmt.Sprintf("job-%d", i)
			if err := meter.Reserve(context.Background(), "acct", jobID, 30); err == nil {
				admitted <- jobID
			}
		}(i)
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	// 100 tokens at 30 apiece admits exactly 3 jobs.
	if count != 3 {
		t.Errorf("admitted %d jobs, want 3", count)
	}
}

func TestDebitNeverRejected(t *testing.T) {
	meter, store := newTestMeter(100, 90)

	// Actual consumption can exceed the remaining balance.
	if err := meter.Debit(context.Background(), "acct", 50); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	acct, err := store.Get(context.Background(), "acct")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct.UsedTokens != 140 {
		t.Errorf("used tokens = %d, want 140", acct.UsedTokens)
	}
	if acct.Available() != -40 {
		t.Errorf("available = %d, want -40", acct.Available())
	}
}

func TestDebitIgnoresNonPositiveAmounts(t *testing.T) {
	meter, store := newTestMeter(100, 10)

	if err := meter.Debit(context.Background(), "acct", 0); err != nil {
		t.Fatalf("Debit(0): %v", err)
	}
	if err := meter.Debit(context.Background(), "acct", -5); err != nil {
		t.Fatalf("Debit(-5): %v", err)
	}

	acct, _ := store.Get(context.Background(), "acct")
	if acct.UsedTokens != 10 {
		t.Errorf("used tokens = %d, want 10", acct.UsedTokens)
	}
}

func TestUsedTokensAreMonotonic(t *testing.T) {
	meter, store := newTestMeter(1000, 0)

	var prev int64
	for i := 0; i < 5; i++ {
		if err := meter.Debit(context.Background(), "acct", int64(i*7)); err != nil {
			t.Fatalf("Debit: %v", err)
		}
		acct, _ := store.Get(context.Background(), "acct")
		if acct.UsedTokens < prev {
			t.Fatalf("used tokens decreased: %d -> %d", prev, acct.UsedTokens)
		}
		prev = acct.UsedTokens
	}
}
