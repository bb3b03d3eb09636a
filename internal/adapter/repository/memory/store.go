// Package memory is an in-process implementation of the usecase repositories.
// Every atomic scope holds the store's single semaphore, so transactions are
// fully serialised and a rollback replays an undo log.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

// ErrForeignTransaction is returned when a transaction from another store is passed in.
var ErrForeignTransaction = errors.New("memory: transaction does not belong to this store")

// Store holds all ledger state.
type Store struct {
	sem chan struct{}

	accounts     map[string]*domain.Account
	accountByKey map[string]string

	transactions []*domain.Transaction
	txByID       map[string]*domain.Transaction
	entries      []*domain.LedgerEntry

	closes    map[string]*domain.DailyClose
	snapshots map[string][]*domain.BalanceSnapshot

	recon      map[string]*domain.ReconciliationEntry
	reconOrder []string

	intents       []*domain.DepositIntent
	withdrawals   []*domain.WithdrawalRequest
	confirmations map[string]*domain.PaymentConfirmation

	outbox []*domain.OutboxEvent

	faultsMu sync.Mutex
	faults   map[string]error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sem:           make(chan struct{}, 1),
		accounts:      make(map[string]*domain.Account),
		accountByKey:  make(map[string]string),
		txByID:        make(map[string]*domain.Transaction),
		closes:        make(map[string]*domain.DailyClose),
		snapshots:     make(map[string][]*domain.BalanceSnapshot),
		recon:         make(map[string]*domain.ReconciliationEntry),
		confirmations: make(map[string]*domain.PaymentConfirmation),
		faults:        make(map[string]error),
	}
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.sem
}

// run executes fn inside tx, or under the store lock when tx is nil.
func (s *Store) run(ctx context.Context, tx usecase.Transaction, fn func(t *Tx) error) error {
	if tx != nil {
		t, ok := tx.(*Tx)
		if !ok || t.store != s {
			return ErrForeignTransaction
		}
		if t.done {
			return fmt.Errorf("memory: transaction already finished")
		}
		return fn(t)
	}

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn(nil)
}

// FailOn makes operation op fail with err. An empty key matches every call;
// otherwise only calls for that key (an id or reference) fail.
func (s *Store) FailOn(op, key string, err error) {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	s.faults[op+"|"+key] = err
}

// ClearFaults removes every injected failure.
func (s *Store) ClearFaults() {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	s.faults = make(map[string]error)
}

func (s *Store) fault(op, key string) error {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	if err, ok := s.faults[op+"|"+key]; ok {
		return err
	}
	if err, ok := s.faults[op+"|"]; ok {
		return err
	}
	return nil
}

// TxManager implements usecase.TransactionManager over a Store.
type TxManager struct {
	store *Store
}

// NewTxManager creates a TxManager for store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin waits for exclusive access to the store.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := m.store.fault("Begin", ""); err != nil {
		return nil, err
	}
	if err := m.store.acquire(ctx); err != nil {
		return nil, err
	}
	return &Tx{store: m.store}, nil
}

// BeginLocking is Begin.
func (m *TxManager) BeginLocking(ctx context.Context) (usecase.Transaction, error) {
	return m.Begin(ctx)
}

// BeginSnapshot is Begin; exclusive access is already a consistent snapshot.
func (m *TxManager) BeginSnapshot(ctx context.Context) (usecase.Transaction, error) {
	return m.Begin(ctx)
}

// Tx is an exclusive scope over the store with an undo log.
type Tx struct {
	store *Store
	undo  []func()
	done  bool
}

func (t *Tx) record(fn func()) {
	if t != nil {
		t.undo = append(t.undo, fn)
	}
}

// Commit keeps every change made in the scope.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("memory: transaction already finished")
	}
	if err := t.store.fault("Commit", ""); err != nil {
		return err
	}
	t.done = true
	t.undo = nil
	t.store.release()
	return nil
}

// Rollback reverts every change made in the scope. It is a no-op after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.done = true
	t.store.release()
	return nil
}
