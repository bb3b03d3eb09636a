package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct{ s *Store }

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(s *Store) *AccountRepository { return &AccountRepository{s: s} }

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	var out *domain.Account
	err := r.s.run(ctx, nil, func(*Tx) error {
		a, ok := r.s.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		out = copyAccount(a)
		return nil
	})
	return out, err
}

// GetByUserCurrency retrieves an account by its natural key.
func (r *AccountRepository) GetByUserCurrency(ctx context.Context, userID, currency string) (*domain.Account, error) {
	var out *domain.Account
	err := r.s.run(ctx, nil, func(*Tx) error {
		id, ok := r.s.accountByKey[domain.AccountKey(userID, currency)]
		if !ok {
			return domain.ErrAccountNotFound
		}
		out = copyAccount(r.s.accounts[id])
		return nil
	})
	return out, err
}

// GetOrCreateForUpdate returns the account for template's key, inserting template when absent.
func (r *AccountRepository) GetOrCreateForUpdate(ctx context.Context, tx usecase.Transaction, template *domain.Account) (*domain.Account, bool, error) {
	var (
		out     *domain.Account
		created bool
	)
	err := r.s.run(ctx, tx, func(t *Tx) error {
		if err := r.s.fault("GetOrCreateForUpdate", template.UserID); err != nil {
			return err
		}
		key := template.Key()
		if id, ok := r.s.accountByKey[key]; ok {
			out = copyAccount(r.s.accounts[id])
			return nil
		}
		a := copyAccount(template)
		r.s.accounts[a.ID] = a
		r.s.accountByKey[key] = a.ID
		t.record(func() {
			delete(r.s.accounts, a.ID)
			delete(r.s.accountByKey, key)
		})
		out = copyAccount(a)
		created = true
		return nil
	})
	return out, created, err
}

// GetForUpdate retrieves an existing account by its natural key.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, userID, currency string) (*domain.Account, error) {
	var out *domain.Account
	err := r.s.run(ctx, tx, func(*Tx) error {
		id, ok := r.s.accountByKey[domain.AccountKey(userID, currency)]
		if !ok {
			return domain.ErrAccountNotFound
		}
		out = copyAccount(r.s.accounts[id])
		return nil
	})
	return out, err
}

// AdjustBalance adds the deltas to the account.
func (r *AccountRepository) AdjustBalance(ctx context.Context, tx usecase.Transaction, id string, availableDelta, lockedDelta decimal.Decimal, updatedAt time.Time) (*domain.Account, error) {
	var out *domain.Account
	err := r.s.run(ctx, tx, func(t *Tx) error {
		if err := r.s.fault("AdjustBalance", id); err != nil {
			return err
		}
		a, ok := r.s.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		prev := *a
		t.record(func() { *a = prev })

		a.Available = a.Available.Add(availableDelta)
		a.Locked = a.Locked.Add(lockedDelta)
		a.Version++
		a.UpdatedAt = updatedAt
		out = copyAccount(a)
		return nil
	})
	return out, err
}

// List returns accounts ordered by ID.
func (r *AccountRepository) List(ctx context.Context, tx usecase.Transaction, limit, offset int) ([]*domain.Account, error) {
	var out []*domain.Account
	err := r.s.run(ctx, tx, func(*Tx) error {
		ids := make([]string, 0, len(r.s.accounts))
		for id := range r.s.accounts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for i := offset; i < len(ids) && len(out) < limit; i++ {
			out = append(out, copyAccount(r.s.accounts[ids[i]]))
		}
		return nil
	})
	return out, err
}

// CorruptBalance changes a stored balance without an entry, simulating external tampering.
func (s *Store) CorruptBalance(accountID string, delta decimal.Decimal) {
	s.sem <- struct{}{}
	defer s.release()
	if a, ok := s.accounts[accountID]; ok {
		a.Available = a.Available.Add(delta)
	}
}

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct{ s *Store }

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(s *Store) *TransactionRepository {
	return &TransactionRepository{s: s}
}

// Create appends a transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	return r.s.run(ctx, tx, func(scope *Tx) error {
		if err := r.s.fault("CreateTransaction", t.UserID); err != nil {
			return err
		}
		c := *t
		r.s.transactions = append(r.s.transactions, &c)
		r.s.txByID[c.ID] = &c
		scope.record(func() {
			r.s.transactions = r.s.transactions[:len(r.s.transactions)-1]
			delete(r.s.txByID, c.ID)
		})
		return nil
	})
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.s.run(ctx, nil, func(*Tx) error {
		t, ok := r.s.txByID[id]
		if !ok {
			return domain.ErrTransactionNotFound
		}
		c := *t
		out = &c
		return nil
	})
	return out, err
}

// FindByExternalReference returns the earliest transaction of typ with ref.
func (r *TransactionRepository) FindByExternalReference(ctx context.Context, tx usecase.Transaction, typ domain.TransactionType, ref string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.s.run(ctx, tx, func(*Tx) error {
		if err := r.s.fault("FindByExternalReference", ref); err != nil {
			return err
		}
		for _, t := range r.s.transactions {
			if t.Type == typ && t.ExternalReference != nil && *t.ExternalReference == ref {
				c := *t
				out = &c
				return nil
			}
		}
		return domain.ErrTransactionNotFound
	})
	return out, err
}

// TotalsByType sums absolute amounts per currency and type in [from, to).
func (r *TransactionRepository) TotalsByType(ctx context.Context, tx usecase.Transaction, from, to time.Time) ([]domain.TypeTotal, error) {
	var out []domain.TypeTotal
	err := r.s.run(ctx, tx, func(*Tx) error {
		if err := r.s.fault("TotalsByType", ""); err != nil {
			return err
		}
		type key struct {
			currency string
			typ      domain.TransactionType
		}
		sums := make(map[key]decimal.Decimal)
		var order []key
		for _, t := range r.s.transactions {
			if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
				continue
			}
			k := key{t.Currency, t.Type}
			if _, ok := sums[k]; !ok {
				order = append(order, k)
			}
			sums[k] = sums[k].Add(t.Amount.Abs())
		}
		for _, k := range order {
			out = append(out, domain.TypeTotal{Currency: k.currency, Type: k.typ, Total: sums[k]})
		}
		return nil
	})
	return out, err
}

// TotalsByUser sums absolute amounts per user, currency and type before until.
func (r *TransactionRepository) TotalsByUser(ctx context.Context, tx usecase.Transaction, until time.Time) ([]domain.UserTypeTotals, error) {
	var out []domain.UserTypeTotals
	err := r.s.run(ctx, tx, func(*Tx) error {
		index := make(map[string]int)
		for _, t := range r.s.transactions {
			if !t.CreatedAt.Before(until) {
				continue
			}
			k := domain.AccountKey(t.UserID, t.Currency)
			i, ok := index[k]
			if !ok {
				i = len(out)
				index[k] = i
				out = append(out, domain.UserTypeTotals{
					UserID:   t.UserID,
					Currency: t.Currency,
					Totals:   make(map[domain.TransactionType]decimal.Decimal),
				})
			}
			out[i].Totals[t.Type] = out[i].Amount(t.Type).Add(t.Amount.Abs())
		}
		return nil
	})
	return out, err
}

// Stats counts distinct users and transactions before until.
func (r *TransactionRepository) Stats(ctx context.Context, tx usecase.Transaction, until time.Time) (domain.LedgerStats, error) {
	var out domain.LedgerStats
	err := r.s.run(ctx, tx, func(*Tx) error {
		users := make(map[string]struct{})
		for _, t := range r.s.transactions {
			if !t.CreatedAt.Before(until) {
				continue
			}
			users[t.UserID] = struct{}{}
			out.TotalTransactions++
		}
		out.TotalUsers = int64(len(users))
		return nil
	})
	return out, err
}

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct{ s *Store }

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(s *Store) *EntryRepository { return &EntryRepository{s: s} }

// Create appends an entry.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	return r.s.run(ctx, tx, func(t *Tx) error {
		if err := r.s.fault("CreateEntry", entry.TransactionID); err != nil {
			return err
		}
		c := *entry
		r.s.entries = append(r.s.entries, &c)
		t.record(func() { r.s.entries = r.s.entries[:len(r.s.entries)-1] })
		return nil
	})
}

// GetByTransaction returns the entry of a transaction.
func (r *EntryRepository) GetByTransaction(ctx context.Context, transactionID string) (*domain.LedgerEntry, error) {
	var out *domain.LedgerEntry
	err := r.s.run(ctx, nil, func(*Tx) error {
		for _, e := range r.s.entries {
			if e.TransactionID == transactionID {
				c := *e
				out = &c
				return nil
			}
		}
		return domain.ErrTransactionNotFound
	})
	return out, err
}

// SumByAccount aggregates one account's entries.
func (r *EntryRepository) SumByAccount(ctx context.Context, tx usecase.Transaction, accountID string) (domain.EntrySums, error) {
	out := domain.EntrySums{Credits: decimal.Zero, Debits: decimal.Zero}
	err := r.s.run(ctx, tx, func(*Tx) error {
		for _, e := range r.s.entries {
			if e.CreditAccountID == accountID {
				out.Credits = out.Credits.Add(e.Amount)
			}
			if e.DebitAccountID == accountID {
				out.Debits = out.Debits.Add(e.Amount)
			}
		}
		return nil
	})
	return out, err
}

// SumsByAccount aggregates every account's entries, optionally before until.
func (r *EntryRepository) SumsByAccount(ctx context.Context, tx usecase.Transaction, until *time.Time) (map[string]domain.EntrySums, error) {
	out := make(map[string]domain.EntrySums)
	err := r.s.run(ctx, tx, func(*Tx) error {
		for _, e := range r.s.entries {
			if until != nil && !e.CreatedAt.Before(*until) {
				continue
			}
			c := out[e.CreditAccountID]
			c.Credits = c.Credits.Add(e.Amount)
			out[e.CreditAccountID] = c

			d := out[e.DebitAccountID]
			d.Debits = d.Debits.Add(e.Amount)
			out[e.DebitAccountID] = d
		}
		return nil
	})
	return out, err
}

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct{ s *Store }

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(s *Store) *LedgerRepository { return &LedgerRepository{s: s} }

// Totals sums the credit and debit sides of every entry.
func (r *LedgerRepository) Totals(ctx context.Context, tx usecase.Transaction) (decimal.Decimal, decimal.Decimal, error) {
	credits, debits := decimal.Zero, decimal.Zero
	err := r.s.run(ctx, tx, func(*Tx) error {
		for _, e := range r.s.entries {
			if e.CreditAccountID != "" {
				credits = credits.Add(e.Amount)
			}
			if e.DebitAccountID != "" {
				debits = debits.Add(e.Amount)
			}
		}
		return nil
	})
	return credits, debits, err
}
