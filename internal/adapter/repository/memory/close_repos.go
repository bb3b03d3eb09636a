package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

func copyClose(c *domain.DailyClose) *domain.DailyClose {
	out := *c
	out.Summary = append([]domain.CurrencySummary(nil), c.Summary...)
	out.Balances = append([]domain.CurrencyBalance(nil), c.Balances...)
	return &out
}

// DailyCloseRepository implements usecase.DailyCloseRepository.
type DailyCloseRepository struct{ s *Store }

// NewDailyCloseRepository creates a new DailyCloseRepository.
func NewDailyCloseRepository(s *Store) *DailyCloseRepository {
	return &DailyCloseRepository{s: s}
}

// GetByDate retrieves the close for date.
func (r *DailyCloseRepository) GetByDate(ctx context.Context, date string) (*domain.DailyClose, error) {
	return r.get(ctx, nil, date)
}

// GetByDateForUpdate retrieves the close for date inside tx.
func (r *DailyCloseRepository) GetByDateForUpdate(ctx context.Context, tx usecase.Transaction, date string) (*domain.DailyClose, error) {
	return r.get(ctx, tx, date)
}

func (r *DailyCloseRepository) get(ctx context.Context, tx usecase.Transaction, date string) (*domain.DailyClose, error) {
	var out *domain.DailyClose
	err := r.s.run(ctx, tx, func(*Tx) error {
		c, ok := r.s.closes[date]
		if !ok {
			return domain.ErrDailyCloseNotFound
		}
		out = copyClose(c)
		return nil
	})
	return out, err
}

// Upsert inserts or replaces the close for c.Date.
func (r *DailyCloseRepository) Upsert(ctx context.Context, tx usecase.Transaction, c *domain.DailyClose) error {
	return r.s.run(ctx, tx, func(t *Tx) error {
		if err := r.s.fault("UpsertDailyClose", string(c.Status)); err != nil {
			return err
		}
		prev, existed := r.s.closes[c.Date]
		r.s.closes[c.Date] = copyClose(c)
		t.record(func() {
			if existed {
				r.s.closes[c.Date] = prev
			} else {
				delete(r.s.closes, c.Date)
			}
		})
		return nil
	})
}

// List returns closes newest first.
func (r *DailyCloseRepository) List(ctx context.Context, filter domain.DailyCloseFilter) ([]*domain.DailyClose, error) {
	var out []*domain.DailyClose
	err := r.s.run(ctx, nil, func(*Tx) error {
		dates := make([]string, 0, len(r.s.closes))
		for d := range r.s.closes {
			if filter.From != "" && d < filter.From {
				continue
			}
			if filter.To != "" && d > filter.To {
				continue
			}
			dates = append(dates, d)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(dates)))
		for _, d := range dates {
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
			out = append(out, copyClose(r.s.closes[d]))
		}
		return nil
	})
	return out, err
}

// SnapshotRepository implements usecase.SnapshotRepository.
type SnapshotRepository struct{ s *Store }

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(s *Store) *SnapshotRepository { return &SnapshotRepository{s: s} }

// ReplaceForDate swaps the snapshot set of date.
func (r *SnapshotRepository) ReplaceForDate(ctx context.Context, tx usecase.Transaction, date string, snapshots []*domain.BalanceSnapshot) error {
	return r.s.run(ctx, tx, func(t *Tx) error {
		if err := r.s.fault("ReplaceSnapshots", date); err != nil {
			return err
		}
		prev, existed := r.s.snapshots[date]
		next := make([]*domain.BalanceSnapshot, 0, len(snapshots))
		for _, sn := range snapshots {
			c := *sn
			next = append(next, &c)
		}
		r.s.snapshots[date] = next
		t.record(func() {
			if existed {
				r.s.snapshots[date] = prev
			} else {
				delete(r.s.snapshots, date)
			}
		})
		return nil
	})
}

// ListByDate returns the snapshots of date.
func (r *SnapshotRepository) ListByDate(ctx context.Context, date string) ([]*domain.BalanceSnapshot, error) {
	var out []*domain.BalanceSnapshot
	err := r.s.run(ctx, nil, func(*Tx) error {
		for _, sn := range r.s.snapshots[date] {
			c := *sn
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

// ReconciliationRepository implements usecase.ReconciliationRepository.
type ReconciliationRepository struct{ s *Store }

// NewReconciliationRepository creates a new ReconciliationRepository.
func NewReconciliationRepository(s *Store) *ReconciliationRepository {
	return &ReconciliationRepository{s: s}
}

// Create stores a new entry.
func (r *ReconciliationRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.ReconciliationEntry) error {
	return r.s.run(ctx, tx, func(t *Tx) error {
		if err := r.s.fault("CreateReconciliationEntry", entry.ReferenceID); err != nil {
			return err
		}
		c := *entry
		r.s.recon[c.ID] = &c
		r.s.reconOrder = append(r.s.reconOrder, c.ID)
		t.record(func() {
			delete(r.s.recon, c.ID)
			r.s.reconOrder = r.s.reconOrder[:len(r.s.reconOrder)-1]
		})
		return nil
	})
}

// GetByID retrieves an entry by ID.
func (r *ReconciliationRepository) GetByID(ctx context.Context, id string) (*domain.ReconciliationEntry, error) {
	return r.get(ctx, nil, id)
}

// GetByIDForUpdate retrieves an entry by ID inside tx.
func (r *ReconciliationRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.ReconciliationEntry, error) {
	return r.get(ctx, tx, id)
}

func (r *ReconciliationRepository) get(ctx context.Context, tx usecase.Transaction, id string) (*domain.ReconciliationEntry, error) {
	var out *domain.ReconciliationEntry
	err := r.s.run(ctx, tx, func(*Tx) error {
		e, ok := r.s.recon[id]
		if !ok {
			return domain.ErrReconciliationEntryNotFound
		}
		c := *e
		out = &c
		return nil
	})
	return out, err
}

// FindByReference returns the entry for (entryType, ref).
func (r *ReconciliationRepository) FindByReference(ctx context.Context, tx usecase.Transaction, entryType domain.ReconciliationEntryType, ref string) (*domain.ReconciliationEntry, error) {
	var out *domain.ReconciliationEntry
	err := r.s.run(ctx, tx, func(*Tx) error {
		for _, id := range r.s.reconOrder {
			e := r.s.recon[id]
			if e.EntryType == entryType && e.ReferenceID == ref {
				c := *e
				out = &c
				return nil
			}
		}
		return domain.ErrReconciliationEntryNotFound
	})
	return out, err
}

// Update replaces an existing entry.
func (r *ReconciliationRepository) Update(ctx context.Context, tx usecase.Transaction, entry *domain.ReconciliationEntry) error {
	return r.s.run(ctx, tx, func(t *Tx) error {
		prev, ok := r.s.recon[entry.ID]
		if !ok {
			return domain.ErrReconciliationEntryNotFound
		}
		c := *entry
		r.s.recon[entry.ID] = &c
		t.record(func() { r.s.recon[entry.ID] = prev })
		return nil
	})
}

// ListOpen returns UNRECONCILED and VARIANCE entries, oldest first.
func (r *ReconciliationRepository) ListOpen(ctx context.Context, limit int) ([]*domain.ReconciliationEntry, error) {
	var out []*domain.ReconciliationEntry
	err := r.s.run(ctx, nil, func(*Tx) error {
		for _, id := range r.s.reconOrder {
			e := r.s.recon[id]
			if !e.Status.IsOpen() {
				continue
			}
			if len(out) >= limit {
				break
			}
			c := *e
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

// CountByStatus counts entries with status.
func (r *ReconciliationRepository) CountByStatus(ctx context.Context, status domain.ReconciliationStatus) (int64, error) {
	var n int64
	err := r.s.run(ctx, nil, func(*Tx) error {
		for _, e := range r.s.recon {
			if e.Status == status {
				n++
			}
		}
		return nil
	})
	return n, err
}

func confirmationKey(kind domain.ReconciliationEntryType, ref string) string {
	return string(kind) + "|" + ref
}

// PaymentRepository implements usecase.PaymentRepository.
type PaymentRepository struct{ s *Store }

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(s *Store) *PaymentRepository { return &PaymentRepository{s: s} }

// ListDepositIntents returns intents created in [from, to).
func (r *PaymentRepository) ListDepositIntents(ctx context.Context, from, to time.Time) ([]*domain.DepositIntent, error) {
	var out []*domain.DepositIntent
	err := r.s.run(ctx, nil, func(*Tx) error {
		if err := r.s.fault("ListDepositIntents", ""); err != nil {
			return err
		}
		for _, in := range r.s.intents {
			if in.CreatedAt.Before(from) || !in.CreatedAt.Before(to) {
				continue
			}
			c := *in
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

// ListWithdrawalRequests returns requests created in [from, to).
func (r *PaymentRepository) ListWithdrawalRequests(ctx context.Context, from, to time.Time) ([]*domain.WithdrawalRequest, error) {
	var out []*domain.WithdrawalRequest
	err := r.s.run(ctx, nil, func(*Tx) error {
		for _, w := range r.s.withdrawals {
			if w.CreatedAt.Before(from) || !w.CreatedAt.Before(to) {
				continue
			}
			c := *w
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

// GetConfirmation returns the confirmation for (kind, ref).
func (r *PaymentRepository) GetConfirmation(ctx context.Context, tx usecase.Transaction, kind domain.ReconciliationEntryType, ref string) (*domain.PaymentConfirmation, error) {
	var out *domain.PaymentConfirmation
	err := r.s.run(ctx, tx, func(*Tx) error {
		if err := r.s.fault("GetConfirmation", ref); err != nil {
			return err
		}
		c, ok := r.s.confirmations[confirmationKey(kind, ref)]
		if !ok {
			return domain.ErrConfirmationNotFound
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

// UpdateConfirmation stores the confirmation's status and linked transaction.
func (r *PaymentRepository) UpdateConfirmation(ctx context.Context, tx usecase.Transaction, c *domain.PaymentConfirmation) error {
	return r.s.run(ctx, tx, func(t *Tx) error {
		key := confirmationKey(c.Kind, c.ReferenceID)
		prev, ok := r.s.confirmations[key]
		if !ok {
			return domain.ErrConfirmationNotFound
		}
		next := *prev
		next.Status = c.Status
		next.TransactionID = c.TransactionID
		next.UpdatedAt = c.UpdatedAt
		r.s.confirmations[key] = &next
		t.record(func() { r.s.confirmations[key] = prev })
		return nil
	})
}

// CountConfirmationsByStatus counts confirmations with status.
func (r *PaymentRepository) CountConfirmationsByStatus(ctx context.Context, status domain.ConfirmationStatus) (int64, error) {
	var n int64
	err := r.s.run(ctx, nil, func(*Tx) error {
		for _, c := range r.s.confirmations {
			if c.Status == status {
				n++
			}
		}
		return nil
	})
	return n, err
}

// AddDepositIntent seeds a deposit intent.
func (s *Store) AddDepositIntent(in *domain.DepositIntent) {
	s.sem <- struct{}{}
	defer s.release()
	c := *in
	s.intents = append(s.intents, &c)
}

// AddWithdrawalRequest seeds a withdrawal request.
func (s *Store) AddWithdrawalRequest(w *domain.WithdrawalRequest) {
	s.sem <- struct{}{}
	defer s.release()
	c := *w
	s.withdrawals = append(s.withdrawals, &c)
}

// AddConfirmation seeds a payment confirmation.
func (s *Store) AddConfirmation(c *domain.PaymentConfirmation) {
	s.sem <- struct{}{}
	defer s.release()
	cp := *c
	s.confirmations[confirmationKey(c.Kind, c.ReferenceID)] = &cp
}

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct{ s *Store }

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(s *Store) *OutboxRepository { return &OutboxRepository{s: s} }

// Create appends an event.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	return r.s.run(ctx, tx, func(t *Tx) error {
		if err := r.s.fault("CreateOutboxEvent", event.EventType); err != nil {
			return err
		}
		c := *event
		r.s.outbox = append(r.s.outbox, &c)
		t.record(func() { r.s.outbox = r.s.outbox[:len(r.s.outbox)-1] })
		return nil
	})
}

// GetUnpublished returns up to limit unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var out []*domain.OutboxEvent
	err := r.s.run(ctx, nil, func(*Tx) error {
		for _, e := range r.s.outbox {
			if e.Published {
				continue
			}
			if len(out) >= limit {
				break
			}
			c := *e
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

// MarkPublished flags an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	return r.s.run(ctx, nil, func(*Tx) error {
		for _, e := range r.s.outbox {
			if e.ID == id {
				e.Published = true
				at := publishedAt
				e.PublishedAt = &at
				return nil
			}
		}
		return nil
	})
}

// DeletePublished drops published events older than before.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	return r.s.run(ctx, nil, func(*Tx) error {
		kept := r.s.outbox[:0]
		for _, e := range r.s.outbox {
			if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
				continue
			}
			kept = append(kept, e)
		}
		r.s.outbox = kept
		return nil
	})
}

// Events returns every outbox event of eventType, or all events when eventType is empty.
func (s *Store) Events(eventType string) []*domain.OutboxEvent {
	s.sem <- struct{}{}
	defer s.release()
	var out []*domain.OutboxEvent
	for _, e := range s.outbox {
		if eventType == "" || e.EventType == eventType {
			c := *e
			out = append(out, &c)
		}
	}
	return out
}
