package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iho/gameledger/internal/usecase"
)

// DBTX is the statement surface shared by the pool and a pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxPool interface {
	DBTX
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var (
	writeTxOptions    = pgx.TxOptions{IsoLevel: pgx.Serializable}
	lockingTxOptions  = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	snapshotTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	pool pgxPool
}

// NewTxManager creates a new TxManager. pool is usually a *pgxpool.Pool.
func NewTxManager(pool pgxPool) *TxManager {
	return &TxManager{pool: pool}
}

// Begin starts a SERIALIZABLE read-write transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.pool.BeginTx(ctx, writeTxOptions)
	if err != nil {
		return nil, translateError(err)
	}

	return &Tx{tx: tx}, nil
}

// BeginLocking starts a READ COMMITTED read-write transaction. Writers on the
// house account queue on its row lock instead of failing SERIALIZABLE
// validation, so callers must lock every row they write.
func (m *TxManager) BeginLocking(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.pool.BeginTx(ctx, lockingTxOptions)
	if err != nil {
		return nil, translateError(err)
	}

	return &Tx{tx: tx}, nil
}

// BeginSnapshot starts a REPEATABLE READ read-only transaction.
// Every statement in it sees the same snapshot.
func (m *TxManager) BeginSnapshot(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.pool.BeginTx(ctx, snapshotTxOptions)
	if err != nil {
		return nil, translateError(err)
	}

	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return translateError(t.tx.Commit(ctx))
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// PgxTx returns the underlying pgx.Tx.
func (t *Tx) PgxTx() pgx.Tx {
	return t.tx
}

// conn returns the transaction's connection, or db when tx is nil.
func conn(db DBTX, tx usecase.Transaction) DBTX {
	if tx == nil {
		return db
	}
	return tx.(*Tx).PgxTx()
}
