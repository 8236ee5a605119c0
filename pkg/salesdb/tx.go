package salesdb

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is one transaction scope against the store. All writes of an ingestion
// or aggregation call go through a single Tx and commit or roll back together.
//
// Queries use '?' placeholders on every engine.
type Tx struct {
	tx      *sql.Tx
	dialect dialect
}

// Begin starts a new transaction.
func (s *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, dialect: s.dialect}, nil
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, including when fn panics.
func (s *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			// err already describes the failure.
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Exec executes a statement with parameters.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.tx == nil {
		return nil, ErrNoTransaction
	}
	res, err := t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
	return res, classify(err)
}

// QueryRow fetches at most one row. After Commit or Rollback the returned
// row's Scan reports ErrNoTransaction.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *Row {
	if t.tx == nil {
		return &Row{err: ErrNoTransaction}
	}
	return &Row{row: t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)}
}

// Row is the result of QueryRow.
type Row struct {
	row *sql.Row
	err error
}

// Scan copies the row's columns into dest. It returns sql.ErrNoRows when
// the query matched nothing.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}

// Query fetches all rows of a result set. The caller closes the rows.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if t.tx == nil {
		return nil, ErrNoTransaction
	}
	rows, err := t.tx.QueryContext(ctx, t.dialect.rebind(query), args...)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

// Prepare creates a statement bound to this transaction.
func (t *Tx) Prepare(ctx context.Context, query string) (*Stmt, error) {
	if t.tx == nil {
		return nil, ErrNoTransaction
	}
	stmt, err := t.tx.PrepareContext(ctx, t.dialect.rebind(query))
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	return &Stmt{stmt: stmt}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.tx == nil {
		return ErrNoTransaction
	}
	err := t.tx.Commit()
	t.tx = nil
	if err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

// Rollback rolls back the transaction. It is a no-op after Commit or Rollback.
func (t *Tx) Rollback() error {
	if t.tx == nil {
		return nil
	}
	err := t.tx.Rollback()
	t.tx = nil
	return err
}

// Stmt is a prepared statement whose errors are classified like Tx.Exec.
type Stmt struct {
	stmt *sql.Stmt
}

// Exec executes the prepared statement.
func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	res, err := s.stmt.ExecContext(ctx, args...)
	return res, classify(err)
}

// Close releases the statement.
func (s *Stmt) Close() error {
	return s.stmt.Close()
}
