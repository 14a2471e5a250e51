package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
)

// DBTX is the subset of database/sql used by the repositories.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
//	err := postgres.WithTx(ctx, db, func(ctx context.Context, tx postgres.DBTX) error {
//	    return postgres.NewPotRepository(tx).Delete(ctx, potID, userID)
//	})
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit transaction: %w", cerr)
		}
	}()

	return fn(ctx, tx)
}

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// mapError translates driver errors into apperr kinds. notFound is used as
// the message for sql.ErrNoRows and conflict for unique violations.
func mapError(err error, op, notFound, conflict string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return apperr.New(apperr.NotFound, notFound)
	case IsUniqueViolation(err) && conflict != "":
		return apperr.Wrap(apperr.Conflict, conflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// checkAffected returns a NotFound error when res touched no rows.
func checkAffected(res sql.Result, op, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, notFound)
	}
	return nil
}

// setClause accumulates "col = $n" fragments for partial updates.
type setClause struct {
	cols []string
	args []interface{}
}

func (s *setClause) add(col string, val interface{}) {
	s.args = append(s.args, val)
	s.cols = append(s.cols, fmt.Sprintf("%s = $%d", col, len(s.args)))
}

func (s *setClause) empty() bool { return len(s.cols) == 0 }

// sql renders the SET list; the next placeholder index is len(args)+1.
func (s *setClause) sql() string { return strings.Join(s.cols, ", ") }

// arg appends a WHERE argument and returns its placeholder.
func (s *setClause) arg(val interface{}) string {
	s.args = append(s.args, val)
	return fmt.Sprintf("$%d", len(s.args))
}
