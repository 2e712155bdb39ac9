package pgx

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"github.com/krew-solutions/itemquery/itemquery/session"
)

// Session represents a database session without transaction
type Session struct {
	*session.QuerySignals
	ctx  context.Context
	conn *pgxpool.Conn
}

func NewSession(ctx context.Context, conn *pgxpool.Conn) *Session {
	return &Session{QuerySignals: session.NewQuerySignals(), ctx: ctx, conn: conn}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Connection() session.DbConnection {
	return session.NewObservedConnection(&connection{ctx: s.ctx, exec: s.conn}, s)
}

func (s *Session) Atomic(callback session.SessionCallback) error {
	tx, err := s.conn.Begin(s.ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "unable to start transaction")
	}
	return run(s.ctx, tx, NewTransactionSession(s.ctx, tx, s.QuerySignals), callback, "transaction")
}

// TransactionSession represents a session inside transaction. Nested
// Atomic calls open savepoints.
type TransactionSession struct {
	*session.QuerySignals
	ctx context.Context
	tx  pgx.Tx
}

func NewTransactionSession(ctx context.Context, tx pgx.Tx, signals *session.QuerySignals) *TransactionSession {
	return &TransactionSession{QuerySignals: signals, ctx: ctx, tx: tx}
}

func (s *TransactionSession) Context() context.Context {
	return s.ctx
}

func (s *TransactionSession) Connection() session.DbConnection {
	return session.NewObservedConnection(&connection{ctx: s.ctx, exec: s.tx}, s)
}

func (s *TransactionSession) Atomic(callback session.SessionCallback) error {
	nestedTx, err := s.tx.Begin(s.ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "unable to start savepoint")
	}
	return run(s.ctx, nestedTx, NewTransactionSession(s.ctx, nestedTx, s.QuerySignals), callback, "savepoint")
}

func run(ctx context.Context, tx pgx.Tx, sess session.Session, callback session.SessionCallback, label string) error {
	err := callback(sess)
	if err != nil {
		if txErr := tx.Rollback(ctx); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}
	if txErr := tx.Commit(ctx); txErr != nil {
		return pkgerrors.Wrapf(txErr, "failed to commit %s", label)
	}
	return nil
}

// executor interface for both *pgxpool.Conn and pgx.Tx
type executor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// connection implements session.DbConnection
type connection struct {
	ctx  context.Context
	exec executor
}

func (c *connection) Exec(query string, args ...any) (session.Result, error) {
	tag, err := c.exec.Exec(c.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return affected(tag.RowsAffected()), nil
}

func (c *connection) Query(query string, args ...any) (session.Rows, error) {
	r, err := c.exec.Query(c.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows{r}, nil
}

func (c *connection) QueryRow(query string, args ...any) session.Row {
	return row{c.exec.QueryRow(c.ctx, query, args...)}
}

type affected int64

func (a affected) LastInsertId() (int64, error) {
	return 0, errors.New("LastInsertId is not supported by this driver")
}

func (a affected) RowsAffected() (int64, error) {
	return int64(a), nil
}

// rows adapts pgx.Rows, whose Close reports nothing, to session.Rows.
type rows struct {
	pgx.Rows
}

func (r rows) Close() error {
	r.Rows.Close()
	return r.Rows.Err()
}

// row defers errors to Scan the way pgx does.
type row struct {
	pgx.Row
}

func (r row) Err() error {
	return nil
}
