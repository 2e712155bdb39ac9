package session

import (
	"time"

	"github.com/krew-solutions/itemquery/itemquery/logger"
	"github.com/krew-solutions/itemquery/itemquery/signals"
)

// QuerySignals holds the query signals shared by a session and the
// sessions nested in it.
type QuerySignals struct {
	started signals.Signal[QueryStartedEvent]
	ended   signals.Signal[QueryEndedEvent]
}

func NewQuerySignals() *QuerySignals {
	return &QuerySignals{
		started: signals.NewSignal[QueryStartedEvent](),
		ended:   signals.NewSignal[QueryEndedEvent](),
	}
}

func (s *QuerySignals) OnQueryStarted() signals.Signal[QueryStartedEvent] {
	return s.started
}

func (s *QuerySignals) OnQueryEnded() signals.Signal[QueryEndedEvent] {
	return s.ended
}

// NewObservedConnection notifies the signals of sess around every
// statement run through conn. Observer failures are logged, never returned.
func NewObservedConnection(conn DbConnection, sess DbSession) DbConnection {
	return &observedConnection{conn: conn, session: sess}
}

type observedConnection struct {
	conn    DbConnection
	session DbSession
}

func (c *observedConnection) started(query string, args []any) time.Time {
	err := c.session.OnQueryStarted().Notify(QueryStartedEvent{
		Query: query, Params: args, Sender: c, Session: c.session,
	})
	if err != nil {
		logger.Logger.Warnw("query started observer failed", "query", query, "error", err)
	}
	return time.Now()
}

func (c *observedConnection) ended(query string, args []any, start time.Time, queryErr error) {
	err := c.session.OnQueryEnded().Notify(QueryEndedEvent{
		Query: query, Params: args, Sender: c, Session: c.session,
		ResponseTime: time.Since(start), Err: queryErr,
	})
	if err != nil {
		logger.Logger.Warnw("query ended observer failed", "query", query, "error", err)
	}
}

func (c *observedConnection) Exec(query string, args ...any) (Result, error) {
	start := c.started(query, args)
	r, err := c.conn.Exec(query, args...)
	c.ended(query, args, start, err)
	return r, err
}

func (c *observedConnection) Query(query string, args ...any) (Rows, error) {
	start := c.started(query, args)
	rows, err := c.conn.Query(query, args...)
	c.ended(query, args, start, err)
	return rows, err
}

func (c *observedConnection) QueryRow(query string, args ...any) Row {
	start := c.started(query, args)
	row := c.conn.QueryRow(query, args...)
	c.ended(query, args, start, row.Err())
	return row
}
