package session

import (
	"time"
)

type QueryStartedEvent struct {
	Query   string
	Params  []any
	Sender  any
	Session DbSession
}

type QueryEndedEvent struct {
	Query        string
	Params       []any
	Sender       any
	Session      DbSession
	ResponseTime time.Duration
	Err          error
}
