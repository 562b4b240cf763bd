package runtime

import (
	"moonshop/contract"
	"moonshop/domain/chat"

	"github.com/google/uuid"
)

type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the relay-side state of one client connection.
// It is only touched by the goroutine reading that connection.
type Session struct {
	ID     string
	conn   contract.Connection
	state  SessionState
	userID chat.UserID
}

func newSession(conn contract.Connection) *Session {
	return &Session{ID: uuid.NewString(), conn: conn, state: StateUnauthenticated}
}

func (s *Session) State() SessionState {
	return s.state
}

// UserID is the bound user, zero until authenticated.
func (s *Session) UserID() chat.UserID {
	return s.userID
}
