//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"moonshop/domain/chat"
	"moonshop/domain/event"
	"moonshop/domain/notification"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// It is used for logging during supervision so workers don't need to name themselves.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is the outbound half of a live client session.
// Implementations must be pointer types: the registry compares them by identity.
type Connection interface {
	Send(ctx context.Context, e chat.ServerEvent) error
}

type IRegistry interface {
	Bind(userID chat.UserID, conn Connection)
	Unbind(userID chat.UserID, conn Connection) bool
	Lookup(userID chat.UserID) (Connection, bool)
}

type Notifier interface {
	Notify(ctx context.Context, userID chat.UserID, message string, kind notification.Kind) error
}

type Moderator interface {
	Censor(text string) (string, []string)
}

// TokenVerifier resolves a bearer token to the user it was issued for.
type TokenVerifier interface {
	Verify(token string) (chat.UserID, error)
}
