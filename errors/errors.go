package errors

import "fmt"

var (
	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrEmptyWords     = fmt.Errorf("no words have been found")
	ErrInvalidPayload = fmt.Errorf("invalid payload")

	ErrNotFound           = fmt.Errorf("not found")
	ErrUserAlreadyExists  = fmt.Errorf("email already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrInvalidRequest     = fmt.Errorf("invalid request")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrUnauthenticated    = fmt.Errorf("authentication required")
	ErrForbidden          = fmt.Errorf("forbidden")

	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrBackpressure     = fmt.Errorf("connection buffer full")
)
