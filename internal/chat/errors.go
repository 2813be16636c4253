package chat

import "errors"

// Error kinds reported back to the originating connection. None of them end
// the connection.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrAlreadyInUse    = errors.New("already in use")
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// RequestError is a failed request. Reason is the text sent to the client in
// an error record; Kind is one of the sentinel errors above.
type RequestError struct {
	Kind   error
	Reason string
}

func (e *RequestError) Error() string { return e.Reason }

func (e *RequestError) Unwrap() error { return e.Kind }

func newRequestError(kind error, reason string) *RequestError {
	return &RequestError{Kind: kind, Reason: reason}
}

var (
	errInvalidUsername = newRequestError(ErrInvalidInput, "Invalid username.")
	errUsernameTaken   = newRequestError(ErrAlreadyInUse, "Username already in use. Choose another.")
	errInvalidRoom     = newRequestError(ErrInvalidInput, "Invalid room name.")
	errRoomMissing     = newRequestError(ErrNotFound, "Room does not exist.")
	errNoUsername      = newRequestError(ErrUnauthenticated, "Set username before joining a room.")
	errNotInRoom       = newRequestError(ErrUnauthenticated, "You must join a room first.")
)
