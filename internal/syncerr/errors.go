// Package syncerr defines the transport-independent error taxonomy used
// across the Room Synchronization Engine. Room Manager owns this taxonomy;
// service-layer code only translates it to transport-specific codes.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind is one of the seven error kinds the engine surfaces to callers.
type Kind string

const (
	NotFound           Kind = "NOT_FOUND"
	Conflict           Kind = "CONFLICT"
	Unauthorized       Kind = "UNAUTHORIZED"
	FailedPrecondition Kind = "FAILED_PRECONDITION"
	Invalid            Kind = "INVALID"
	Transient          Kind = "TRANSIENT"
	Internal           Kind = "INTERNAL"
)

// Err is the concrete error type carried through the engine. It never
// exposes raw database or transport strings to the caller; those belong in
// Original and are only ever logged, not surfaced.
type Err struct {
	Kind     Kind
	Message  string
	Original error
	Details  map[string]any
}

func (e *Err) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Original)
	}
	return e.Message
}

func (e *Err) Unwrap() error {
	return e.Original
}

// WithDetails attaches additional structured context, merging into any
// existing details.
func (e *Err) WithDetails(details map[string]any) *Err {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// New builds an Err of the given kind.
func New(kind Kind, message string, original error) *Err {
	return &Err{Kind: kind, Message: message, Original: original}
}

func NewNotFound(message string, original error) *Err {
	return New(NotFound, message, original)
}

func NewConflict(message string, original error) *Err {
	return New(Conflict, message, original)
}

func NewUnauthorized(message string, original error) *Err {
	return New(Unauthorized, message, original)
}

func NewFailedPrecondition(message string, original error) *Err {
	return New(FailedPrecondition, message, original)
}

func NewInvalid(message string, original error) *Err {
	return New(Invalid, message, original)
}

func NewTransient(message string, original error) *Err {
	return New(Transient, message, original)
}

func NewInternal(message string, original error) *Err {
	return New(Internal, message, original)
}

// KindOf extracts the Kind of err, defaulting to Internal for errors that
// did not originate from this package (an invariant violation, not an
// expected failure mode).
func KindOf(err error) Kind {
	var e *Err
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Sentinel errors for the conditions the Room Synchronization Engine needs
// to test with errors.Is. Constructors above wrap these as Original so
// callers can match with errors.Is(err, syncerr.ErrRoomNotFound) instead of
// string-comparing messages.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomCodeConflict   = errors.New("room code already in use")
	ErrRoomInactive       = errors.New("room is not active")
	ErrMemberNotFound     = errors.New("member not found")
	ErrMemberNotActive    = errors.New("member is not an active participant")
	ErrNotHost            = errors.New("caller is not the room host")
	ErrHostAlreadyPresent = errors.New("room already has a connected host")
	ErrQueuePositionGone  = errors.New("queue position does not exist")
	ErrAuthRequired       = errors.New("authentication required")
)

// NotFoundf wraps a sentinel not-found error with a caller-facing message.
func NotFoundf(sentinel error, format string, args ...any) *Err {
	return &Err{Kind: NotFound, Message: fmt.Sprintf(format, args...), Original: sentinel}
}

// Conflictf wraps a sentinel conflict error with a caller-facing message.
func Conflictf(sentinel error, format string, args ...any) *Err {
	return &Err{Kind: Conflict, Message: fmt.Sprintf(format, args...), Original: sentinel}
}

// Unauthorizedf wraps a sentinel unauthorized error with a caller-facing message.
func Unauthorizedf(sentinel error, format string, args ...any) *Err {
	return &Err{Kind: Unauthorized, Message: fmt.Sprintf(format, args...), Original: sentinel}
}

// FailedPreconditionf wraps a sentinel precondition error with a caller-facing message.
func FailedPreconditionf(sentinel error, format string, args ...any) *Err {
	return &Err{Kind: FailedPrecondition, Message: fmt.Sprintf(format, args...), Original: sentinel}
}
