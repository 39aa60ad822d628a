package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol error so callers can decide how to react
type Kind uint8

const (
	// KindValidation errors are raised before any I/O and are never retried.
	KindValidation Kind = iota + 1
	// KindTransport errors are fatal to the Session; the caller must reopen.
	KindTransport
	// KindServer errors carry a non-OK reply or a malformed reply payload.
	KindServer
	// KindBusy is a server error with status BUSY; the request may be retried.
	KindBusy
	// KindAuth errors come from the login flow and are never retried.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindBusy:
		return "busy"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is the only error type returned by the protocol layers
type Error struct {
	Kind   Kind
	Op     string
	Status ReplyStatus // meaningful for KindServer and KindBusy
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Kind == KindServer || e.Kind == KindBusy {
		msg += fmt.Sprintf(" (status %s)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the bare kind sentinels below. ErrServer also matches busy errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindServer && e.Kind == KindBusy
}

// Temporary reports whether retrying the same request may succeed
func (e *Error) Temporary() bool {
	return e.Kind == KindBusy
}

// Kind sentinels, for use with errors.Is
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrTransport  = &Error{Kind: KindTransport}
	ErrServer     = &Error{Kind: KindServer}
	ErrBusy       = &Error{Kind: KindBusy}
	ErrAuth       = &Error{Kind: KindAuth}
)

// Causes wrapped inside an *Error
var (
	ErrUnknownCommand      = errors.New("unknown command")
	ErrUnknownKind         = errors.New("unknown data kind")
	ErrBadAddress          = errors.New("address out of range")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrBadCorrelationID    = errors.New("malformed correlation id")
	ErrBadRange            = errors.New("invalid id range")
	ErrMaskBit             = errors.New("mask bit out of range")
	ErrBadMagic            = errors.New("magic mismatch")
	ErrUnknownStatus       = errors.New("unknown reply status")
	ErrCommandMismatch     = errors.New("reply command does not match request")
	ErrCorrelationMismatch = errors.New("reply correlation id does not match request")
	ErrShortHeader         = errors.New("short header")
	ErrPeerClosed          = errors.New("connection closed by peer")
	ErrNotOpen             = errors.New("session is not open")
	ErrLengthMismatch      = errors.New("payload length mismatch")
	ErrRejected            = errors.New("request rejected")
	ErrUnknownUser         = errors.New("unknown username")
	ErrWrongPassword       = errors.New("wrong password")
	ErrNotAuthenticated    = errors.New("not authenticated")
)

func validationError(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// NewValidationError wraps err as a validation error
func NewValidationError(op string, err error) error {
	return validationError(op, err)
}

// NewTransportError wraps err as a transport error
func NewTransportError(op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// NewAuthError wraps err as an authentication error
func NewAuthError(op string, err error) error {
	return &Error{Kind: KindAuth, Op: op, Err: err}
}

// NewServerError classifies a reply status. BUSY yields KindBusy, anything
// else KindServer.
func NewServerError(op string, status ReplyStatus, err error) error {
	kind := KindServer
	if status == StatusBusy {
		kind = KindBusy
	}
	return &Error{Kind: kind, Op: op, Status: status, Err: err}
}

// KindOf returns the kind of err, or 0 when err is not a protocol error
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
