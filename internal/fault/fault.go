// Package fault defines the closed set of outcomes a dispatched panel command
// can fail with. Every layer below the Discord adapter returns *Error values so
// callers switch on Kind instead of parsing messages.
package fault

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxDetail caps remote detail text carried by an Error.
const MaxDetail = 500

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	NotConfigured
	NoTargetConfigured
	NotFound
	Forbidden
	Conflict
	BadGateway
	Unreachable
	RemoteError
	PersistenceError
	InvalidInput
	AliasNotFound
)

var kindNames = map[Kind]string{
	Unknown:            "unknown",
	NotConfigured:      "not_configured",
	NoTargetConfigured: "no_target_configured",
	NotFound:           "not_found",
	Forbidden:          "forbidden",
	Conflict:           "conflict",
	BadGateway:         "bad_gateway",
	Unreachable:        "unreachable",
	RemoteError:        "remote_error",
	PersistenceError:   "persistence_error",
	InvalidInput:       "invalid_input",
	AliasNotFound:      "alias_not_found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Op names the action ("start", "status",
// "set_alias"), Target the canonical server ID or alias it was aimed at.
type Error struct {
	Kind   Kind
	Op     string
	Target string
	Status int    // HTTP status, 0 when no response was received
	Detail string // remote or local detail, at most MaxDetail characters
	Err    error
}

// New returns an Error of the given kind.
func New(kind Kind, op string, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: Truncate(detail, MaxDetail)}
}

// Wrap classifies err under kind, keeping it reachable through errors.Unwrap.
func Wrap(kind Kind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	if err != nil {
		e.Detail = Truncate(err.Error(), MaxDetail)
	}
	return e
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Target != "" {
		msg += " (" + e.Target + ")"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" [HTTP %d]", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, Unknown otherwise.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
