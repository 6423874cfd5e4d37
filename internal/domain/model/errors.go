package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a client can be told about.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"        // missing/invalid/malformed credential
	KindProtocol    ErrorKind = "protocol"    // unparseable envelope, unknown type, missing field
	KindState       ErrorKind = "state"       // action needs auth or a room first
	KindMembership  ErrorKind = "membership"  // room exists but caller is not a durable member
	KindNotFound    ErrorKind = "not_found"   // room/user/message absent
	KindPersistence ErrorKind = "persistence" // external store call failed
	KindInternal    ErrorKind = "internal"
)

// Auth failure reasons reported back to the client verbatim.
const (
	ReasonMissingToken    = "missing token"
	ReasonInvalidToken    = "invalid token"
	ReasonExpiredToken    = "token expired"
	ReasonMissingUsername = "token has no username"
)

// Error is the single typed error of the hub.
// Message is safe to show to the client; Err keeps the cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can write errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func NewAuthError(reason string) *Error { return &Error{Kind: KindAuth, Message: reason} }

func NewProtocolError(msg string) *Error { return &Error{Kind: KindProtocol, Message: msg} }

func NewStateError(msg string) *Error { return &Error{Kind: KindState, Message: msg} }

func NewMembershipError(msg string) *Error { return &Error{Kind: KindMembership, Message: msg} }

func NewNotFoundError(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func NewPersistenceError(msg string, cause error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Err: cause}
}

// KindOf reports the kind of err, KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the text that may be sent to a client for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
