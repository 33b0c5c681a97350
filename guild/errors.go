package guild

import (
	"errors"
	"fmt"

	"github.com/kasuganosora/ashenguild/store"
)

// Code identifies a class of guild failure. Transports map codes, not
// messages, onto their wire representation.
type Code string

const (
	CodeInvalidInput     Code = "InvalidInput"
	CodeNotFound         Code = "NotFound"
	CodeGuildNotFound    Code = "GuildNotFound"
	CodeDuplicateName    Code = "DuplicateName"
	CodeAlreadyMember    Code = "AlreadyMember"
	CodeStoreUnavailable Code = "StoreUnavailable"
	CodeInternal         Code = "Internal"
)

// Error is the structured failure returned by Service operations.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that errors.Is(err, ErrInvalidInput) holds for any
// invalid-input error regardless of its message. GuildNotFound also matches
// NotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code || (t.Code == CodeNotFound && e.Code == CodeGuildNotFound)
}

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool { return e.Code == CodeStoreUnavailable }

var (
	ErrInvalidInput     = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "guild not found"}
	ErrGuildNotFound    = &Error{Code: CodeGuildNotFound, Message: "guild not found"}
	ErrDuplicateName    = &Error{Code: CodeDuplicateName, Message: "guild name already exists"}
	ErrAlreadyMember    = &Error{Code: CodeAlreadyMember, Message: "character already in guild"}
	ErrStoreUnavailable = &Error{Code: CodeStoreUnavailable, Message: "guild store unavailable"}
)

func invalidInput(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the Code carried by err, CodeInternal for foreign errors and
// "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// translate turns store failures into the guild taxonomy. Errors already in
// the taxonomy pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, store.ErrStoreUnavailable) {
		return &Error{Code: CodeStoreUnavailable, Message: ErrStoreUnavailable.Message, Err: err}
	}
	return &Error{Code: CodeInternal, Message: "guild store failure", Err: err}
}
