package vcserrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAlreadyExists Kind = "ALREADY_EXISTS"
	KindNotFound      Kind = "NOT_FOUND"
	KindEmptyStaging  Kind = "EMPTY_STAGING"
	KindStorageIO     Kind = "STORAGE_IO"
	KindCorrupt       Kind = "CORRUPT"
)

// Error is the engine's failure value. Validation failures
// (AlreadyExists, NotFound, EmptyStaging) are expected, recoverable
// conditions; StorageIO and Corrupt indicate a damaged or unwritable
// repository.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func AlreadyExists(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func EmptyStaging(message string) *Error {
	return &Error{Kind: KindEmptyStaging, Message: message}
}

func StorageIO(message string, err error) *Error {
	return &Error{Kind: KindStorageIO, Message: message, Err: err}
}

func Corrupt(message string, err error) *Error {
	return &Error{Kind: KindCorrupt, Message: message, Err: err}
}

// IsKind reports whether any error in err's chain is an *Error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
