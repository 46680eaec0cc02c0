package eepromfs

import "github.com/pkg/errors"

// The five stable protocol error codes. Their numeric values are part of
// the wire contract with callers that only see integers and must never
// change.
const (
	CodeOK                  = 0
	CodeFileAlreadyOpen     = -1
	CodeFileDoesNotExist    = -2
	CodeWrongFileIOType     = -3
	CodeInvalidAccessHandle = -4
	CodeOutOfSpace          = -5
)

// Sentinel errors for the five protocol codes. They are compared with
// errors.Is, so wrapping them with errors.Wrap/fmt.Errorf("%w", ...) for
// added context never loses their identity.
var (
	ErrFileAlreadyOpen     = errors.New("eepromfs: file already open")
	ErrFileDoesNotExist    = errors.New("eepromfs: file does not exist")
	ErrWrongFileIOType     = errors.New("eepromfs: wrong file I/O type")
	ErrInvalidAccessHandle = errors.New("eepromfs: invalid access handle")
	ErrOutOfSpace          = errors.New("eepromfs: out of space")
)

// Code converts any error returned by a Filesystem operation into one of
// the five stable protocol codes, or CodeOK for nil. Errors that aren't
// one of the five sentinels (e.g. a wrapped device I/O failure) return a
// value outside the protocol's range; callers that only expect the five
// documented codes can treat "not one of the five" as a fatal condition.
func Code(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrFileAlreadyOpen):
		return CodeFileAlreadyOpen
	case errors.Is(err, ErrFileDoesNotExist):
		return CodeFileDoesNotExist
	case errors.Is(err, ErrWrongFileIOType):
		return CodeWrongFileIOType
	case errors.Is(err, ErrInvalidAccessHandle):
		return CodeInvalidAccessHandle
	case errors.Is(err, ErrOutOfSpace):
		return CodeOutOfSpace
	default:
		return 1 // not a protocol error; caller should inspect err directly
	}
}
