package lot

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDocument marks a document that cannot be built. The lot is
	// skipped; whatever was loaded before stays in place.
	ErrMalformedDocument = errors.New("malformed lot document")

	// ErrIndexOutOfRange marks a dictionary reference with no entry. It means
	// the document is corrupt or from an incompatible writer and must not be
	// papered over.
	ErrIndexOutOfRange = errors.New("lot dictionary index out of range")
)

type MalformedError struct {
	Field string
	Err   error
}

func (e *MalformedError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %v", ErrMalformedDocument, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrMalformedDocument, e.Field, e.Err)
}

func (e *MalformedError) Unwrap() []error { return []error{ErrMalformedDocument, e.Err} }

func malformed(field string, format string, args ...any) error {
	return &MalformedError{Field: field, Err: fmt.Errorf(format, args...)}
}

type IndexError struct {
	Field string
	Dict  string
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%v: %s: %s index %d, dictionary has %d entries", ErrIndexOutOfRange, e.Field, e.Dict, e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// IsFatal reports whether err must stop the loader rather than just skip
// the lot.
func IsFatal(err error) bool { return errors.Is(err, ErrIndexOutOfRange) }
