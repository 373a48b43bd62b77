package buffer

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/edgeql-io/edgewire/codes"
	edgeerr "github.com/edgeql-io/edgewire/errors"
)

// ErrMissingNulTerminator is thrown when no NUL terminator is found while
// reading a null-terminated message field.
var ErrMissingNulTerminator = errors.New("NUL terminator not found")

// NewMissingNulTerminator wraps ErrMissingNulTerminator with wire metadata.
func NewMissingNulTerminator() error {
	return edgeerr.WithSeverity(edgeerr.WithCode(ErrMissingNulTerminator, codes.BinaryProtocol), edgeerr.LevelFatal)
}

// ErrInsufficientData is thrown when a message field is read past the end of
// the current message.
var ErrInsufficientData = errors.New("insufficient data")

// NewInsufficientData wraps ErrInsufficientData with the number of bytes that
// were actually available.
func NewInsufficientData(length int) error {
	err := fmt.Errorf("length: %d %w", length, ErrInsufficientData)
	return edgeerr.WithSeverity(edgeerr.WithCode(err, codes.BinaryProtocol), edgeerr.LevelFatal)
}

// ErrMessageSizeExceeded is thrown when a message announces a length bigger
// than the reader's configured maximum.
var ErrMessageSizeExceeded = MessageSizeExceeded{Message: "maximum message size exceeded"}

// MessageSizeExceeded is returned when a client announces a message bigger
// than the reader's configured maximum.
type MessageSizeExceeded struct {
	Message string
	Size    int
	Max     int
}

func (err MessageSizeExceeded) Error() string {
	return err.Message
}

func (err MessageSizeExceeded) Is(target error) bool {
	return reflect.TypeOf(target) == reflect.TypeOf(err)
}

// NewMessageSizeExceeded wraps MessageSizeExceeded with wire metadata.
func NewMessageSizeExceeded(max, size int) error {
	err := MessageSizeExceeded{
		Message: fmt.Sprintf("message size %d, bigger than maximum allowed message size %d", size, max),
		Size:    size,
		Max:     max,
	}

	return edgeerr.WithSeverity(edgeerr.WithCode(err, codes.BinaryProtocol), edgeerr.LevelError)
}

// UnwrapMessageSizeExceeded attempts to unwrap the given error as
// MessageSizeExceeded.
func UnwrapMessageSizeExceeded(err error) (result MessageSizeExceeded, _ bool) {
	return result, errors.As(err, &result)
}
