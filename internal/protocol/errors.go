package protocol

import "fmt"

// ErrorType classifies a generic Error reply.
type ErrorType string

const (
	ErrorUnknown                  ErrorType = "Unknown"
	ErrorUnknownMessage           ErrorType = "UnknownMessage"
	ErrorMalformedMessage         ErrorType = "MalformedMessage"
	ErrorNotSupportedMessage      ErrorType = "NotSupportedMessage"
	ErrorInvalidMessageParameters ErrorType = "InvalidMessageParameters"
	ErrorInvalidMessageContext    ErrorType = "InvalidMessageContext"
	ErrorNotFound                 ErrorType = "NotFound"
	ErrorFull                     ErrorType = "Full"
	ErrorInternalError            ErrorType = "InternalError"
)

// Error is the generic protocol error reply. It doubles as a Go error so that
// handlers can return it and have it sent back to the offending peer as is.
type Error struct {
	ErrorType ErrorType `json:"errorType"`
	Message   string    `json:"message"`
	IsFatal   bool      `json:"isFatal,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

// NewError builds an Error reply of the given type.
func NewError(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{ErrorType: errorType, Message: fmt.Sprintf(format, args...)}
}

// ContextError reports a message that is valid but not permitted in the
// sender's current state, e.g. a lobby command from a user in no lobby.
func ContextError(format string, args ...interface{}) *Error {
	return NewError(ErrorInvalidMessageContext, format, args...)
}

// Failure wraps a message family's failure reply (e.g. JoinLobbyFailed) so it
// can travel through error returns and be sent back to the requesting peer.
type Failure struct {
	Reply interface{}
}

// Fail wraps reply as an error.
func Fail(reply interface{}) error {
	return &Failure{Reply: reply}
}

func (f *Failure) Error() string {
	if r, ok := f.Reply.(interface{ FailureReason() string }); ok {
		return fmt.Sprintf("%s: %s", TypeName(f.Reply), r.FailureReason())
	}
	return TypeName(f.Reply)
}
