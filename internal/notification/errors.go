package notification

import (
	"errors"
	"fmt"

	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
)

var (
	ErrMissingRecipient = errors.New("user_data.email is empty")
	ErrNoTemplate       = errors.New("no email template for event type")
)

// DecodeError means a message body could not be parsed. Retrying cannot fix
// it, so the message is dropped.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// HandlerError means processing a known event failed. The message is
// redelivered until the redelivery cap is reached.
type HandlerError struct {
	EventType messaging.EventType
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("failed to handle %s: %v", e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
