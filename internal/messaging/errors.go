package messaging

import (
	"errors"
	"fmt"
)

var (
	ErrBrokerUnavailable = errors.New("rabbitmq unavailable")
	ErrNotConnected      = errors.New("rabbitmq not connected")
	ErrBrokerClosed      = errors.New("rabbitmq broker closed")
	ErrDeliveriesClosed  = errors.New("rabbitmq delivery channel closed")
)

// ConnectionError reports a failed step while connecting to the broker or
// declaring its topology.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rabbitmq %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
