package realtime

import (
	"errors"
	"fmt"
)

// ErrGone means the subscriber no longer exists and should be removed from
// the registry. Every other delivery error is transient.
var ErrGone = errors.New("subscriber gone")

var (
	ErrUnknownClient = errors.New("unknown sse client")
	ErrBufferFull    = errors.New("sse outbound buffer full")
	ErrNoTransport   = errors.New("no transport for subscriber")
)

type DeliveryError struct {
	ConnectionID string
	Transport    string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s via %s: %v", e.ConnectionID, e.Transport, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func gone(transport, connectionID string, cause error) error {
	if cause == nil {
		cause = ErrGone
	} else {
		cause = fmt.Errorf("%w: %v", ErrGone, cause)
	}
	return &DeliveryError{ConnectionID: connectionID, Transport: transport, Err: cause}
}

func transient(transport, connectionID string, cause error) error {
	return &DeliveryError{ConnectionID: connectionID, Transport: transport, Err: cause}
}
