package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired     = sterrors.New("omsn: configuration is required")
	ErrLoggerRequired     = sterrors.New("omsn: logger is required")
	ErrPublisherRequired  = sterrors.New("omsn: publisher is required")
	ErrSubscriberRequired = sterrors.New("omsn: subscriber is required")
	ErrMulticastRequired  = sterrors.New("omsn: multicast connection is required")
	ErrKeyRequired        = sterrors.New("omsn: key is required")
	ErrInboundClosed      = sterrors.New("omsn: inbound stream closed")
	ErrMessengerClosed    = sterrors.New("omsn: messenger is closed")
	ErrDatagramTooLarge   = sterrors.New("omsn: datagram exceeds transport message size")
)

// SetupError marks a failure during bridge construction. Setup failures are
// fatal to the process; everything after setup is recovered locally.
type SetupError struct {
	Stage string
	Err   error
}

func (e SetupError) Error() string {
	return fmt.Sprintf("omsn: setup %s: %v", e.Stage, e.Err)
}

func (e SetupError) Unwrap() error {
	return e.Err
}

// Setup wraps err as a SetupError for the given stage. A nil err stays nil.
func Setup(stage string, err error) error {
	if err == nil {
		return nil
	}
	return SetupError{Stage: stage, Err: err}
}
