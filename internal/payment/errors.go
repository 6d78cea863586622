package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig means the local gateway configuration is missing or invalid.
	ErrConfig = errors.New("btcpay config incomplete")
	// ErrNetwork means the transport failed or timed out.
	ErrNetwork = errors.New("btcpay network error")
	// ErrRemote means BTCPay Server answered with an error or an unreadable body.
	ErrRemote = errors.New("btcpay remote error")
	// ErrUpstream wraps a failed follow-up fetch made while verifying a webhook.
	ErrUpstream = errors.New("btcpay upstream error")
	// ErrBadRequest means the inbound webhook was malformed or unauthenticated.
	ErrBadRequest = errors.New("bad request")
)

// RemoteError is the structured error returned by BTCPay Server.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("btcpay server error [%s]: %s", e.Code, e.Message)
	case e.Message != "":
		return "btcpay server error: " + e.Message
	case e.Code != "":
		return "btcpay server error: " + e.Code
	default:
		return fmt.Sprintf("btcpay server error (HTTP %d)", e.Status)
	}
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// IsStoreNotFound reports whether err carries BTCPay's store-not-found code.
func IsStoreNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == CodeStoreNotFound
}

func badRequest(reason string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, reason)
}

func configError(reason string) error {
	return fmt.Errorf("%w: %s", ErrConfig, reason)
}
