package wallet

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNoWallet           = errors.New("no injected wallet found")
	ErrNoAccountsReturned = errors.New("no accounts returned from wallet")
	ErrUnexpectedResponse = errors.New("unexpected balance response")
	ErrParseFailed        = errors.New("failed to parse balance")
	ErrUnsupportedHost    = errors.New("wallet connect is only available on the web")
)

// RequestError reports a failed wallet request: the call could not be made,
// was rejected, or resolved to something unusable.
type RequestError struct {
	Method string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s rejected: %v", e.Method, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func requestFailed(method string, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return err
	}
	return &RequestError{Method: method, Err: err}
}
