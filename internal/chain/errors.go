package chain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient funds for transaction")
	ErrTransactionRejected = errors.New("transaction was rejected")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrExecutionReverted   = errors.New("execution reverted")
	ErrNotConfigured       = errors.New("contract address is not configured")
	ErrReadOnly            = errors.New("no operator key configured")
	ErrEventNotFound       = errors.New("expected event not found in receipt")
	ErrInvalidHash         = errors.New("invalid hash")
)

var errorPatterns = []struct {
	needle string
	err    error
}{
	{"insufficient funds", ErrInsufficientFunds},
	{"user rejected", ErrTransactionRejected},
	{"user denied", ErrTransactionRejected},
	{"invalid address", ErrInvalidAddress},
	{"execution reverted", ErrExecutionReverted},
}

// ClassifyError wraps a provider error into one of the package sentinels when
// its message matches a known failure. Unknown errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	for _, p := range errorPatterns {
		if errors.Is(err, p.err) {
			return err
		}
	}
	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(msg, p.needle) {
			return fmt.Errorf("%w: %v", p.err, err)
		}
	}
	return err
}
