package sweepcore

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrKind is the closed taxonomy of cycle-level failures.
type ErrKind string

const (
	KindInsufficientFunds ErrKind = "insufficient_funds"
	KindEmptyBalance      ErrKind = "empty_balance"
	KindContractRevert    ErrKind = "contract_revert"
	KindTransport         ErrKind = "transport"
	KindUnknown           ErrKind = "unknown"
)

// ErrEmptyBalance is returned when there is nothing to sweep.
var ErrEmptyBalance = errors.New("token balance is empty, nothing to transfer")

// InsufficientFundsError reports that the funder cannot cover the gas fee
// transfer. Amounts are in wei.
type InsufficientFundsError struct {
	Address   common.Address
	Required  *big.Int
	Balance   *big.Int
	Shortfall *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf(
		"insufficient ETH balance: deposit at least %s ETH to %s (total required %s ETH, current balance %s ETH)",
		FormatEthAmount(e.Shortfall, 8), e.Address.Hex(),
		FormatEthAmount(e.Required, 8), FormatEthAmount(e.Balance, 8),
	)
}

// RevertError wraps a node error that carries an execution revert.
type RevertError struct {
	Reason string
	Err    error
}

func (e *RevertError) Error() string { return "contract reverted: " + e.Reason }
func (e *RevertError) Unwrap() error { return e.Err }

// TransportError wraps any other RPC / network failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// wrapRPC converts a raw node error into the taxonomy: reverts become
// RevertError, everything else TransportError.
func wrapRPC(op string, err error) error {
	if err == nil {
		return nil
	}
	if reason, ok := revertReason(err); ok {
		return &RevertError{Reason: reason, Err: err}
	}
	return &TransportError{Op: op, Err: err}
}

func revertReason(err error) (string, bool) {
	s := err.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		return s[i:], true
	}
	return "", false
}

// Classify maps any error raised inside a cycle onto the taxonomy.
func Classify(err error) ErrKind {
	if err == nil {
		return KindUnknown
	}
	var insufficient *InsufficientFundsError
	if errors.As(err, &insufficient) {
		return KindInsufficientFunds
	}
	if errors.Is(err, ErrEmptyBalance) {
		return KindEmptyBalance
	}
	var revert *RevertError
	if errors.As(err, &revert) {
		return KindContractRevert
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return KindTransport
	}
	if _, ok := revertReason(err); ok {
		return KindContractRevert
	}
	return KindUnknown
}
