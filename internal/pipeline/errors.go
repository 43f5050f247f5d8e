package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/manifest-network/txpipe/internal/chain"
)

// BuildError means the transaction could not be assembled. It is not retried.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return fmt.Sprintf("failed to build transaction: %v", e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }

// BroadcastError means the wallet or the node rejected the transaction.
type BroadcastError struct {
	Err error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("failed to broadcast transaction: %v", e.Err)
}
func (e *BroadcastError) Unwrap() error { return e.Err }

// TxFailedError means the chain accepted the transaction but executing it failed.
type TxFailedError struct {
	TxHash string
	Code   uint32
	RawLog string
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed with code %d: %s", e.TxHash, e.Code, e.RawLog)
}

// TimeoutError means polling gave up before the transaction was included.
type TimeoutError struct {
	TxHash   string
	Attempts int
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not included after %d attempts (%s)", e.TxHash, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// ParseError means the included transaction's log did not have the expected shape.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}
func (e *ParseError) Unwrap() error { return e.Err }

// ErrorReporter turns a pipeline error into the message shown to the user.
type ErrorReporter func(error) string

// DefaultErrorReporter describes each error kind in plain words.
func DefaultErrorReporter(err error) string {
	var (
		buildErr     *BuildError
		broadcastErr *BroadcastError
		failedErr    *TxFailedError
		timeoutErr   *TimeoutError
		parseErr     *ParseError
	)

	switch {
	case errors.Is(err, chain.ErrUserDenied):
		return "User denied the transaction"
	case errors.As(err, &buildErr):
		return fmt.Sprintf("Failed to create the transaction: %v", buildErr.Err)
	case errors.As(err, &broadcastErr):
		return fmt.Sprintf("Failed to broadcast the transaction: %v", broadcastErr.Err)
	case errors.As(err, &failedErr):
		return fmt.Sprintf("Transaction failed: %s", failedErr.RawLog)
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("Transaction %s was broadcast but not included in time; it may still be processed", timeoutErr.TxHash)
	case errors.As(err, &parseErr):
		return fmt.Sprintf("Transaction succeeded but its result could not be read: %s", parseErr.Reason)
	default:
		return err.Error()
	}
}
