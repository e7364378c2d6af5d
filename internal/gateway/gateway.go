/*

This file contains the Remote Data Gateway contract and the error type shared by its
implementations.

Reads are idempotent and may be retried. ExecuteRebalance is not: a repeated call can
submit twice, so implementations never retry it and callers must not either.

*/

package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/elys-network/yield-optimizer/internal/analyzer"
	"github.com/elys-network/yield-optimizer/internal/types"
)

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks github.com/elys-network/yield-optimizer/internal/gateway Gateway

// Gateway is the source of protocol, balance and optimization data.
type Gateway interface {
	ListProtocols(ctx context.Context) ([]types.Protocol, error)
	ListUserAssets(ctx context.Context, accountID string) ([]types.Asset, error)
	GetUserPortfolio(ctx context.Context, accountID string) (*types.Portfolio, error)
	OptimizePortfolio(ctx context.Context, accountID string, riskLevel int) (*types.OptimizationResult, error)
	ExecuteRebalance(ctx context.Context, accountID string, allocations []types.Allocation) (bool, error)
}

// Error definitions for zero-tolerance error handling
var (
	ErrEmptyAccountID   = errors.New("account id is empty")
	ErrInvalidRiskLevel = errors.New("risk level must be between 1 and 10")
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// Error is returned by gateway implementations. Kind tells the store how to present it.
type Error struct {
	Op         string
	Kind       types.ErrorKind
	StatusCode int // HTTP status, zero when the request never got a response
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, kind types.ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Classify maps any error from a gateway or wallet call to the kind stored in a Result.
func Classify(err error) types.ErrorKind {
	if err == nil {
		return types.KindNone
	}
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Kind != types.KindNone {
		return gwErr.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.KindTimeout
	case errors.Is(err, context.Canceled):
		return types.KindCanceled
	case errors.Is(err, ErrEmptyAccountID), errors.Is(err, ErrInvalidRiskLevel):
		return types.KindInvalidInput
	case isValidationError(err):
		return types.KindInvalidData
	}
	return types.KindNetwork
}

func isValidationError(err error) bool {
	for _, target := range []error{
		analyzer.ErrDuplicateID,
		analyzer.ErrMissingID,
		analyzer.ErrInvalidProtocol,
		analyzer.ErrInvalidAsset,
		analyzer.ErrInvalidPosition,
		analyzer.ErrNilPortfolio,
		analyzer.ErrEmptyAllocation,
		analyzer.ErrInvalidAllocation,
		analyzer.ErrAllocationSumInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func checkAccount(accountID string) error {
	if accountID == "" {
		return ErrEmptyAccountID
	}
	return nil
}

func checkRiskLevel(level int) error {
	if level < types.MinRiskLevel || level > types.MaxRiskLevel {
		return fmt.Errorf("%w: got %d", ErrInvalidRiskLevel, level)
	}
	return nil
}
