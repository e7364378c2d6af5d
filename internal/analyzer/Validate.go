/*

This file contains the validation applied to data coming back from the gateway before it
is allowed into the application state.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/elys-network/yield-optimizer/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrDuplicateID          = errors.New("duplicate id")
	ErrMissingID            = errors.New("missing id")
	ErrInvalidProtocol      = errors.New("invalid protocol")
	ErrInvalidAsset         = errors.New("invalid asset")
	ErrInvalidPosition      = errors.New("invalid portfolio position")
	ErrEmptyAllocation      = errors.New("allocation list is empty")
	ErrInvalidAllocation    = errors.New("invalid allocation")
	ErrAllocationSumInvalid = errors.New("allocation percentages do not sum to 100")
)

// AllocationSumTolerance is the accepted absolute error when summing allocation percentages.
const AllocationSumTolerance = 0.01

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateProtocols checks ids are present and unique and enums are known.
func ValidateProtocols(protocols []types.Protocol) error {
	seen := make(map[string]struct{}, len(protocols))
	var errs []error
	for i, p := range protocols {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("%w: protocol at index %d", ErrMissingID, i))
			continue
		}
		if _, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: protocol %q", ErrDuplicateID, p.ID))
		}
		seen[p.ID] = struct{}{}
		if !p.Risk.Valid() || !p.Type.Valid() {
			errs = append(errs, fmt.Errorf("%w: %q has risk %q and type %q", ErrInvalidProtocol, p.ID, p.Risk, p.Type))
		}
		if !finite(p.APY) || !finite(p.TVL) || p.TVL < 0 {
			errs = append(errs, fmt.Errorf("%w: %q has non-finite or negative figures", ErrInvalidProtocol, p.ID))
		}
	}
	return errors.Join(errs...)
}

// ValidateAssets checks ids are present and unique and balances and prices are non-negative.
func ValidateAssets(assets []types.Asset) error {
	seen := make(map[string]struct{}, len(assets))
	var errs []error
	for i, a := range assets {
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("%w: asset at index %d", ErrMissingID, i))
			continue
		}
		if _, dup := seen[a.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: asset %q", ErrDuplicateID, a.ID))
		}
		seen[a.ID] = struct{}{}
		if !finite(a.Balance) || !finite(a.Price) || a.Balance < 0 || a.Price < 0 {
			errs = append(errs, fmt.Errorf("%w: %q balance %f price %f", ErrInvalidAsset, a.ID, a.Balance, a.Price))
		}
	}
	return errors.Join(errs...)
}

// ValidatePortfolio checks every position is well formed. The total is not enforced here,
// see CheckPortfolioTotal.
func ValidatePortfolio(portfolio *types.Portfolio) error {
	if portfolio == nil {
		return ErrNilPortfolio
	}
	var errs []error
	if !finite(portfolio.TotalValue) || portfolio.TotalValue < 0 {
		errs = append(errs, fmt.Errorf("%w: total value %f", ErrInvalidPosition, portfolio.TotalValue))
	}
	for i, pos := range portfolio.Assets {
		if pos.ProtocolID == "" || pos.AssetID == "" {
			errs = append(errs, fmt.Errorf("%w: position %d is missing protocol or asset id", ErrInvalidPosition, i))
		}
		if !finite(pos.Value) || !finite(pos.Amount) || pos.Value < 0 || pos.Amount < 0 {
			errs = append(errs, fmt.Errorf("%w: position %d has negative or non-finite amounts", ErrInvalidPosition, i))
		}
	}
	return errors.Join(errs...)
}

// ValidateAllocations checks that every slice is within 0-100 and that they sum to 100.
func ValidateAllocations(allocations []types.Allocation) error {
	if len(allocations) == 0 {
		return ErrEmptyAllocation
	}
	sum := decimal.Zero
	for i, a := range allocations {
		if a.ProtocolID == "" || a.AssetID == "" {
			return fmt.Errorf("%w: slice %d is missing protocol or asset id", ErrInvalidAllocation, i)
		}
		if !finite(a.Percentage) || a.Percentage < 0 || a.Percentage > 100 {
			return fmt.Errorf("%w: slice %d has percentage %f", ErrInvalidAllocation, i, a.Percentage)
		}
		sum = sum.Add(decimal.NewFromFloat(a.Percentage))
	}
	if sum.Sub(hundred).Abs().GreaterThan(decimal.NewFromFloat(AllocationSumTolerance)) {
		return fmt.Errorf("%w: got %s", ErrAllocationSumInvalid, sum.String())
	}
	return nil
}

// ValidateOptimizationResult validates the allocations of an optimization result.
func ValidateOptimizationResult(result *types.OptimizationResult) error {
	if result == nil {
		return fmt.Errorf("%w: result is nil", ErrInvalidAllocation)
	}
	if !finite(result.ExpectedAPY) || !finite(result.ExpectedRisk) {
		return fmt.Errorf("%w: non-finite expected figures", ErrInvalidAllocation)
	}
	return ValidateAllocations(result.Allocations)
}

// AllocationSum returns the exact sum of allocation percentages.
func AllocationSum(allocations []types.Allocation) float64 {
	sum := decimal.Zero
	for _, a := range allocations {
		sum = sum.Add(decimal.NewFromFloat(a.Percentage))
	}
	return sum.InexactFloat64()
}
