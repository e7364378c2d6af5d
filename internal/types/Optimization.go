/*

This file contains the types returned by the optimization backend.

*/

package types

// Allocation is one slice of a recommended portfolio.
type Allocation struct {
	ProtocolID  string  `json:"protocolId"`
	AssetID     string  `json:"assetId"`
	Percentage  float64 `json:"percentage"`  // Share of the portfolio, all slices sum to 100
	ExpectedAPY float64 `json:"expectedApy"` // Expected APY of this slice in percent
}

type OptimizationResult struct {
	ExpectedAPY  float64      `json:"expectedApy"`
	ExpectedRisk float64      `json:"expectedRisk"` // Risk score on the 1-10 scale
	Allocations  []Allocation `json:"allocations"`
}

// Clone returns a deep copy of the result.
func (o *OptimizationResult) Clone() *OptimizationResult {
	if o == nil {
		return nil
	}
	out := *o
	if o.Allocations != nil {
		out.Allocations = append([]Allocation(nil), o.Allocations...)
	}
	return &out
}

// RebalanceOutcome records the last rebalance submission made from the store.
type RebalanceOutcome struct {
	Success       bool         `json:"success"`
	TransactionID string       `json:"transactionId,omitempty"`
	Allocations   []Allocation `json:"allocations"`
	Message       string       `json:"message,omitempty"`
}
