/*

This file contains the types for DeFi protocols the optimizer can allocate into.

*/

package types

// RiskTier is the coarse risk classification attached to a protocol.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// ProtocolCategory is the kind of yield a protocol produces.
type ProtocolCategory string

const (
	CategoryLending      ProtocolCategory = "lending"
	CategoryStaking      ProtocolCategory = "staking"
	CategoryYieldFarming ProtocolCategory = "yield-farming"
)

type Protocol struct {
	ID          string           `json:"id"`          // e.g., "ref-finance"
	Name        string           `json:"name"`        // e.g., "Ref Finance"
	Icon        string           `json:"icon"`        // URL of the protocol logo
	Description string           `json:"description"` // Short human readable summary
	APY         float64          `json:"apy"`         // Current yield rate in percent (12.5 = 12.5%)
	TVL         float64          `json:"tvl"`         // Total value locked in USD
	Risk        RiskTier         `json:"risk"`
	Type        ProtocolCategory `json:"type"`
}

// Valid reports whether the tier is one of the known values.
func (r RiskTier) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Valid reports whether the category is one of the known values.
func (c ProtocolCategory) Valid() bool {
	switch c {
	case CategoryLending, CategoryStaking, CategoryYieldFarming:
		return true
	}
	return false
}
