/*

This file contains the canonical risk profiles offered by the optimizer.

The risk slider runs from 1 to 10. A level that lands within one step of a canonical profile
snaps to it; anything else becomes a custom profile (see analyzer.SelectRiskProfile).

*/

package config

import (
	"github.com/elys-network/yield-optimizer/internal/types"
)

// DefaultRiskProfiles lists the canonical profiles, ordered by risk level.
// The order matters: when two profiles are equally close to a slider level the earlier one wins.
var DefaultRiskProfiles = []types.RiskProfile{
	{
		ID:          "conservative",
		Name:        "Conservative",
		Description: "Low risk, stable returns",
		RiskLevel:   2,
		// Rationale: mostly staking and stablecoin lending, small drawdowns.
		ExpectedReturn: 5,
		MaxDrawdown:    5,
	},
	{
		ID:          "balanced",
		Name:        "Balanced",
		Description: "Moderate risk and returns",
		RiskLevel:   5,
		// Rationale: mix of lending and blue-chip farms.
		ExpectedReturn: 10,
		MaxDrawdown:    15,
	},
	{
		ID:          "aggressive",
		Name:        "Aggressive",
		Description: "High risk, high potential returns",
		RiskLevel:   8,
		// Rationale: yield farming on smaller DEXes, large swings expected.
		ExpectedReturn: 18,
		MaxDrawdown:    30,
	},
}

// DefaultRiskProfileID is the profile a fresh store starts with.
const DefaultRiskProfileID = "balanced"

// Custom profile values are derived from the slider level.
const (
	CustomReturnPerLevel   = 2.0
	CustomDrawdownPerLevel = 3.0
	CustomProfileName      = "Custom"
	CustomProfileDesc      = "Personalized risk profile"
)

// DefaultRiskProfile returns a copy of the starting profile.
func DefaultRiskProfile() types.RiskProfile {
	for _, p := range DefaultRiskProfiles {
		if p.ID == DefaultRiskProfileID {
			return p
		}
	}
	return DefaultRiskProfiles[0]
}
