/*

This file contains the risk profile type used to steer the optimizer.

*/

package types

const (
	MinRiskLevel = 1
	MaxRiskLevel = 10

	// CustomRiskProfileID is the id of a profile synthesized from a slider value.
	CustomRiskProfileID = "custom"
)

type RiskProfile struct {
	ID             string  `json:"id"`             // e.g., "balanced"
	Name           string  `json:"name"`           // e.g., "Balanced"
	Description    string  `json:"description"`    // e.g., "Moderate risk and returns"
	RiskLevel      int     `json:"riskLevel"`      // 1 (safest) to 10 (riskiest)
	ExpectedReturn float64 `json:"expectedReturn"` // Expected annual return in percent
	MaxDrawdown    float64 `json:"maxDrawdown"`    // Maximum tolerated drawdown in percent
}

// IsCustom reports whether the profile was synthesized rather than picked from the presets.
func (r RiskProfile) IsCustom() bool {
	return r.ID == CustomRiskProfileID
}
