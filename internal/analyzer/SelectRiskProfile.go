/*

This file contains the function that maps a risk slider level to a risk profile.

*/

package analyzer

import (
	"errors"
	"fmt"

	"github.com/elys-network/yield-optimizer/internal/config"
	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/types"
)

var riskLogger = logger.GetForComponent("risk_selector")

var ErrInvalidRiskLevel = errors.New("risk level out of range")

// snapDistance is how far a slider level may be from a canonical level and still select it.
const snapDistance = 1

// SelectRiskProfile returns the canonical profile closest to level when it is within one
// step of it, and a custom profile derived from level otherwise.
func SelectRiskProfile(level int) (types.RiskProfile, error) {
	return SelectRiskProfileFrom(config.DefaultRiskProfiles, level)
}

// SelectRiskProfileFrom is SelectRiskProfile over an explicit list of canonical profiles.
// Ties keep the profile listed first.
func SelectRiskProfileFrom(profiles []types.RiskProfile, level int) (types.RiskProfile, error) {
	if level < types.MinRiskLevel || level > types.MaxRiskLevel {
		return types.RiskProfile{}, fmt.Errorf("%w: %d (must be between %d and %d)",
			ErrInvalidRiskLevel, level, types.MinRiskLevel, types.MaxRiskLevel)
	}

	if len(profiles) > 0 {
		closest := profiles[0]
		for _, p := range profiles[1:] {
			if absInt(p.RiskLevel-level) < absInt(closest.RiskLevel-level) {
				closest = p
			}
		}
		if absInt(closest.RiskLevel-level) <= snapDistance {
			riskLogger.Debug().
				Int("level", level).
				Str("profile", closest.ID).
				Msg("Risk level snapped to canonical profile")
			return closest, nil
		}
	}

	return CustomRiskProfile(level), nil
}

// CustomRiskProfile builds the synthetic profile for a level that matches no canonical one.
func CustomRiskProfile(level int) types.RiskProfile {
	return types.RiskProfile{
		ID:             types.CustomRiskProfileID,
		Name:           config.CustomProfileName,
		Description:    config.CustomProfileDesc,
		RiskLevel:      level,
		ExpectedReturn: float64(level) * config.CustomReturnPerLevel,
		MaxDrawdown:    float64(level) * config.CustomDrawdownPerLevel,
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
