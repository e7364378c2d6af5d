/*

This file contains the rebalance planner. It compares the deposited portfolio with a target
allocation and turns the difference into withdraw and deposit actions per protocol/asset slot.

Drift is measured in percentage points of the portfolio: a slot holding 30% against a 25%
target has drifted 5 points. Slots within the threshold are held as they are.

*/

package planner

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/elys-network/yield-optimizer/internal/analyzer"
	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNilPortfolio         = errors.New("portfolio is nil")
	ErrInvalidTarget        = errors.New("target allocations are invalid")
	ErrInvalidThreshold     = errors.New("rebalance threshold is invalid")
	ErrInvalidWithdrawalCap = errors.New("withdrawal cap is invalid")
)

type ActionKind string

const (
	ActionWithdraw ActionKind = "withdraw"
	ActionDeposit  ActionKind = "deposit"
)

// Action moves value into or out of one protocol/asset slot.
type Action struct {
	Kind           ActionKind `json:"kind"`
	ProtocolID     string     `json:"protocolId"`
	AssetID        string     `json:"assetId"`
	CurrentUSD     float64    `json:"currentUsd"`
	TargetUSD      float64    `json:"targetUsd"`
	DeltaUSD       float64    `json:"deltaUsd"` // Negative for withdrawals
	CurrentPercent float64    `json:"currentPercent"`
	TargetPercent  float64    `json:"targetPercent"`
	Drift          float64    `json:"drift"` // Absolute drift in percentage points
}

// Plan is the set of actions that brings the portfolio back to the target allocation.
type Plan struct {
	TotalValue  float64  `json:"totalValue"`
	Threshold   float64  `json:"threshold"`
	MaxDrift    float64  `json:"maxDrift"`
	Withdrawals []Action `json:"withdrawals"`
	Deposits    []Action `json:"deposits"`
	// Capped is set when withdrawals were scaled down to stay under the per-plan cap.
	Capped bool `json:"capped"`
}

// NeedsRebalance reports whether any slot drifted past the threshold.
func (p Plan) NeedsRebalance() bool {
	return len(p.Withdrawals) > 0 || len(p.Deposits) > 0
}

// Options tune plan generation.
type Options struct {
	// Threshold is the drift, in percentage points, a slot may have before it is acted on.
	Threshold float64
	// MaxWithdrawalPercent caps the total withdrawn value as a percentage of the portfolio.
	// Zero means no cap. Deposits are never capped.
	MaxWithdrawalPercent float64
}

var hundred = decimal.NewFromInt(100)

type slot struct {
	protocolID string
	assetID    string
	current    decimal.Decimal
	targetPct  decimal.Decimal
}

func slotKey(protocolID, assetID string) string {
	return protocolID + "/" + assetID
}

// GeneratePlan compares the portfolio against the target allocation.
// The portfolio value is the sum of its positions, not its reported total.
func GeneratePlan(portfolio *types.Portfolio, target []types.Allocation, opts Options) (Plan, error) {
	planLogger := logger.GetForComponent("rebalance_planner")

	// ===== INPUT VALIDATION =====
	if portfolio == nil {
		return Plan{}, ErrNilPortfolio
	}
	if err := analyzer.ValidateAllocations(target); err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	if opts.Threshold < 0 || opts.Threshold > 100 {
		return Plan{}, fmt.Errorf("%w: %f", ErrInvalidThreshold, opts.Threshold)
	}
	if opts.MaxWithdrawalPercent < 0 || opts.MaxWithdrawalPercent > 100 {
		return Plan{}, fmt.Errorf("%w: %f", ErrInvalidWithdrawalCap, opts.MaxWithdrawalPercent)
	}
	if err := analyzer.ValidatePortfolio(portfolio); err != nil {
		return Plan{}, err
	}

	plan := Plan{Threshold: opts.Threshold, Withdrawals: []Action{}, Deposits: []Action{}}

	// ===== COLLECT SLOTS =====
	slots := make(map[string]*slot)
	get := func(protocolID, assetID string) *slot {
		key := slotKey(protocolID, assetID)
		s, ok := slots[key]
		if !ok {
			s = &slot{protocolID: protocolID, assetID: assetID}
			slots[key] = s
		}
		return s
	}

	total := decimal.Zero
	for _, pos := range portfolio.Assets {
		v := decimal.NewFromFloat(pos.Value)
		total = total.Add(v)
		s := get(pos.ProtocolID, pos.AssetID)
		s.current = s.current.Add(v)
	}
	for _, a := range target {
		s := get(a.ProtocolID, a.AssetID)
		s.targetPct = s.targetPct.Add(decimal.NewFromFloat(a.Percentage))
	}

	if !total.IsPositive() {
		planLogger.Info().Msg("Portfolio holds no value, no actions to plan")
		return plan, nil
	}
	plan.TotalValue = total.InexactFloat64()

	// ===== ANALYZE REQUIRED CHANGES =====
	threshold := decimal.NewFromFloat(opts.Threshold)
	maxDrift := decimal.Zero
	for _, s := range slots {
		currentPct := s.current.Div(total).Mul(hundred)
		targetUSD := total.Mul(s.targetPct).Div(hundred)
		delta := targetUSD.Sub(s.current)
		drift := currentPct.Sub(s.targetPct).Abs()
		if drift.GreaterThan(maxDrift) {
			maxDrift = drift
		}

		planLogger.Debug().
			Str("protocol", s.protocolID).
			Str("asset", s.assetID).
			Str("currentPercent", currentPct.StringFixed(2)).
			Str("targetPercent", s.targetPct.StringFixed(2)).
			Str("deltaUSD", delta.StringFixed(2)).
			Msg("Slot rebalancing analysis")

		if !drift.GreaterThan(threshold) {
			continue
		}

		action := Action{
			ProtocolID:     s.protocolID,
			AssetID:        s.assetID,
			CurrentUSD:     s.current.Round(2).InexactFloat64(),
			TargetUSD:      targetUSD.Round(2).InexactFloat64(),
			DeltaUSD:       delta.Round(2).InexactFloat64(),
			CurrentPercent: currentPct.Round(2).InexactFloat64(),
			TargetPercent:  s.targetPct.Round(2).InexactFloat64(),
			Drift:          drift.Round(2).InexactFloat64(),
		}
		if delta.IsNegative() {
			action.Kind = ActionWithdraw
			plan.Withdrawals = append(plan.Withdrawals, action)
		} else {
			action.Kind = ActionDeposit
			plan.Deposits = append(plan.Deposits, action)
		}
	}
	plan.MaxDrift = maxDrift.Round(2).InexactFloat64()

	sortActions(plan.Withdrawals)
	sortActions(plan.Deposits)

	// ===== APPLY WITHDRAWAL LIMITS =====
	if opts.MaxWithdrawalPercent > 0 {
		plan.Withdrawals, plan.Capped = capWithdrawals(plan.Withdrawals, total, decimal.NewFromFloat(opts.MaxWithdrawalPercent), planLogger)
	}

	planLogger.Info().
		Float64("totalValue", plan.TotalValue).
		Float64("maxDrift", plan.MaxDrift).
		Int("withdrawals", len(plan.Withdrawals)).
		Int("deposits", len(plan.Deposits)).
		Bool("capped", plan.Capped).
		Msg("Rebalance plan generated")

	return plan, nil
}

// sortActions orders by the largest move first, then by slot for a stable output.
func sortActions(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		ai, aj := abs(actions[i].DeltaUSD), abs(actions[j].DeltaUSD)
		if ai != aj {
			return ai > aj
		}
		return slotKey(actions[i].ProtocolID, actions[i].AssetID) < slotKey(actions[j].ProtocolID, actions[j].AssetID)
	})
}

// capWithdrawals scales every withdrawal down by the same factor when their total exceeds
// maxPercent of the portfolio.
func capWithdrawals(withdrawals []Action, total, maxPercent decimal.Decimal, planLogger zerolog.Logger) ([]Action, bool) {
	maxUSD := total.Mul(maxPercent).Div(hundred)

	sum := decimal.Zero
	for _, w := range withdrawals {
		sum = sum.Add(decimal.NewFromFloat(w.DeltaUSD).Abs())
	}
	if sum.LessThanOrEqual(maxUSD) {
		return withdrawals, false
	}

	factor := maxUSD.Div(sum)
	planLogger.Warn().
		Str("totalWithdrawalUSD", sum.StringFixed(2)).
		Str("maxWithdrawalUSD", maxUSD.StringFixed(2)).
		Str("scalingFactor", factor.StringFixed(4)).
		Msg("Withdrawal amount exceeds limit, scaling down withdrawal actions")

	capped := make([]Action, len(withdrawals))
	for i, w := range withdrawals {
		delta := decimal.NewFromFloat(w.DeltaUSD).Mul(factor)
		w.DeltaUSD = delta.Round(2).InexactFloat64()
		w.TargetUSD = decimal.NewFromFloat(w.CurrentUSD).Add(delta).Round(2).InexactFloat64()
		capped[i] = w
	}
	return capped, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
