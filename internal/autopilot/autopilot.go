package autopilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/metrics"
	"github.com/elys-network/yield-optimizer/internal/planner"
	"github.com/elys-network/yield-optimizer/internal/store"
	"github.com/elys-network/yield-optimizer/internal/types"
)

var (
	ErrNilStore        = errors.New("store cannot be nil")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// Cycle results, also used as metric labels.
const (
	ResultSkipped    = "skipped"
	ResultInRange    = "in_range"
	ResultRebalanced = "rebalanced"
	ResultFailed     = "failed"
)

// Store is the part of the application store the autopilot drives.
type Store interface {
	Snapshot() store.State
	Settings(ctx context.Context) types.Result[types.Settings]
	FetchUserPortfolio(ctx context.Context) types.Result[*types.Portfolio]
	RunOptimization(ctx context.Context, riskLevel int) types.Result[*types.OptimizationResult]
	RebalancePlan(opts planner.Options) types.Result[planner.Plan]
	ExecuteRebalance(ctx context.Context) types.Result[types.RebalanceOutcome]
}

// Config holds the configuration for creating an Autopilot.
type Config struct {
	Store Store
	// Interval between cycles.
	Interval time.Duration
}

// Report describes one cycle.
type Report struct {
	ID        string                  `json:"id"`
	Account   string                  `json:"account,omitempty"`
	Result    string                  `json:"result"`
	Reason    string                  `json:"reason,omitempty"`
	Plan      *planner.Plan           `json:"plan,omitempty"`
	Rebalance *types.RebalanceOutcome `json:"rebalance,omitempty"`
	StartedAt time.Time               `json:"startedAt"`
	Duration  time.Duration           `json:"duration"`
}

// Autopilot periodically re-optimizes the signed-in account and rebalances it when the
// portfolio has drifted past the account's threshold and auto-rebalance is enabled.
type Autopilot struct {
	logger   zerolog.Logger
	store    Store
	interval time.Duration

	mu         sync.Mutex
	cycleCount int
	last       *Report
}

func New(cfg Config) (*Autopilot, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, cfg.Interval)
	}
	return &Autopilot{
		logger:   logger.GetForComponent("autopilot"),
		store:    cfg.Store,
		interval: cfg.Interval,
	}, nil
}

// RunLoop runs a cycle every interval until ctx is done. The first cycle waits one interval
// so startup authentication and data loading are not raced.
func (a *Autopilot) RunLoop(ctx context.Context) {
	a.logger.Info().Dur("interval", a.interval).Msg("Starting autopilot loop")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Autopilot loop stopped due to context cancellation")
			return
		case <-ticker.C:
			a.RunCycle(ctx)
		}
	}
}

// LastReport returns the report of the most recent cycle, or nil before the first one.
func (a *Autopilot) LastReport() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return nil
	}
	r := *a.last
	return &r
}

// RunCycle executes one cycle and returns its report.
func (a *Autopilot) RunCycle(ctx context.Context) Report {
	a.mu.Lock()
	a.cycleCount++
	cycle := a.cycleCount
	a.mu.Unlock()

	report := Report{ID: uuid.NewString(), StartedAt: time.Now()}
	cycleLogger := a.logger.With().Str("cycle_id", report.ID).Int("cycle", cycle).Logger()

	a.runCycle(ctx, &report, cycleLogger)

	report.Duration = time.Since(report.StartedAt)
	metrics.RecordAutopilotCycle(report.Result)

	event := cycleLogger.Info()
	if report.Result == ResultFailed {
		event = cycleLogger.Warn()
	}
	event.Str("result", report.Result).
		Str("reason", report.Reason).
		Str("account", report.Account).
		Dur("duration", report.Duration).
		Msg("Autopilot cycle completed")

	a.mu.Lock()
	a.last = &report
	a.mu.Unlock()
	return report
}

func (a *Autopilot) runCycle(ctx context.Context, report *Report, cycleLogger zerolog.Logger) {
	// --- Step 1: Account and settings ---
	snap := a.store.Snapshot()
	if !snap.IsAuthenticated || snap.AccountID == "" {
		skip(report, "no account signed in")
		return
	}
	report.Account = snap.AccountID

	settings := a.store.Settings(ctx)
	if !settings.IsOK() {
		fail(report, "load settings", settings.Kind, settings.Message)
		return
	}
	if !settings.Value.AutoRebalance {
		skip(report, "auto-rebalance disabled")
		return
	}

	// --- Step 2: Fresh portfolio and target allocation ---
	cycleLogger.Debug().Msg("Refreshing portfolio")
	if res := a.store.FetchUserPortfolio(ctx); !res.IsOK() {
		fail(report, "fetch portfolio", res.Kind, res.Message)
		return
	}

	level := snap.RiskProfile.RiskLevel
	cycleLogger.Debug().Int("riskLevel", level).Msg("Running optimization")
	if res := a.store.RunOptimization(ctx, level); !res.IsOK() {
		fail(report, "optimize", res.Kind, res.Message)
		return
	}

	// --- Step 3: Plan ---
	planRes := a.store.RebalancePlan(planner.Options{Threshold: float64(settings.Value.RebalanceThreshold)})
	if !planRes.IsOK() {
		fail(report, "plan", planRes.Kind, planRes.Message)
		return
	}
	plan := planRes.Value
	report.Plan = &plan
	metrics.SetPortfolioDrift(plan.MaxDrift)

	if !plan.NeedsRebalance() {
		report.Result = ResultInRange
		report.Reason = fmt.Sprintf("max drift %.2f within threshold %d", plan.MaxDrift, settings.Value.RebalanceThreshold)
		return
	}

	cycleLogger.Info().
		Float64("maxDrift", plan.MaxDrift).
		Int("withdrawals", len(plan.Withdrawals)).
		Int("deposits", len(plan.Deposits)).
		Msg("Portfolio drifted past threshold, rebalancing")

	// --- Step 4: Execute ---
	res := a.store.ExecuteRebalance(ctx)
	outcome := res.Value
	report.Rebalance = &outcome
	if !res.IsOK() {
		fail(report, "rebalance", res.Kind, res.Message)
		return
	}
	report.Result = ResultRebalanced
}

func skip(report *Report, reason string) {
	report.Result = ResultSkipped
	report.Reason = reason
}

func fail(report *Report, step string, kind types.ErrorKind, message string) {
	// Stale and empty results are not failures of the cycle, the state moved on.
	if kind == types.KindStale || kind == types.KindNoAccount {
		skip(report, step+": "+string(kind))
		return
	}
	report.Result = ResultFailed
	report.Reason = step + ": " + message
	if message == "" {
		report.Reason = step + ": " + string(kind)
	}
}
