package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/elys-network/yield-optimizer/internal/autopilot"
	"github.com/elys-network/yield-optimizer/internal/planner"
	"github.com/elys-network/yield-optimizer/internal/state"
	"github.com/elys-network/yield-optimizer/internal/store"
	"github.com/elys-network/yield-optimizer/internal/types"
)

const maxRequestBody = 1 << 20

var startedAt = time.Now()

// stateResponse is the dashboard state plus the theme classes applied by dark mode.
type stateResponse struct {
	store.State
	ThemeClasses []string `json:"themeClasses"`
}

func (ws *WebServer) currentState() stateResponse {
	resp := stateResponse{State: ws.store.Snapshot(), ThemeClasses: []string{}}
	if ws.theme != nil {
		resp.ThemeClasses = ws.theme.Classes()
	}
	return resp
}

// decodeBody reads a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	closed := ws.store.Closed()
	snap := ws.store.Snapshot()

	overallStatus := "OK"
	statusCode := http.StatusOK
	if closed {
		overallStatus = "UNAVAILABLE"
		statusCode = http.StatusServiceUnavailable
	}

	dbStatus := "disabled"
	if ws.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := ws.db.Ping(ctx)
		cancel()
		dbStatus = "OK"
		if err != nil {
			webLogger.Warn().Err(err).Msg("Database health check failed")
			dbStatus = "UNAVAILABLE"
			overallStatus = "DEGRADED"
		}
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(startedAt).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "near-yield-optimizer",
			"version": "1.0.0",
		},
		"store_status": map[string]interface{}{
			"open":          !closed,
			"authenticated": snap.IsAuthenticated,
			"loading":       snap.IsLoading,
		},
		"database_status": dbStatus,
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetState(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.currentState())
}

func (ws *WebServer) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	writeResult(ws, w, ws.store.CheckAuthentication(r.Context()))
}

type connectRequest struct {
	Type types.WalletType `json:"type"`
}

func (ws *WebServer) handleConnectWallet(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, err.Error())
		return
	}
	writeResult(ws, w, ws.store.Connect(r.Context(), req.Type))
}

// handleNearCallback is the success/failure URL the NEAR wallet redirects back to.
func (ws *WebServer) handleNearCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("failed") != "" || q.Get("errorCode") != "" {
		webLogger.Warn().Str("errorCode", q.Get("errorCode")).Msg("NEAR wallet sign-in was not completed")
		ws.writeErrorResponse(w, http.StatusConflict, types.KindRejected, "wallet sign-in was cancelled")
		return
	}
	accountID := q.Get("account_id")
	if accountID == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, "account_id is required")
		return
	}
	writeResult(ws, w, ws.store.CompleteNearSignIn(r.Context(), accountID, q.Get("public_key")))
}

func (ws *WebServer) handleDisconnectWallet(w http.ResponseWriter, r *http.Request) {
	writeResult(ws, w, ws.store.Disconnect(r.Context()))
}

func (ws *WebServer) handleGetNetwork(w http.ResponseWriter, r *http.Request) {
	adapter, ok := ws.store.Wallet(types.WalletMetaMask)
	reporter, canReport := adapter.(store.NetworkReporter)
	if !ok || !canReport || !adapter.IsAvailable(r.Context()) {
		ws.writeErrorResponse(w, http.StatusConflict, types.KindWalletNotInstalled, "browser wallet is not available")
		return
	}
	info, err := reporter.NetworkInfo(r.Context())
	if err != nil {
		webLogger.Warn().Err(err).Msg("Failed to read wallet network")
		ws.writeErrorResponse(w, http.StatusBadGateway, types.KindNetwork, err.Error())
		return
	}
	writeResult(ws, w, types.OK(info))
}

func (ws *WebServer) handleGetWalletDetails(w http.ResponseWriter, r *http.Request) {
	writeResult(ws, w, ws.store.WalletDetails(r.Context()))
}

type signRequest struct {
	Message string `json:"message"`
}

func (ws *WebServer) handleSignMessage(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, err.Error())
		return
	}
	writeResult(ws, w, ws.store.SignMessage(r.Context(), req.Message))
}

type viewRequest struct {
	Method string         `json:"method"`
	Args   map[string]any `json:"args,omitempty"`
}

// handleContractView runs a read-only method of the optimizer contract.
func (ws *WebServer) handleContractView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, err.Error())
		return
	}
	writeResult(ws, w, ws.store.ViewContract(r.Context(), req.Method, req.Args))
}

func (ws *WebServer) handleRefreshProtocols(w http.ResponseWriter, r *http.Request) {
	writeResult(ws, w, ws.store.RefreshProtocols(r.Context()))
}

func (ws *WebServer) handleRefreshAssets(w http.ResponseWriter, r *http.Request) {
	writeResult(ws, w, ws.store.FetchUserAssets(r.Context()))
}

func (ws *WebServer) handleRefreshPortfolio(w http.ResponseWriter, r *http.Request) {
	writeResult(ws, w, ws.store.FetchUserPortfolio(r.Context()))
}

func (ws *WebServer) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	writeResult(ws, w, ws.store.Allocation())
}

// riskProfileRequest carries either a full profile or a slider level.
type riskProfileRequest struct {
	Profile   *types.RiskProfile `json:"profile,omitempty"`
	RiskLevel *int               `json:"riskLevel,omitempty"`
}

func (ws *WebServer) handleSetRiskProfile(w http.ResponseWriter, r *http.Request) {
	var req riskProfileRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, err.Error())
		return
	}
	switch {
	case req.Profile != nil:
		ws.store.SetRiskProfile(*req.Profile)
		writeResult(ws, w, types.OK(*req.Profile))
	case req.RiskLevel != nil:
		writeResult(ws, w, ws.store.SelectRiskLevel(*req.RiskLevel))
	default:
		ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, "profile or riskLevel is required")
	}
}

type optimizeRequest struct {
	RiskLevel int `json:"riskLevel"`
}

func (ws *WebServer) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, err.Error())
		return
	}
	writeResult(ws, w, ws.store.RunOptimization(r.Context(), req.RiskLevel))
}

func (ws *WebServer) handleRebalance(w http.ResponseWriter, r *http.Request) {
	writeResult(ws, w, ws.store.ExecuteRebalance(r.Context()))
}

// handleGetRebalancePlan previews the moves a rebalance would make. The threshold defaults
// to the account's rebalance threshold setting.
func (ws *WebServer) handleGetRebalancePlan(w http.ResponseWriter, r *http.Request) {
	var opts planner.Options
	query := r.URL.Query()

	if v := query.Get("threshold"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, "threshold must be a number")
			return
		}
		opts.Threshold = threshold
	} else {
		settings := ws.store.Settings(r.Context())
		if !settings.IsOK() {
			writeResult(ws, w, settings)
			return
		}
		opts.Threshold = float64(settings.Value.RebalanceThreshold)
	}

	if v := query.Get("maxWithdrawal"); v != "" {
		maxWithdrawal, err := strconv.ParseFloat(v, 64)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, "maxWithdrawal must be a number")
			return
		}
		opts.MaxWithdrawalPercent = maxWithdrawal
	}

	writeResult(ws, w, ws.store.RebalancePlan(opts))
}

func (ws *WebServer) handleGetAutopilot(w http.ResponseWriter, r *http.Request) {
	if ws.pilot == nil {
		writeResult(ws, w, types.Empty[*autopilot.Report](types.KindNone, "autopilot disabled"))
		return
	}
	report := ws.pilot.LastReport()
	if report == nil {
		writeResult(ws, w, types.Empty[*autopilot.Report](types.KindNone, "no cycle has run yet"))
		return
	}
	writeResult(ws, w, types.OK(report))
}

type runsResponse struct {
	Summary state.RunSummary        `json:"summary"`
	Runs    []state.OptimizationRun `json:"runs"`
}

func (ws *WebServer) handleGetOptimizationRuns(w http.ResponseWriter, r *http.Request) {
	if ws.runs == nil {
		writeResult(ws, w, types.Empty[runsResponse](types.KindNone, "persistence disabled"))
		return
	}
	account := ws.store.Snapshot().AccountID
	if account == "" {
		writeResult(ws, w, types.Empty[runsResponse](types.KindNoAccount, "no account connected"))
		return
	}

	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	runs, err := ws.runs.GetRecentRuns(r.Context(), account, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("account", account).Msg("Failed to load optimization runs")
		writeResult(ws, w, types.Fail[runsResponse](types.KindNetwork, err))
		return
	}
	summary, err := ws.runs.GetRunSummary(r.Context(), account)
	if err != nil {
		webLogger.Error().Err(err).Str("account", account).Msg("Failed to load optimization run summary")
		writeResult(ws, w, types.Fail[runsResponse](types.KindNetwork, err))
		return
	}
	writeResult(ws, w, types.OK(runsResponse{Summary: summary, Runs: runs}))
}

func (ws *WebServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	writeResult(ws, w, ws.store.History(r.Context(), limit))
}

type tabRequest struct {
	Tab string `json:"tab"`
}

func (ws *WebServer) handleSetTab(w http.ResponseWriter, r *http.Request) {
	var req tabRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, err.Error())
		return
	}
	if req.Tab == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, "tab is required")
		return
	}
	ws.store.SetActiveTab(req.Tab)
	writeResult(ws, w, types.OK(req.Tab))
}

func (ws *WebServer) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	ws.store.ToggleDarkMode()
	ws.writeJSONResponse(w, http.StatusOK, ws.currentState())
}

func (ws *WebServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeResult(ws, w, ws.store.Settings(r.Context()))
}

func (ws *WebServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req types.Settings
	if err := decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, types.KindInvalidInput, err.Error())
		return
	}
	writeResult(ws, w, ws.store.UpdateSettings(r.Context(), req))
}
