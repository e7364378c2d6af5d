package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/elys-network/yield-optimizer/internal/analyzer"
	"github.com/elys-network/yield-optimizer/internal/autopilot"
	"github.com/elys-network/yield-optimizer/internal/gateway"
	"github.com/elys-network/yield-optimizer/internal/history"
	"github.com/elys-network/yield-optimizer/internal/state"
	"github.com/elys-network/yield-optimizer/internal/store"
	"github.com/elys-network/yield-optimizer/internal/types"
	"github.com/elys-network/yield-optimizer/internal/wallet"
)

type chainProvider struct{}

func (chainProvider) Request(ctx context.Context, method string, params any) (gjson.Result, error) {
	switch method {
	case "eth_chainId":
		return gjson.Parse(`"0x1"`), nil
	case "eth_accounts", "eth_requestAccounts":
		return gjson.Parse(`["0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"]`), nil
	case "eth_getBalance":
		return gjson.Parse(`"0x1bc16d674ec80000"`), nil
	case "personal_sign":
		return gjson.Parse(`"0xabcdef"`), nil
	}
	return gjson.Result{}, nil
}

type testEnv struct {
	server *WebServer
	store  *store.Store
	theme  *store.ThemeClassList
}

func newTestEnv(t *testing.T, extension wallet.Provider, modify ...func(*Options)) *testEnv {
	t.Helper()
	theme := &store.ThemeClassList{}
	st, err := store.New(store.Config{
		Gateway:  gateway.NewMockGateway(),
		Wallets:  []wallet.Adapter{wallet.NewExtensionWallet(extension)},
		History:  history.NewMockSource("https://explorer.near.org").WithClock(func() time.Time { return time.Now().Add(-time.Hour) }),
		Settings: store.NewMemorySettings(),
		Theme:    theme,
	})
	require.NoError(t, err)
	t.Cleanup(st.Close)

	opts := Options{Store: st, Theme: theme}
	for _, m := range modify {
		m(&opts)
	}
	ws, err := NewWebServer(opts)
	require.NoError(t, err)
	return &testEnv{server: ws, store: st, theme: theme}
}

type resultBody struct {
	Status  types.ResultStatus `json:"status"`
	Kind    types.ErrorKind    `json:"kind"`
	Message string             `json:"message"`
	Value   json.RawMessage    `json:"value"`
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) resultBody {
	t.Helper()
	var body resultBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func (e *testEnv) signIn(t *testing.T) {
	t.Helper()
	e.store.SetWalletInfo(&types.WalletInfo{Type: types.WalletNear, Address: "alice.near", IsConnected: true})
	e.store.Wait()
}

func TestNewWebServerRequiresStore(t *testing.T) {
	_, err := NewWebServer(Options{})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", gjson.Get(rec.Body.String(), "status").String())

	env.store.Close()
	rec = env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthReportsDatabase(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, "disabled", gjson.Get(env.do(t, http.MethodGet, "/health", "").Body.String(), "database_status").String())

	env = newTestEnv(t, nil, func(o *Options) { o.Database = failingPinger{} })
	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DEGRADED", gjson.Get(rec.Body.String(), "status").String())
	assert.Equal(t, "UNAVAILABLE", gjson.Get(rec.Body.String(), "database_status").String())
}

type fakeRuns struct {
	account string
	limit   int
}

func (f *fakeRuns) GetRecentRuns(_ context.Context, accountID string, limit int) ([]state.OptimizationRun, error) {
	f.account, f.limit = accountID, limit
	return []state.OptimizationRun{{RunID: 7, AccountID: accountID, RiskLevel: 5, ProtocolIDs: []string{"meta-pool"}}}, nil
}

func (f *fakeRuns) GetRunSummary(context.Context, string) (state.RunSummary, error) {
	return state.RunSummary{TotalRuns: 1, AvgExpectedAPY: 9.4}, nil
}

func TestOptimizationRunsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/optimize/runs", "")
	assert.Equal(t, "persistence disabled", decodeResult(t, rec).Message)

	runs := &fakeRuns{}
	env = newTestEnv(t, nil, func(o *Options) { o.Runs = runs })
	rec = env.do(t, http.MethodGet, "/api/optimize/runs", "")
	assert.Equal(t, types.KindNoAccount, decodeResult(t, rec).Kind)

	env.signIn(t)
	rec = env.do(t, http.MethodGet, "/api/optimize/runs?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(7), gjson.Get(body, "value.runs.0.runId").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "value.summary.totalRuns").Int())
	assert.Equal(t, "alice.near", runs.account)
	assert.Equal(t, 3, runs.limit)
}

func TestGetStateDefaults(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Equal(t, "balanced", gjson.Get(body, "riskProfile.id").String())
	assert.Equal(t, "dashboard", gjson.Get(body, "activeTab").String())
	assert.False(t, gjson.Get(body, "isAuthenticated").Bool())
	assert.True(t, gjson.Get(body, "portfolio").Type == gjson.Null)
	assert.Equal(t, "[]", gjson.Get(body, "themeClasses").Raw)
}

func TestSetRiskProfile(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/risk-profile", `{"riskLevel":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "balanced", gjson.Get(rec.Body.String(), "value.id").String())

	rec = env.do(t, http.MethodPut, "/api/risk-profile", `{"riskLevel":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "custom", gjson.Get(rec.Body.String(), "value.id").String())
	assert.Equal(t, 20.0, gjson.Get(rec.Body.String(), "value.expectedReturn").Float())

	rec = env.do(t, http.MethodPut, "/api/risk-profile", `{"profile":{"id":"mine","name":"Mine","riskLevel":3}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mine", env.store.Snapshot().RiskProfile.ID)

	rec = env.do(t, http.MethodPut, "/api/risk-profile", `{"riskLevel":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, types.KindInvalidInput, decodeResult(t, rec).Kind)

	rec = env.do(t, http.MethodPut, "/api/risk-profile", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/risk-profile", `{"level":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountActionsWithoutAccount(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/optimize", `{"riskLevel":5}`},
		{http.MethodPost, "/api/assets/refresh", ""},
		{http.MethodPost, "/api/portfolio/refresh", ""},
		{http.MethodGet, "/api/history", ""},
		{http.MethodGet, "/api/settings", ""},
		{http.MethodPost, "/api/rebalance", ""},
	} {
		rec := env.do(t, tc.method, tc.path, tc.body)
		require.Equal(t, http.StatusOK, rec.Code, tc.path)
		body := decodeResult(t, rec)
		assert.Equal(t, types.StatusEmpty, body.Status, tc.path)
		assert.Equal(t, types.KindNoAccount, body.Kind, tc.path)
	}
	assert.False(t, env.store.Snapshot().IsLoading)
}

func TestConnectExtensionNotInstalled(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/wallet/connect", `{"type":"metamask"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.KindWalletNotInstalled, decodeResult(t, rec).Kind)

	rec = env.do(t, http.MethodGet, "/api/wallet/network", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConnectExtension(t *testing.T) {
	env := newTestEnv(t, chainProvider{})

	rec := env.do(t, http.MethodPost, "/api/wallet/connect", `{"type":"metamask"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env.store.Wait()
	assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", env.store.Snapshot().AccountID)

	rec = env.do(t, http.MethodGet, "/api/wallet/network", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "value.chainId").Int())

	rec = env.do(t, http.MethodPost, "/api/wallet/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.store.Snapshot().IsAuthenticated)
}

func TestWalletDetailsAndSigning(t *testing.T) {
	env := newTestEnv(t, chainProvider{})

	rec := env.do(t, http.MethodGet, "/api/wallet/details", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.KindNoAccount, decodeResult(t, rec).Kind)

	rec = env.do(t, http.MethodPost, "/api/wallet/connect", `{"type":"metamask"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env.store.Wait()

	rec = env.do(t, http.MethodGet, "/api/wallet/details", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Equal(t, "0x5aae...aeed", gjson.Get(body, "value.displayAddress").String())
	assert.Equal(t, 2.0, gjson.Get(body, "value.balance").Float())
	assert.Equal(t, "ETH", gjson.Get(body, "value.currency").String())
	assert.Equal(t, int64(1), gjson.Get(body, "value.network.chainId").Int())

	rec = env.do(t, http.MethodPost, "/api/wallet/sign", `{"message":"rebalance to 40/40/20"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0xabcdef", gjson.Get(rec.Body.String(), "value.signature").String())
	assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", gjson.Get(rec.Body.String(), "value.signer").String())

	rec = env.do(t, http.MethodPost, "/api/wallet/sign", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No NEAR wallet registered in this environment.
	rec = env.do(t, http.MethodPost, "/api/near/view", `{"method":"get_apy"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.KindWalletNotInstalled, decodeResult(t, rec).Kind)
}

func TestNearCallbackValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/wallet/near/callback", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/wallet/near/callback?failed=1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// No NEAR wallet registered in this environment.
	rec = env.do(t, http.MethodGet, "/api/wallet/near/callback?account_id=alice.near", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.KindWalletNotInstalled, decodeResult(t, rec).Kind)
}

func TestAuthenticatedDashboardFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t)

	rec := env.do(t, http.MethodGet, "/api/portfolio/allocation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var breakdown analyzer.AllocationBreakdown
	require.NoError(t, json.Unmarshal(decodeResult(t, rec).Value, &breakdown))
	var refShare float64
	for _, s := range breakdown.ByProtocol {
		if s.ID == "ref-finance" {
			refShare = s.Percentage
		}
	}
	assert.Equal(t, 6.9, refShare)

	rec = env.do(t, http.MethodPost, "/api/optimize", `{"riskLevel":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result types.OptimizationResult
	require.NoError(t, json.Unmarshal(decodeResult(t, rec).Value, &result))
	assert.Equal(t, 100.0, analyzer.AllocationSum(result.Allocations))

	rec = env.do(t, http.MethodPost, "/api/rebalance", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, gjson.Get(rec.Body.String(), "value.success").Bool())

	rec = env.do(t, http.MethodGet, "/api/history?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	txs := gjson.Get(rec.Body.String(), "value").Array()
	require.Len(t, txs, 3)
	assert.Equal(t, "rebalance", txs[0].Get("type").String())

	rec = env.do(t, http.MethodPost, "/api/optimize", `{"riskLevel":11}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebalancePlanEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t)

	rec := env.do(t, http.MethodGet, "/api/rebalance/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.StatusEmpty, decodeResult(t, rec).Status)

	rec = env.do(t, http.MethodPost, "/api/optimize", `{"riskLevel":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/rebalance/plan", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Equal(t, "ok", gjson.Get(body, "status").String())
	assert.Equal(t, 5.0, gjson.Get(body, "value.threshold").Float())
	assert.Greater(t, gjson.Get(body, "value.maxDrift").Float(), 0.0)

	rec = env.do(t, http.MethodGet, "/api/rebalance/plan?threshold=100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, gjson.Get(rec.Body.String(), "value.withdrawals").Array())

	rec = env.do(t, http.MethodGet, "/api/rebalance/plan?threshold=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/rebalance/plan?threshold=-3", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAutopilotEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/autopilot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "autopilot disabled", decodeResult(t, rec).Message)

	var pilot *autopilot.Autopilot
	env = newTestEnv(t, nil, func(o *Options) {
		var err error
		pilot, err = autopilot.New(autopilot.Config{Store: o.Store, Interval: time.Hour})
		require.NoError(t, err)
		o.Autopilot = pilot
	})
	rec = env.do(t, http.MethodGet, "/api/autopilot", "")
	assert.Equal(t, types.StatusEmpty, decodeResult(t, rec).Status)

	report := pilot.RunCycle(context.Background())
	assert.Equal(t, autopilot.ResultSkipped, report.Result)

	rec = env.do(t, http.MethodGet, "/api/autopilot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ID, gjson.Get(rec.Body.String(), "value.id").String())
	assert.Equal(t, "skipped", gjson.Get(rec.Body.String(), "value.result").String())
}

func TestTabAndTheme(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/tab", `{"tab":"history"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "history", env.store.Snapshot().ActiveTab)

	rec = env.do(t, http.MethodPut, "/api/tab", `{"tab":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/theme/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "darkMode").Bool())
	assert.Equal(t, `["dark"]`, gjson.Get(rec.Body.String(), "themeClasses").Raw)

	rec = env.do(t, http.MethodPost, "/api/theme/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, gjson.Get(rec.Body.String(), "darkMode").Bool())
	assert.Equal(t, "[]", gjson.Get(rec.Body.String(), "themeClasses").Raw)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t)

	rec := env.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), gjson.Get(rec.Body.String(), "value.rebalanceThreshold").Int())

	rec = env.do(t, http.MethodPut, "/api/settings",
		`{"notifications":false,"autoRebalance":true,"securityAlerts":true,"rebalanceThreshold":8,"darkMode":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.store.Snapshot().DarkMode)

	rec = env.do(t, http.MethodPut, "/api/settings", `{"rebalanceThreshold":99}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil, func(o *Options) { o.AllowedOrigin = "https://app.example" })
	rec := env.do(t, http.MethodOptions, "/api/optimize", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, nil, func(o *Options) {
		o.RateLimit = 0.001
		o.Burst = 2
	})
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/state", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/state", "").Code)
	rec := env.do(t, http.MethodGet, "/api/state", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/state", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "yield_optimizer_http_requests_total")
}

func TestWebSocketPushesState(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first stateResponse
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, store.DefaultTab, first.ActiveTab)

	env.store.SetActiveTab("portfolio")
	for {
		var next stateResponse
		require.NoError(t, conn.ReadJSON(&next))
		if next.ActiveTab == "portfolio" {
			break
		}
	}
}
