package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/elys-network/yield-optimizer/internal/autopilot"
	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/metrics"
	"github.com/elys-network/yield-optimizer/internal/state"
	"github.com/elys-network/yield-optimizer/internal/store"
	"github.com/elys-network/yield-optimizer/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// Options configures the dashboard API server.
type Options struct {
	Port  string
	Store *store.Store
	// Theme is the class list the store toggles; exposed with the state when set.
	Theme *store.ThemeClassList
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit float64
	Burst     int
	// AllowedOrigin is sent as Access-Control-Allow-Origin. Defaults to "*".
	AllowedOrigin string
	// Autopilot reports the last auto-rebalance cycle. Optional.
	Autopilot *autopilot.Autopilot
	// Database is pinged by the health check when persistence is enabled.
	Database Pinger
	// Runs serves the optimization run history when persistence is enabled.
	Runs RunReader
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunReader reads recorded optimization runs.
type RunReader interface {
	GetRecentRuns(ctx context.Context, accountID string, limit int) ([]state.OptimizationRun, error)
	GetRunSummary(ctx context.Context, accountID string) (state.RunSummary, error)
}

// WebServer serves the dashboard API and the state WebSocket.
type WebServer struct {
	router   *mux.Router
	port     string
	store    *store.Store
	theme    *store.ThemeClassList
	pilot    *autopilot.Autopilot
	db       Pinger
	runs     RunReader
	origin   string
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	handler  http.Handler
	server   *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(opts Options) (*WebServer, error) {
	if opts.Store == nil {
		return nil, errors.New("web server requires a store")
	}
	if opts.Port == "" {
		opts.Port = "8080"
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}

	ws := &WebServer{
		router: mux.NewRouter(),
		port:   opts.Port,
		store:  opts.Store,
		theme:  opts.Theme,
		pilot:  opts.Autopilot,
		db:     opts.Database,
		runs:   opts.Runs,
		origin: opts.AllowedOrigin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if opts.RateLimit > 0 {
		ws.limiter = NewRateLimiter(opts.RateLimit, opts.Burst)
	}

	ws.setupRoutes()
	// CORS wraps the router so preflight requests are answered before route matching.
	ws.handler = ws.corsMiddleware(ws.router)
	ws.server = &http.Server{
		Addr:              ":" + ws.port,
		Handler:           ws.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return ws, nil
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	ws.router.HandleFunc("/ws", ws.handleWebSocket).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/state", ws.handleGetState).Methods("GET")
	api.HandleFunc("/auth/check", ws.handleCheckAuth).Methods("POST")

	api.HandleFunc("/wallet/connect", ws.handleConnectWallet).Methods("POST")
	api.HandleFunc("/wallet/near/callback", ws.handleNearCallback).Methods("GET")
	api.HandleFunc("/wallet/disconnect", ws.handleDisconnectWallet).Methods("POST")
	api.HandleFunc("/wallet/network", ws.handleGetNetwork).Methods("GET")
	api.HandleFunc("/wallet/details", ws.handleGetWalletDetails).Methods("GET")
	api.HandleFunc("/wallet/sign", ws.handleSignMessage).Methods("POST")
	api.HandleFunc("/near/view", ws.handleContractView).Methods("POST")

	api.HandleFunc("/protocols/refresh", ws.handleRefreshProtocols).Methods("POST")
	api.HandleFunc("/assets/refresh", ws.handleRefreshAssets).Methods("POST")
	api.HandleFunc("/portfolio/refresh", ws.handleRefreshPortfolio).Methods("POST")
	api.HandleFunc("/portfolio/allocation", ws.handleGetAllocation).Methods("GET")

	api.HandleFunc("/risk-profile", ws.handleSetRiskProfile).Methods("PUT")
	api.HandleFunc("/optimize", ws.handleOptimize).Methods("POST")
	api.HandleFunc("/optimize/runs", ws.handleGetOptimizationRuns).Methods("GET")
	api.HandleFunc("/rebalance", ws.handleRebalance).Methods("POST")
	api.HandleFunc("/rebalance/plan", ws.handleGetRebalancePlan).Methods("GET")
	api.HandleFunc("/autopilot", ws.handleGetAutopilot).Methods("GET")
	api.HandleFunc("/history", ws.handleGetHistory).Methods("GET")

	api.HandleFunc("/tab", ws.handleSetTab).Methods("PUT")
	api.HandleFunc("/theme/toggle", ws.handleToggleTheme).Methods("POST")
	api.HandleFunc("/settings", ws.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", ws.handleUpdateSettings).Methods("PUT")

	ws.router.Use(ws.loggingMiddleware)
	if ws.limiter != nil {
		ws.router.Use(ws.limiter.Handler)
	}
	ws.router.Use(metrics.InstrumentHandler)
}

// Handler returns the root handler, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.handler
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones to finish.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	webLogger.Info().Msg("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, kind types.ErrorKind, message string) {
	response := map[string]interface{}{
		"status":    types.StatusError,
		"kind":      kind,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// writeResult writes a typed store result with a status code derived from its kind.
func writeResult[T any](ws *WebServer, w http.ResponseWriter, res types.Result[T]) {
	ws.writeJSONResponse(w, statusFor(res), res)
}

func statusFor[T any](res types.Result[T]) int {
	if !res.IsError() {
		return http.StatusOK
	}
	switch res.Kind {
	case types.KindInvalidInput:
		return http.StatusBadRequest
	case types.KindNoAccount:
		return http.StatusUnauthorized
	case types.KindWalletNotInstalled, types.KindRejected, types.KindStale:
		return http.StatusConflict
	case types.KindTimeout:
		return http.StatusGatewayTimeout
	case types.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
