/*

This file contains the application store: the single owner of session and dashboard state.

Every field loaded from the gateway carries a generation token. A request stamps the token
when it starts and its completion is applied only if no newer request for that field was
issued in the meantime, so a slow response can never overwrite a fresher one. Changing
the signed-in account bumps the account-scoped tokens, which drops responses that belong
to the previous account.

The loading flag is an in-flight counter. Every gateway and wallet call runs under the
configured request timeout and is cancelled when the store is closed.

*/

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/elys-network/yield-optimizer/internal/config"
	"github.com/elys-network/yield-optimizer/internal/gateway"
	"github.com/elys-network/yield-optimizer/internal/history"
	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/metrics"
	"github.com/elys-network/yield-optimizer/internal/types"
	"github.com/elys-network/yield-optimizer/internal/wallet"
)

var storeLogger = logger.GetForComponent("store")

// DefaultRequestTimeout applies when Config.RequestTimeout is zero.
const DefaultRequestTimeout = 15 * time.Second

// DefaultTab is the navigation tab selected at startup.
const DefaultTab = "dashboard"

// Error definitions for zero-tolerance error handling
var (
	ErrNilGateway        = errors.New("store requires a gateway")
	ErrClosed            = errors.New("store is closed")
	ErrNoAccount         = errors.New("no wallet account is connected")
	ErrNoOptimization    = errors.New("no optimization result to rebalance to")
	ErrRebalanceInFlight = errors.New("a rebalance is already being submitted")
	ErrRebalanceRejected = errors.New("rebalance was not accepted by the backend")
	ErrUnknownWallet     = errors.New("unknown wallet type")
	ErrSignInUnsupported = errors.New("wallet does not support redirect sign-in")
	ErrStale             = errors.New("superseded by a newer request")
	ErrUnsupported       = errors.New("wallet does not support this operation")
	ErrEmptyMessage      = errors.New("message to sign is empty")
	ErrEmptyMethod       = errors.New("contract method name is empty")
)

// Field names a piece of state that is loaded asynchronously.
type Field string

const (
	FieldAuth         Field = "auth"
	FieldProtocols    Field = "protocols"
	FieldAssets       Field = "assets"
	FieldPortfolio    Field = "portfolio"
	FieldOptimization Field = "optimization"
	FieldRebalance    Field = "rebalance"
	FieldWallet       Field = "wallet"
	FieldSettings     Field = "settings"
)

// accountFields hold data that belongs to the signed-in account.
var accountFields = []Field{FieldAssets, FieldPortfolio, FieldOptimization}

// SignInCompleter is implemented by wallets whose sign-in finishes on a redirect callback.
type SignInCompleter interface {
	CompleteSignIn(ctx context.Context, accountID, publicKey string) error
}

// BalanceReader is implemented by wallets that can read the connected account's balance.
type BalanceReader interface {
	AccountBalance(ctx context.Context) (float64, error)
}

// MessageSigner is implemented by wallets that can sign an arbitrary message.
type MessageSigner interface {
	SignMessage(ctx context.Context, message string) (types.SignedMessage, error)
}

// NetworkReporter is implemented by wallets that know which network they are on.
type NetworkReporter interface {
	NetworkInfo(ctx context.Context) (types.NetworkInfo, error)
}

// ContractViewer is implemented by wallets that can run read-only contract methods.
type ContractViewer interface {
	CallViewMethod(ctx context.Context, method string, args any) (gjson.Result, error)
}

// CacheInvalidator is implemented by gateways that cache protocol data.
type CacheInvalidator interface {
	Invalidate()
}

// SettingsStore persists per-account settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, accountID string) (types.Settings, bool, error)
	SaveSettings(ctx context.Context, accountID string, s types.Settings) error
}

// RunRecorder persists optimization runs.
type RunRecorder interface {
	SaveOptimizationRun(ctx context.Context, accountID string, riskLevel int, result types.OptimizationResult) (int64, error)
	MarkRunExecuted(ctx context.Context, accountID string) error
}

// Config wires the store's collaborators. Only Gateway is required.
type Config struct {
	Gateway gateway.Gateway
	// Wallets are looked up by Kind. When several report a session, the NEAR wallet wins.
	Wallets  []wallet.Adapter
	History  history.Source
	Settings SettingsStore
	Runs     RunRecorder
	Theme    ThemeApplier

	RequestTimeout time.Duration
	// RiskProfiles are the canonical profiles the risk slider snaps to.
	RiskProfiles []types.RiskProfile

	Now func() time.Time
}

// State is a point-in-time copy of the store.
type State struct {
	IsAuthenticated    bool                      `json:"isAuthenticated"`
	AccountID          string                    `json:"accountId"`
	WalletInfo         *types.WalletInfo         `json:"walletInfo"`
	Protocols          []types.Protocol          `json:"protocols"`
	Assets             []types.Asset             `json:"assets"`
	Portfolio          *types.Portfolio          `json:"portfolio"`
	RiskProfile        types.RiskProfile         `json:"riskProfile"`
	OptimizationResult *types.OptimizationResult `json:"optimizationResult"`
	IsLoading          bool                      `json:"isLoading"`
	ActiveTab          string                    `json:"activeTab"`
	DarkMode           bool                      `json:"darkMode"`
	// Outcomes holds the last result per field so failures stay visible after the call returns.
	Outcomes      map[Field]types.Outcome `json:"outcomes"`
	LastRebalance *types.RebalanceOutcome `json:"lastRebalance,omitempty"`
}

func (st State) clone() State {
	out := st
	if st.WalletInfo != nil {
		wi := *st.WalletInfo
		out.WalletInfo = &wi
	}
	out.Protocols = append([]types.Protocol(nil), st.Protocols...)
	out.Assets = append([]types.Asset(nil), st.Assets...)
	out.Portfolio = st.Portfolio.Clone()
	out.OptimizationResult = st.OptimizationResult.Clone()
	out.Outcomes = make(map[Field]types.Outcome, len(st.Outcomes))
	for k, v := range st.Outcomes {
		out.Outcomes[k] = v
	}
	if st.LastRebalance != nil {
		lr := *st.LastRebalance
		lr.Allocations = append([]types.Allocation(nil), st.LastRebalance.Allocations...)
		out.LastRebalance = &lr
	}
	return out
}

// Store is the application store. Create it with New and release it with Close.
type Store struct {
	cfg     Config
	wallets map[types.WalletType]wallet.Adapter

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	gen         map[Field]uint64
	inflight    int
	rebalancing bool
	closed      bool
	subscribers map[chan struct{}]struct{}
}

func New(cfg Config) (*Store, error) {
	if cfg.Gateway == nil {
		return nil, ErrNilGateway
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Theme == nil {
		cfg.Theme = &ThemeClassList{}
	}
	if len(cfg.RiskProfiles) == 0 {
		cfg.RiskProfiles = config.DefaultRiskProfiles
	}

	wallets := make(map[types.WalletType]wallet.Adapter, len(cfg.Wallets))
	for _, w := range cfg.Wallets {
		if w == nil {
			continue
		}
		wallets[w.Kind()] = w
	}

	root, cancel := context.WithCancel(context.Background())
	s := &Store{
		cfg:     cfg,
		wallets: wallets,
		root:    root,
		cancel:  cancel,
		state: State{
			RiskProfile: config.DefaultRiskProfile(),
			ActiveTab:   DefaultTab,
			Outcomes:    make(map[Field]types.Outcome),
		},
		gen:         make(map[Field]uint64),
		subscribers: make(map[chan struct{}]struct{}),
	}

	storeLogger.Info().
		Int("wallets", len(wallets)).
		Dur("requestTimeout", cfg.RequestTimeout).
		Msg("Application store created")
	return s, nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe returns a channel that receives a value after every state change. Notifications
// are coalesced: a slow reader sees at least one signal after the latest change. The returned
// function unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// Wait blocks until every background follow-up fetch has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight requests, waits for background work and closes subscriptions.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan struct{}]struct{})
	s.mu.Unlock()

	storeLogger.Info().Msg("Application store closed")
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// notifyLocked signals subscribers. Callers hold s.mu.
func (s *Store) notifyLocked() {
	for ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// begin stamps a new generation for field and marks the store as loading.
func (s *Store) beginLocked(field Field) uint64 {
	s.gen[field]++
	s.inflight++
	s.state.IsLoading = true
	s.notifyLocked()
	return s.gen[field]
}

func (s *Store) endLoading() {
	s.mu.Lock()
	s.inflight--
	s.state.IsLoading = s.inflight > 0
	s.notifyLocked()
	s.mu.Unlock()
}

// invalidateAccountLocked drops account-scoped data and any response still in flight for it.
func (s *Store) invalidateAccountLocked() {
	for _, f := range accountFields {
		s.gen[f]++
		delete(s.state.Outcomes, f)
	}
	s.state.Assets = nil
	s.state.Portfolio = nil
	s.state.OptimizationResult = nil
	s.state.LastRebalance = nil
}

// callContext bounds a boundary call by the request timeout and by the store's lifetime.
func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	stop := context.AfterFunc(s.root, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// spawn runs fn in the background on the store's root context.
func (s *Store) spawn(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := fn(s.root); err != nil {
			storeLogger.Warn().Err(err).Str("task", name).Msg("Background task finished with errors")
		}
	}()
}

// complete applies a finished request if its generation is still current and records the outcome.
func complete[T any](s *Store, field Field, token uint64, action string, value T, err error, apply func(T)) types.Result[T] {
	var res types.Result[T]
	if err != nil {
		res = types.Fail[T](classify(err), err)
	} else {
		res = types.OK(value)
	}

	s.mu.Lock()
	if s.gen[field] != token {
		s.mu.Unlock()
		metrics.RecordStaleCompletion(string(field))
		metrics.RecordStoreAction(action, string(types.StatusEmpty), string(types.KindStale))
		storeLogger.Debug().Str("field", string(field)).Uint64("token", token).Msg("Dropping stale completion")
		return types.Empty[T](types.KindStale, ErrStale.Error())
	}
	if err == nil && apply != nil {
		apply(value)
	}
	s.state.Outcomes[field] = res.Outcome(s.cfg.Now())
	s.notifyLocked()
	s.mu.Unlock()

	metrics.RecordStoreAction(action, string(res.Status), string(res.Kind))
	if err != nil {
		storeLogger.Warn().Err(err).Str("action", action).Str("kind", string(res.Kind)).Msg("Store action failed, keeping previous state")
	}
	return res
}

// classify maps gateway and wallet errors to a result kind.
func classify(err error) types.ErrorKind {
	switch {
	case err == nil:
		return types.KindNone
	case errors.Is(err, ErrClosed):
		return types.KindCanceled
	case errors.Is(err, wallet.ErrNotInstalled):
		return types.KindWalletNotInstalled
	case errors.Is(err, wallet.ErrUserRejected), errors.Is(err, ErrRebalanceInFlight), errors.Is(err, ErrRebalanceRejected):
		return types.KindRejected
	case errors.Is(err, wallet.ErrAccessKeyUnknown):
		return types.KindRejected
	case errors.Is(err, wallet.ErrInvalidAccountID), errors.Is(err, wallet.ErrKeyMismatch), errors.Is(err, wallet.ErrNoPendingSignIn),
		errors.Is(err, ErrUnknownWallet), errors.Is(err, ErrSignInUnsupported), errors.Is(err, ErrNoOptimization),
		errors.Is(err, ErrUnsupported), errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrEmptyMethod):
		return types.KindInvalidInput
	case errors.Is(err, wallet.ErrAccountNotFound), errors.Is(err, wallet.ErrNotSignedIn), errors.Is(err, ErrNoAccount):
		return types.KindNoAccount
	case errors.Is(err, wallet.ErrInvalidResponse):
		return types.KindInvalidData
	}
	return gateway.Classify(err)
}

func noAccount[T any]() types.Result[T] {
	return types.Empty[T](types.KindNoAccount, ErrNoAccount.Error())
}

func closedResult[T any]() types.Result[T] {
	return types.Fail[T](types.KindCanceled, ErrClosed)
}
