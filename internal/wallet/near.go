/*

This file contains the NEAR native wallet adapter. Sign-in is a redirect round trip: the
user is sent to the wallet's login page with a freshly generated function-call key, and the
wallet redirects back with the account id once the key has been added.

*/

package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/tidwall/gjson"

	"github.com/elys-network/yield-optimizer/internal/config"
	"github.com/elys-network/yield-optimizer/internal/types"
	"github.com/elys-network/yield-optimizer/internal/utils"
)

const (
	// NearCallbackPath is where the wallet redirects after sign-in.
	NearCallbackPath = "/api/wallet/near/callback"

	keyPrefix = "ed25519:"
)

// accountIDPattern follows the NEAR account id rules: 2-64 chars of lowercase alphanumerics
// separated by '.', '-' or '_'.
var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

// ValidateAccountID checks a NEAR account id.
func ValidateAccountID(accountID string) error {
	if len(accountID) < 2 || len(accountID) > 64 || !accountIDPattern.MatchString(accountID) {
		return fmt.Errorf("%w: %q", ErrInvalidAccountID, accountID)
	}
	return nil
}

// KeyPair is an ed25519 key pair in NEAR's "ed25519:<base58>" text form.
type KeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

func NewKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return KeyPair{
		PublicKey:  keyPrefix + base58.Encode(pub),
		PrivateKey: keyPrefix + base58.Encode(priv),
	}, nil
}

// NearWallet implements Adapter for the NEAR web wallet.
type NearWallet struct {
	cfg      config.NearConfig
	appURL   string
	rpc      *RPCClient
	sessions SessionStore
	now      func() time.Time
}

var _ Adapter = (*NearWallet)(nil)

func NewNearWallet(cfg config.NearConfig, appURL string, sessions SessionStore) *NearWallet {
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	rpc := NewRPCClient(cfg.NodeURL).WithHeader("NEAR-API-KEY", cfg.APIKey)
	return &NearWallet{
		cfg:      cfg,
		appURL:   strings.TrimRight(appURL, "/"),
		rpc:      rpc,
		sessions: sessions,
		now:      time.Now,
	}
}

func (w *NearWallet) Kind() types.WalletType { return types.WalletNear }

// IsAvailable is always true: the web wallet is reached by redirect and needs no local provider.
func (w *NearWallet) IsAvailable(ctx context.Context) bool { return true }

// Connect returns the signed-in account if there is one, otherwise a sign-in redirect URL.
func (w *NearWallet) Connect(ctx context.Context) (ConnectResult, error) {
	account, err := w.CurrentAccount(ctx)
	if err != nil {
		recordCall(w.Kind(), "connect", err)
		return ConnectResult{}, err
	}
	if account != "" {
		recordCall(w.Kind(), "connect", nil)
		return ConnectResult{AccountID: account}, nil
	}
	signInURL, err := w.SignInURL()
	recordCall(w.Kind(), "connect", err)
	if err != nil {
		return ConnectResult{}, err
	}
	return ConnectResult{RedirectURL: signInURL}, nil
}

// SignInURL generates a pending key pair and builds the wallet login URL for it.
func (w *NearWallet) SignInURL() (string, error) {
	sess, err := w.sessions.Load()
	if err != nil {
		return "", err
	}
	key, err := NewKeyPair()
	if err != nil {
		return "", err
	}
	sess.PendingKey = &key
	if err := w.sessions.Save(sess); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("contract_id", w.cfg.ContractID)
	for _, m := range config.NearMethodNames {
		q.Add("methodNames", m)
	}
	q.Set("success_url", w.appURL+NearCallbackPath)
	q.Set("failure_url", w.appURL+NearCallbackPath+"?failed=1")
	q.Set("public_key", key.PublicKey)

	return strings.TrimRight(w.cfg.WalletURL, "/") + "/login/?" + q.Encode(), nil
}

// CompleteSignIn finishes the redirect round trip. A sign-in must be pending, the wallet must
// echo the public key generated by SignInURL, and the node must list that key as an access
// key of the account before the session is saved.
func (w *NearWallet) CompleteSignIn(ctx context.Context, accountID, publicKey string) error {
	err := w.completeSignIn(ctx, accountID, publicKey)
	recordCall(w.Kind(), "complete_sign_in", err)
	if err != nil {
		walletLogger.Warn().Err(err).Str("account", accountID).Msg("NEAR sign-in callback refused")
	}
	return err
}

func (w *NearWallet) completeSignIn(ctx context.Context, accountID, publicKey string) error {
	if err := ValidateAccountID(accountID); err != nil {
		return err
	}
	sess, err := w.sessions.Load()
	if err != nil {
		return err
	}
	if sess.PendingKey == nil {
		return ErrNoPendingSignIn
	}
	if publicKey != sess.PendingKey.PublicKey {
		return ErrKeyMismatch
	}
	if _, err := w.viewAccount(ctx, accountID); err != nil {
		return err
	}
	if err := w.checkAccessKey(ctx, accountID, publicKey); err != nil {
		return err
	}

	next := Session{
		AccountID:  accountID,
		PublicKey:  sess.PendingKey.PublicKey,
		PrivateKey: sess.PendingKey.PrivateKey,
		SignedInAt: w.now().UTC(),
	}
	if err := w.sessions.Save(next); err != nil {
		return err
	}
	walletLogger.Info().Str("account", accountID).Msg("NEAR wallet signed in")
	return nil
}

// Disconnect signs out by forgetting the session.
func (w *NearWallet) Disconnect(ctx context.Context) error {
	err := w.sessions.Clear()
	recordCall(w.Kind(), "disconnect", err)
	return err
}

func (w *NearWallet) CurrentAccount(ctx context.Context) (string, error) {
	sess, err := w.sessions.Load()
	if err != nil {
		return "", err
	}
	return sess.AccountID, nil
}

// AccountBalance returns the signed-in account's liquid balance in NEAR.
func (w *NearWallet) AccountBalance(ctx context.Context) (float64, error) {
	account, err := w.CurrentAccount(ctx)
	if err != nil {
		return 0, err
	}
	if account == "" {
		return 0, ErrNotSignedIn
	}
	view, err := w.viewAccount(ctx, account)
	if err != nil {
		return 0, err
	}
	return utils.YoctoToNear(view.Get("amount").String())
}

// NetworkInfo names the configured NEAR network. NEAR has no numeric chain id.
func (w *NearWallet) NetworkInfo(ctx context.Context) (types.NetworkInfo, error) {
	return types.NetworkInfo{Name: "near-" + w.cfg.NetworkID}, nil
}

// SignMessage signs message with the function-call key stored at sign-in.
func (w *NearWallet) SignMessage(ctx context.Context, message string) (types.SignedMessage, error) {
	sess, err := w.sessions.Load()
	if err != nil {
		return types.SignedMessage{}, err
	}
	if sess.AccountID == "" || sess.PrivateKey == "" {
		return types.SignedMessage{}, ErrNotSignedIn
	}
	raw, err := base58.Decode(strings.TrimPrefix(sess.PrivateKey, keyPrefix))
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		return types.SignedMessage{}, fmt.Errorf("%w: stored signing key is malformed", ErrInvalidResponse)
	}
	sig := ed25519.Sign(ed25519.PrivateKey(raw), []byte(message))
	recordCall(w.Kind(), "sign_message", nil)
	return types.SignedMessage{
		Signer:    sess.AccountID,
		Message:   message,
		Signature: keyPrefix + base58.Encode(sig),
		PublicKey: sess.PublicKey,
	}, nil
}

// CallViewMethod runs a read-only method of the optimizer contract and returns its JSON result.
func (w *NearWallet) CallViewMethod(ctx context.Context, method string, args any) (gjson.Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal args: %w", err)
	}

	res, err := w.query(ctx, map[string]any{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   w.cfg.ContractID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argsJSON),
	})
	if err != nil {
		return gjson.Result{}, err
	}

	// The contract's return value comes back as an array of bytes.
	raw := res.Get("result").Array()
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		out = append(out, byte(b.Int()))
	}
	if len(out) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(out) {
		return gjson.Result{}, fmt.Errorf("%w: view method %s returned non-JSON", ErrInvalidResponse, method)
	}
	return gjson.ParseBytes(out), nil
}

// checkAccessKey confirms publicKey is an access key of accountID. A function-call key must be
// scoped to the optimizer contract.
func (w *NearWallet) checkAccessKey(ctx context.Context, accountID, publicKey string) error {
	res, err := w.rpc.Request(ctx, "query", map[string]any{
		"request_type": "view_access_key",
		"finality":     "final",
		"account_id":   accountID,
		"public_key":   publicKey,
	})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Data == "UNKNOWN_ACCESS_KEY" {
			return fmt.Errorf("%w: %s", ErrAccessKeyUnknown, accountID)
		}
		return err
	}
	if msg := res.Get("error").String(); msg != "" {
		return fmt.Errorf("%w: %s", ErrAccessKeyUnknown, msg)
	}
	if !res.Get("nonce").Exists() {
		return fmt.Errorf("%w: view_access_key has no nonce", ErrInvalidResponse)
	}
	if fc := res.Get("permission.FunctionCall"); fc.Exists() {
		if receiver := fc.Get("receiver_id").String(); receiver != w.cfg.ContractID {
			return fmt.Errorf("%w: key is scoped to %s", ErrAccessKeyUnknown, receiver)
		}
	}
	return nil
}

func (w *NearWallet) viewAccount(ctx context.Context, accountID string) (gjson.Result, error) {
	res, err := w.query(ctx, map[string]any{
		"request_type": "view_account",
		"finality":     "final",
		"account_id":   accountID,
	})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Data == "UNKNOWN_ACCOUNT" {
			return gjson.Result{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		return gjson.Result{}, err
	}
	if !res.Get("amount").Exists() {
		return gjson.Result{}, fmt.Errorf("%w: view_account has no amount", ErrInvalidResponse)
	}
	return res, nil
}

// query calls the NEAR "query" RPC method. Older nodes report query failures inside the
// result object instead of as an RPC error.
func (w *NearWallet) query(ctx context.Context, params map[string]any) (gjson.Result, error) {
	res, err := w.rpc.Request(ctx, "query", params)
	if err != nil {
		return gjson.Result{}, err
	}
	if msg := res.Get("error").String(); msg != "" {
		if strings.Contains(msg, "does not exist") {
			return gjson.Result{}, fmt.Errorf("%w: %s", ErrAccountNotFound, msg)
		}
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrInvalidResponse, msg)
	}
	return res, nil
}
