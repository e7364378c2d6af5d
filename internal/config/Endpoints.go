package config

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Default endpoints, used when the matching environment variable is not set.
const (
	DefaultAPIBaseURL      = "https://api.nearyieldoptimizer.near"
	DefaultNearNetworkID   = "mainnet"
	DefaultNearNodeURL     = "https://rpc.mainnet.near.org"
	DefaultNearWalletURL   = "https://wallet.near.org"
	DefaultNearHelperURL   = "https://helper.mainnet.near.org"
	DefaultNearExplorerURL = "https://explorer.near.org"
	DefaultNearContractID  = "app.nearyieldoptimizer.near"
	DefaultSessionFile     = "~/.near-yield-optimizer/session.json"
)

// NearMethodNames is the allow-list of contract methods requested at sign-in.
var NearMethodNames = []string{"optimize_portfolio", "rebalance_portfolio"}

// NearConfig holds the NEAR network endpoints and the target contract.
type NearConfig struct {
	// NetworkID is the NEAR network, e.g. "mainnet" or "testnet".
	NetworkID string
	// NodeURL is the JSON-RPC endpoint used for account and view-method queries.
	NodeURL string
	// WalletURL hosts the redirect sign-in page.
	WalletURL string
	// HelperURL is the NEAR helper service.
	HelperURL string
	// ExplorerURL is used to build transaction links in the history.
	ExplorerURL string
	// ContractID is the optimizer contract the sign-in key is scoped to.
	ContractID string
	// APIKey is sent to the RPC node as NEAR-API-KEY when set.
	APIKey string
	// SessionFile is where the signed-in account is remembered between restarts.
	SessionFile string
}

// ExtensionConfig holds the endpoint behind the browser-extension wallet provider.
type ExtensionConfig struct {
	// RPCURL is the EIP-1193 compatible JSON-RPC endpoint. Empty means "not installed".
	RPCURL string
}

// loadNearConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadNearConfig() (NearConfig, error) {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	cfg := NearConfig{
		NetworkID:   getEnvOrDefault("NEAR_NETWORK_ID", DefaultNearNetworkID),
		NodeURL:     getEnvOrDefault("NEAR_NODE_URL", DefaultNearNodeURL),
		WalletURL:   getEnvOrDefault("NEAR_WALLET_URL", DefaultNearWalletURL),
		HelperURL:   getEnvOrDefault("NEAR_HELPER_URL", DefaultNearHelperURL),
		ExplorerURL: getEnvOrDefault("NEAR_EXPLORER_URL", DefaultNearExplorerURL),
		ContractID:  getEnvOrDefault("NEAR_CONTRACT_ID", DefaultNearContractID),
		APIKey:      os.Getenv("NEAR_API_KEY"),
	}

	sessionFile, err := expandHome(getEnvOrDefault("NEAR_SESSION_FILE", DefaultSessionFile))
	if err != nil {
		return NearConfig{}, err
	}
	cfg.SessionFile = sessionFile

	log.Debug().
		Str("NodeURL", cfg.NodeURL).
		Str("WalletURL", cfg.WalletURL).
		Str("ContractID", cfg.ContractID).
		Msg("Endpoint configuration loaded successfully.")

	return cfg, nil
}

func loadExtensionConfig() ExtensionConfig {
	return ExtensionConfig{RPCURL: os.Getenv("EVM_RPC_URL")}
}
