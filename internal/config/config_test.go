package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("REQUEST_TIMEOUT", "")
	t.Setenv("AUTO_REBALANCE_INTERVAL", "")
	t.Setenv("NEAR_SESSION_FILE", "/tmp/session.json")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, GatewayModeMock, cfg.GatewayMode)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 15*time.Minute, cfg.AutoRebalanceInterval)
	assert.Equal(t, DefaultNearNodeURL, cfg.Near.NodeURL)
	assert.Equal(t, DefaultNearContractID, cfg.Near.ContractID)
	assert.Equal(t, "/tmp/session.json", cfg.Near.SessionFile)
	assert.False(t, cfg.DB.Enabled())
}

func TestLoadConfigHTTPModeRequiresAPIKey(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "http")
	t.Setenv("API_BASE_URL", "https://api.example.org")
	t.Setenv("API_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "grpc")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigParsesDurations(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "mock")
	t.Setenv("REQUEST_TIMEOUT", "3")
	t.Setenv("PROTOCOL_CACHE_TTL", "90s")
	t.Setenv("AUTO_REBALANCE_INTERVAL", "0")
	t.Setenv("NEAR_SESSION_FILE", "/tmp/session.json")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 90*time.Second, cfg.ProtocolCacheTTL)
	assert.Zero(t, cfg.AutoRebalanceInterval)

	t.Setenv("AUTO_REBALANCE_INTERVAL", "-1m")
	_, err = LoadConfig()
	require.Error(t, err)
	t.Setenv("AUTO_REBALANCE_INTERVAL", "")

	t.Setenv("REQUEST_TIMEOUT", "soon")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigDatabase(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "mock")
	t.Setenv("NEAR_SESSION_FILE", "/tmp/session.json")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "optimizer")
	t.Setenv("DB_NAME", "optimizer")
	t.Setenv("DB_PORT", "6543")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.DB.Enabled())
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, "disable", cfg.DB.SSLMode)

	t.Setenv("DB_NAME", "")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestDefaultRiskProfile(t *testing.T) {
	p := DefaultRiskProfile()
	assert.Equal(t, "balanced", p.ID)
	assert.Equal(t, 5, p.RiskLevel)

	for i := 1; i < len(DefaultRiskProfiles); i++ {
		assert.Less(t, DefaultRiskProfiles[i-1].RiskLevel, DefaultRiskProfiles[i].RiskLevel)
	}
}

func TestChainName(t *testing.T) {
	assert.Equal(t, "homestead", ChainName(1))
	assert.Equal(t, "aurora", ChainName(1313161554))
	assert.Equal(t, "unknown", ChainName(424242))
}
