package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestResultConstructors(t *testing.T) {
	ok := OK(3)
	assert.True(t, ok.IsOK())
	assert.NoError(t, ok.Err())
	assert.False(t, ok.Retryable())

	empty := Empty[int](KindNoAccount, "connect a wallet first")
	assert.True(t, empty.IsEmpty())
	assert.NoError(t, empty.Err())
	assert.Equal(t, KindNoAccount, empty.Kind)

	failed := Fail[int](KindTimeout, errors.New("deadline exceeded"))
	assert.True(t, failed.IsError())
	assert.True(t, failed.Retryable())
	assert.EqualError(t, failed.Err(), "timeout: deadline exceeded")

	var resErr *ResultError
	require.ErrorAs(t, failed.Err(), &resErr)
	assert.Equal(t, KindTimeout, resErr.Kind)

	rejected := Fail[bool](KindRejected, nil)
	assert.False(t, rejected.Retryable())
	assert.EqualError(t, rejected.Err(), "rejected")
}

func TestResultOutcomeDropsValue(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	outcome := Fail[[]Asset](KindNetwork, errors.New("connection reset")).Outcome(at)
	assert.Equal(t, Outcome{Status: StatusError, Kind: KindNetwork, Message: "connection reset", At: at}, outcome)
}

func TestResultJSON(t *testing.T) {
	raw, err := json.Marshal(OK(WalletInfo{Type: WalletNear, Address: "alice.near", IsConnected: true}))
	require.NoError(t, err)
	assert.Equal(t, "ok", gjson.GetBytes(raw, "status").String())
	assert.Equal(t, "alice.near", gjson.GetBytes(raw, "value.address").String())
	assert.False(t, gjson.GetBytes(raw, "kind").Exists())

	raw, err = json.Marshal(Empty[*Portfolio](KindNoAccount, ""))
	require.NoError(t, err)
	assert.Equal(t, "no_account", gjson.GetBytes(raw, "kind").String())
}

func TestClonesAreDeep(t *testing.T) {
	var nilPortfolio *Portfolio
	assert.Nil(t, nilPortfolio.Clone())

	p := &Portfolio{TotalValue: 100, Assets: []PortfolioPosition{{ProtocolID: "burrow", Value: 100}}}
	cp := p.Clone()
	cp.Assets[0].Value = 1
	assert.Equal(t, 100.0, p.Assets[0].Value)

	o := &OptimizationResult{ExpectedAPY: 9, Allocations: []Allocation{{ProtocolID: "meta-pool", Percentage: 100}}}
	co := o.Clone()
	co.Allocations[0].Percentage = 50
	assert.Equal(t, 100.0, o.Allocations[0].Percentage)
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, WalletNear.Valid())
	assert.True(t, WalletMetaMask.Valid())
	assert.False(t, WalletType("ledger").Valid())

	assert.True(t, RiskMedium.Valid())
	assert.False(t, RiskTier("extreme").Valid())

	assert.True(t, CategoryYieldFarming.Valid())
	assert.False(t, ProtocolCategory("dex").Valid())
}

func TestAssetValueAndDefaults(t *testing.T) {
	assert.InDelta(t, 604.91, Asset{Balance: 120.5, Price: 5.02}.Value(), 1e-9)

	s := DefaultSettings()
	assert.Equal(t, 5, s.RebalanceThreshold)
	assert.True(t, s.Notifications)
	assert.False(t, s.DarkMode)

	assert.True(t, RiskProfile{ID: CustomRiskProfileID}.IsCustom())
	assert.False(t, RiskProfile{ID: "balanced"}.IsCustom())
}
