/*

This file contains the types for a user's deposited positions across protocols.

*/

package types

// PortfolioPosition ties a protocol/asset pair to the deposited amount and its value.
type PortfolioPosition struct {
	ProtocolID string  `json:"protocolId"`
	AssetID    string  `json:"assetId"`
	Amount     float64 `json:"amount"` // Deposited quantity of the asset
	Value      float64 `json:"value"`  // USD value of the deposit
	APY        float64 `json:"apy"`
}

// Portfolio is the user's deposited value. TotalValue is reported by the backend and is
// expected, but not guaranteed, to equal the sum of position values.
type Portfolio struct {
	TotalValue float64             `json:"totalValue"`
	Assets     []PortfolioPosition `json:"assets"`
}

// Clone returns a deep copy so callers can't mutate shared state.
func (p *Portfolio) Clone() *Portfolio {
	if p == nil {
		return nil
	}
	out := &Portfolio{TotalValue: p.TotalValue}
	if p.Assets != nil {
		out.Assets = append([]PortfolioPosition(nil), p.Assets...)
	}
	return out
}
