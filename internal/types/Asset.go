/*

This file contains the types for the tokens a user holds in their wallet.

*/

package types

type Asset struct {
	ID        string  `json:"id"`        // e.g., "near"
	Symbol    string  `json:"symbol"`    // e.g., "NEAR"
	Name      string  `json:"name"`      // e.g., "NEAR Protocol"
	Icon      string  `json:"icon"`      // URL of the token logo
	Balance   float64 `json:"balance"`   // Held quantity, never negative
	Price     float64 `json:"price"`     // Unit price in USD, never negative
	Change24h float64 `json:"change24h"` // Signed 24-hour price change in percent
}

// Value returns the USD value of the held balance.
func (a Asset) Value() float64 {
	return a.Balance * a.Price
}
