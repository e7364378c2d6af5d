/*

This file contains the types describing the connected wallet.

*/

package types

type WalletType string

const (
	WalletNear     WalletType = "near"     // NEAR native wallet (redirect sign-in)
	WalletMetaMask WalletType = "metamask" // Injected browser-extension wallet
)

// Valid reports whether the wallet type is supported.
func (w WalletType) Valid() bool {
	return w == WalletNear || w == WalletMetaMask
}

type WalletInfo struct {
	Type        WalletType `json:"type"`
	Address     string     `json:"address"`
	IsConnected bool       `json:"isConnected"`
}

// NetworkInfo describes the chain an extension wallet is pointed at.
type NetworkInfo struct {
	ChainID int64  `json:"chainId"`
	Name    string `json:"name"`
}

// WalletDetails is what the wallet panel shows for the connected account.
type WalletDetails struct {
	Type           WalletType   `json:"type"`
	Address        string       `json:"address"`
	DisplayAddress string       `json:"displayAddress"`
	Balance        float64      `json:"balance"`
	Currency       string       `json:"currency"` // NEAR or ETH
	Network        *NetworkInfo `json:"network,omitempty"`
}

// SignedMessage is a message signed by the connected account.
type SignedMessage struct {
	Signer    string `json:"signer"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey,omitempty"` // NEAR only; EVM signatures recover the signer
}
