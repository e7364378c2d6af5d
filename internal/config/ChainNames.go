/*
Extension wallets report only a numeric chain id.

This file contains the mapping of EVM chain ids to the network names shown next to the
connected account. Aurora is listed because it is the EVM runtime on NEAR.

If a chain id has no entry here the name falls back to "unknown".
*/

package config

var (
	ChainIDToName = map[int64]string{
		1:          "homestead",
		5:          "goerli",
		10:         "optimism",
		56:         "bnb",
		137:        "matic",
		8453:       "base",
		42161:      "arbitrum",
		11155111:   "sepolia",
		1313161554: "aurora",
		1313161555: "aurora-testnet",
	}
)

// ChainName returns the display name for an EVM chain id.
func ChainName(chainID int64) string {
	if name, ok := ChainIDToName[chainID]; ok {
		return name
	}
	return "unknown"
}
