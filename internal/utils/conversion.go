/*
This file contains the conversions between on-chain integer amounts and the float values
shown on the dashboard. NEAR balances are denominated in yoctoNEAR (10^24) and EVM
balances in wei (10^18).
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
)

const (
	// NearDecimals is the number of decimals between NEAR and yoctoNEAR.
	NearDecimals = 24
	// EtherDecimals is the number of decimals between ETH and wei.
	EtherDecimals = 18

	maxPrecision = 24
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrInvalidAmount    = errors.New("amount string is not a valid integer")
)

func pow10(precision int) sdkmath.LegacyDec {
	factor := sdkmath.LegacyOneDec()
	ten := sdkmath.LegacyNewDec(10)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(ten)
	}
	return factor
}

func checkPrecision(precision int) error {
	if precision < 0 || precision > maxPrecision {
		return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, maxPrecision)
	}
	return nil
}

// SDKIntToFloat64 converts an integer base-unit amount to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if err := checkPrecision(precision); err != nil {
		return 0, err
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	result := sdkmath.LegacyNewDecFromInt(amount).Quo(pow10(precision))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// ParseBaseUnits parses a decimal integer string as returned by RPC nodes ("1000000000000000000000000").
func ParseBaseUnits(s string) (sdkmath.Int, error) {
	amount, ok := sdkmath.NewIntFromString(strings.TrimSpace(s))
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return amount, nil
}

// YoctoToNear converts a yoctoNEAR string to NEAR.
func YoctoToNear(yocto string) (float64, error) {
	amount, err := ParseBaseUnits(yocto)
	if err != nil {
		return 0, err
	}
	return SDKIntToFloat64(amount, NearDecimals)
}

// WeiHexToEther converts a 0x-prefixed hex wei quantity (eth_getBalance) to ETH.
func WeiHexToEther(hexWei string) (float64, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(hexWei), "0x"), "0X")
	if s == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, hexWei)
	}
	bi, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, hexWei)
	}
	return SDKIntToFloat64(sdkmath.NewIntFromBigInt(bi), EtherDecimals)
}
