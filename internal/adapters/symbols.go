package adapters

import (
	"errors"
	"strings"
)

// AssetClass selects endpoint, payload key, close field and cache freshness
type AssetClass int

const (
	ClassEquity AssetClass = iota
	ClassCrypto
)

func (c AssetClass) String() string {
	switch c {
	case ClassCrypto:
		return "crypto"
	default:
		return "equity"
	}
}

// ReservedSymbol is the quote currency; it has no price of its own
const ReservedSymbol = "USD"

var (
	ErrEmptySymbol    = errors.New("empty symbol")
	ErrReservedSymbol = errors.New("USD is the base currency and has no price")
)

// cryptoSymbols is the fixed set served by DIGITAL_CURRENCY_DAILY
var cryptoSymbols = map[string]struct{}{
	"BTC":  {},
	"ETH":  {},
	"USDT": {},
}

// Classify maps a normalized symbol to its asset class
func Classify(symbol string) AssetClass {
	if _, ok := cryptoSymbols[symbol]; ok {
		return ClassCrypto
	}
	return ClassEquity
}

// NormalizeSymbol trims whitespace and uppercases
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol rejects symbols that must never reach the quote layer.
// Callers are expected to normalize first.
func ValidateSymbol(symbol string) error {
	switch symbol {
	case "":
		return ErrEmptySymbol
	case ReservedSymbol:
		return ErrReservedSymbol
	}
	return nil
}
