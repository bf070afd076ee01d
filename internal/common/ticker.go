// Package common provides shared utilities across the application.
package common

import (
	"strings"
)

// exchangeSuffixes lists the exchange codes that may trail a ticker symbol.
// The suffix is observed for broker resolution but carries no semantics here.
var exchangeSuffixes = []string{".AS", ".DE", ".L", ".PA", ".MI", ".MC"}

// NormalizeTicker uppercases and trims a ticker symbol. The symbol is treated
// as an opaque key; an exchange suffix is preserved as-is.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// BaseTicker strips a known exchange suffix, returning the bare symbol.
func BaseTicker(ticker string) string {
	t := NormalizeTicker(ticker)
	for _, suffix := range exchangeSuffixes {
		if strings.HasSuffix(t, suffix) {
			return strings.TrimSuffix(t, suffix)
		}
	}
	return t
}

// HasExchangeSuffix reports whether the ticker carries a known exchange code.
func HasExchangeSuffix(ticker string) bool {
	t := NormalizeTicker(ticker)
	for _, suffix := range exchangeSuffixes {
		if strings.HasSuffix(t, suffix) {
			return true
		}
	}
	return false
}
