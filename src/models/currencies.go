package models

// SupportedCurrencies is the fixed set of ISO codes accepted anywhere an
// amount is recorded. Served verbatim by GET /api/currencies.
var SupportedCurrencies = []string{
	"USD", "EUR", "GBP", "JPY", "CHF", "CAD", "AUD", "BRL", "INR", "CNY",
}

var supportedCurrencySet = func() map[string]bool {
	set := make(map[string]bool, len(SupportedCurrencies))
	for _, c := range SupportedCurrencies {
		set[c] = true
	}
	return set
}()

func IsSupportedCurrency(code string) bool {
	return supportedCurrencySet[code]
}
