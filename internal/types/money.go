// README: Common money value object used across modules.
package types

// DefaultCurrency is used for amounts that arrive without a currency.
const DefaultCurrency = "VND"

// Money amounts are whole units of Currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func NewMoney(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}

func (m Money) Add(amount int64) Money {
	cur := m.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	return Money{Amount: m.Amount + amount, Currency: cur}
}
