package domain

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is a currency-tagged amount. Known is false when the source value could not be parsed.
type Price struct {
	Amount   decimal.Decimal
	Currency string
	Known    bool
	Raw      string
}

var (
	currencySymbols = map[string]string{
		"$": "USD",
		"€": "EUR",
		"£": "GBP",
		"¥": "JPY",
		"₹": "INR",
	}
	currencyCodeExpr = regexp.MustCompile(`\b[A-Za-z]{3}\b`)
	amountExpr       = regexp.MustCompile(`\d[\d.,]*`)
	currencyNames    = map[string]string{
		"USD": "$",
		"EUR": "€",
		"GBP": "£",
		"JPY": "¥",
		"INR": "₹",
	}
)

// UnknownPrice keeps the raw text of a value that could not be parsed.
func UnknownPrice(raw string) Price {
	return Price{Raw: strings.TrimSpace(raw)}
}

// PriceFromFloat builds a known price from a JSON number.
func PriceFromFloat(amount float64, currency string) Price {
	if amount < 0 {
		return UnknownPrice("")
	}
	return Price{Amount: decimal.NewFromFloat(amount).Round(2), Currency: normalizeCurrency(currency), Known: true}
}

// PriceFromMinorUnits builds a price from an integer amount and its divisor (e.g. cents / 100).
func PriceFromMinorUnits(amount, divisor int64, currency string) Price {
	if divisor <= 0 || amount < 0 {
		return UnknownPrice("")
	}
	return Price{
		Amount:   decimal.NewFromInt(amount).Div(decimal.NewFromInt(divisor)).Round(2),
		Currency: normalizeCurrency(currency),
		Known:    true,
	}
}

// ParsePrice normalizes free-form price text. It never fails: unparsable input yields an unknown price.
func ParsePrice(raw, defaultCurrency string) Price {
	text := strings.TrimSpace(raw)
	if text == "" {
		return UnknownPrice(raw)
	}

	currency := ""
	for symbol, code := range currencySymbols {
		if strings.Contains(text, symbol) {
			currency = code
			text = strings.ReplaceAll(text, symbol, " ")
			break
		}
	}
	if code := currencyCodeExpr.FindString(text); code != "" {
		if currency == "" {
			currency = strings.ToUpper(code)
		}
		text = strings.Replace(text, code, " ", 1)
	}

	matches := amountExpr.FindAllString(text, -1)
	if len(matches) != 1 || strings.TrimSpace(text) != matches[0] {
		return UnknownPrice(raw)
	}

	amount, ok := parseAmount(matches[0])
	if !ok {
		return UnknownPrice(raw)
	}
	if currency == "" {
		currency = defaultCurrency
	}

	return Price{Amount: amount, Currency: normalizeCurrency(currency), Known: true, Raw: strings.TrimSpace(raw)}
}

// parseAmount understands both "1,299.99" and "1.299,99" grouping styles.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(s, " ", "")
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// "5,00" is a decimal comma, "1,299" is a thousands separator.
		if len(s)-lastComma-1 == 3 && strings.Count(s, ",") >= 1 && lastComma > 0 {
			s = strings.ReplaceAll(s, ",", "")
		} else if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			return decimal.Decimal{}, false
		}
	}

	if strings.Count(s, ".") > 1 {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d.Round(2), true
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD"
	}
	return code
}

// Equal compares two prices by value; unknown prices compare by raw text.
func (p Price) Equal(other Price) bool {
	if p.Known != other.Known {
		return false
	}
	if !p.Known {
		return p.Raw == other.Raw
	}
	return p.Currency == other.Currency && p.Amount.Equal(other.Amount)
}

// String renders "$19.99", "19.99 CHF" or "unknown".
func (p Price) String() string {
	if !p.Known {
		return "unknown"
	}
	if symbol, ok := currencyNames[p.Currency]; ok {
		return symbol + p.Amount.StringFixed(2)
	}
	return p.Amount.StringFixed(2) + " " + p.Currency
}

// Phrase is the price fragment used in narration.
func (p Price) Phrase() string {
	if !p.Known {
		return "at a price you will love"
	}
	return "for just " + p.String()
}

type priceJSON struct {
	Amount   *string `json:"amount,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Known    bool    `json:"known"`
	Raw      string  `json:"raw,omitempty"`
}

// MarshalJSON keeps the amount as a decimal string.
func (p Price) MarshalJSON() ([]byte, error) {
	out := priceJSON{Currency: p.Currency, Known: p.Known, Raw: p.Raw}
	if p.Known {
		amount := p.Amount.StringFixed(2)
		out.Amount = &amount
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (p *Price) UnmarshalJSON(data []byte) error {
	var in priceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Price{Currency: in.Currency, Known: in.Known, Raw: in.Raw}
	if in.Known && in.Amount != nil {
		amount, err := decimal.NewFromString(*in.Amount)
		if err != nil {
			return err
		}
		p.Amount = amount
	}
	return nil
}
