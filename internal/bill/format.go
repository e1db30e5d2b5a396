package bill

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	summarySeparator = "------------------"
	totalPrefix      = "TOTAL: "
	unitSeparator    = "\u00a0"
)

// Formatter renders amounts as whole units of one currency in one locale.
// The symbol always follows the number.
type Formatter struct {
	group  string
	symbol string
}

// NewFormatter groups digits the way lang does and suffixes the narrow
// symbol of unit, which is its ISO code when CLDR knows no symbol.
func NewFormatter(lang language.Tag, unit currency.Unit) Formatter {
	p := message.NewPrinter(lang)
	return Formatter{
		group:  groupSeparator(p),
		symbol: p.Sprint(currency.NarrowSymbol(unit)),
	}
}

// groupSeparator extracts the thousands separator the printer uses.
func groupSeparator(p *message.Printer) string {
	s := p.Sprintf("%d", 1000)
	if len(s) < 4 || !strings.HasPrefix(s, "1") || !strings.HasSuffix(s, "000") {
		return ""
	}
	return s[1 : len(s)-3]
}

// DefaultFormatter formats Vietnamese dong, e.g. "20.000 ₫".
func DefaultFormatter() Formatter {
	return NewFormatter(language.Vietnamese, currency.MustParseISO("VND"))
}

// ParseLocale resolves the locale and ISO currency code given on the
// command line.
func ParseLocale(lang, code string) (Formatter, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return Formatter{}, fmt.Errorf("parsing locale %q: %w", lang, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Formatter{}, fmt.Errorf("parsing currency %q: %w", code, err)
	}
	return NewFormatter(tag, unit), nil
}

// Currency formats amount rounded half away from zero to whole units. The
// digits come from the decimal itself, so any magnitude is exact.
func (f Formatter) Currency(amount decimal.Decimal) string {
	if f.symbol == "" {
		f = DefaultFormatter()
	}
	digits := amount.StringFixed(0)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	return sign + groupDigits(digits, f.group) + unitSeparator + f.symbol
}

func groupDigits(digits, sep string) string {
	if sep == "" || len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}

// Summary builds the share text: one numbered line per item, a separator
// and the total.
func (f Formatter) Summary(l Ledger) string {
	var sb strings.Builder
	for i, item := range l.items {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, item.Label, f.Currency(item.Amount))
	}
	sb.WriteString(summarySeparator)
	sb.WriteString("\n")
	sb.WriteString(totalPrefix)
	sb.WriteString(f.Currency(l.Total()))
	return sb.String()
}
