package bill

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Evaluate interprets expr as a left-to-right chain of multiplications and
// divisions, e.g. "4*20000" or "100/4". Characters outside 0-9 . * / - are
// dropped first. Anything that does not parse (a trailing operator, an
// operand with two decimal points, subtraction, division by zero) yields 0.
func Evaluate(expr string) decimal.Decimal {
	clean := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || strings.ContainsRune(".*/-", r) {
			return r
		}
		return -1
	}, expr)
	if clean == "" {
		return decimal.Zero
	}

	result, ok := evalChain(clean)
	if !ok {
		return decimal.Zero
	}
	return result
}

func evalChain(s string) (decimal.Decimal, bool) {
	acc, rest, ok := readOperand(s)
	if !ok {
		return decimal.Zero, false
	}

	for rest != "" {
		op := rest[0]
		if op != '*' && op != '/' {
			return decimal.Zero, false
		}

		var next decimal.Decimal
		next, rest, ok = readOperand(rest[1:])
		if !ok {
			return decimal.Zero, false
		}

		if op == '*' {
			acc = acc.Mul(next)
			continue
		}
		if next.IsZero() {
			return decimal.Zero, false
		}
		acc = acc.Div(next)
	}

	return acc, true
}

// readOperand consumes an optional leading '-' followed by digits containing
// at most one '.', and returns the parsed value and the unconsumed remainder.
func readOperand(s string) (decimal.Decimal, string, bool) {
	var (
		negative bool
		intPart  strings.Builder
		fracPart strings.Builder
		seenDot  bool
		digits   int
		i        int
	)

	if strings.HasPrefix(s, "-") {
		negative = true
		i++
	}

scan:
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
			if seenDot {
				fracPart.WriteByte(c)
			} else {
				intPart.WriteByte(c)
			}
		case c == '.':
			if seenDot {
				return decimal.Zero, "", false
			}
			seenDot = true
		default:
			break scan
		}
	}

	if digits == 0 {
		return decimal.Zero, "", false
	}

	literal := intPart.String()
	if literal == "" {
		literal = "0"
	}
	if fracPart.Len() > 0 {
		literal += "." + fracPart.String()
	}
	if negative {
		literal = "-" + literal
	}

	value, err := decimal.NewFromString(literal)
	if err != nil {
		return decimal.Zero, "", false
	}
	return value, s[i:], true
}
