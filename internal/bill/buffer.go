package bill

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxBufferLength is the length past which Append stops accepting tokens.
const MaxBufferLength = 20

// TripleZero is the number pad's "000" key.
const TripleZero = "000"

var displayReplacer = strings.NewReplacer("*", " × ", "/", " ÷ ")

// Buffer is the free-text entry accumulated from the number pad. It only
// ever holds digits, '.', '*' and '/'. Operations return the next buffer
// and leave the receiver untouched.
type Buffer string

// Append adds one number pad token. Invalid tokens are ignored, as are
// tokens that would start the buffer with an operator or decimal point, or
// place one directly after another.
func (b Buffer) Append(token string) Buffer {
	if len(b) > MaxBufferLength || !isToken(token) {
		return b
	}
	if isOperatorLike(token) {
		if b == "" || isOperatorLike(string(b[len(b)-1])) {
			return b
		}
	}
	return b + Buffer(token)
}

// DeleteLast removes the final character.
func (b Buffer) DeleteLast() Buffer {
	if b == "" {
		return b
	}
	return b[:len(b)-1]
}

// Clear returns an empty buffer.
func (b Buffer) Clear() Buffer {
	return ""
}

// Evaluate returns the numeric value of the buffer, or 0 if it does not
// form a complete expression.
func (b Buffer) Evaluate() decimal.Decimal {
	return Evaluate(string(b))
}

// Display renders the buffer with × and ÷ in place of * and /.
func (b Buffer) Display() string {
	return displayReplacer.Replace(string(b))
}

// HasOperator reports whether the buffer holds a multiply or divide.
func (b Buffer) HasOperator() bool {
	return strings.ContainsAny(string(b), "*/")
}

func (b Buffer) String() string {
	return string(b)
}

func isOperatorLike(token string) bool {
	return token == "*" || token == "/" || token == "."
}

func isToken(token string) bool {
	if token == TripleZero {
		return true
	}
	if len(token) != 1 {
		return false
	}
	c := token[0]
	return (c >= '0' && c <= '9') || isOperatorLike(token)
}
