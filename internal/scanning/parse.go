package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// LooseItemLabel names entries whose label is missing or unreadable.
const LooseItemLabel = "Loose item"

const excerptLength = 40

// ParseEntries parses the service's answer. Surrounding whitespace is
// allowed; anything else around the array (markdown fences, prose) is a
// malformed response, and so is a blank answer. Elements without a numeric
// amount are dropped.
func ParseEntries(text string) ([]Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrMalformedResponse)
	}
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return nil, fmt.Errorf("%w: expected a JSON array, got %q", ErrMalformedResponse, excerpt(text))
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(text), &elements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	entries := make([]Entry, 0, len(elements))
	for i, raw := range elements {
		entry, ok := parseElement(raw)
		if !ok {
			slog.Warn("Skipping receipt entry without a numeric amount", "index", i, "element", excerpt(string(raw)))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseElement(raw json.RawMessage) (Entry, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Entry{}, false
	}

	amount, ok := parseAmount(fields["amount"])
	if !ok {
		return Entry{}, false
	}
	return Entry{Amount: amount, Label: parseLabel(fields["label"])}, true
}

// parseAmount accepts a JSON number, or a string holding one.
func parseAmount(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	var literal string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &literal); err != nil {
			return "", false
		}
		literal = strings.TrimSpace(literal)
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		literal = n.String()
	}

	if _, err := decimal.NewFromString(literal); err != nil {
		return "", false
	}
	return literal, true
}

func parseLabel(raw json.RawMessage) string {
	var label string
	if err := json.Unmarshal(raw, &label); err != nil {
		return LooseItemLabel
	}
	if strings.TrimSpace(label) == "" {
		return LooseItemLabel
	}
	return label
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= excerptLength {
		return s
	}
	return string(r[:excerptLength]) + "…"
}
