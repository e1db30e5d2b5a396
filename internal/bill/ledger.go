package bill

import (
	"errors"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidEditValue     = errors.New("edit value must be a non-zero number")
	ErrConfirmationRequired = errors.New("clearing the bill requires confirmation")
	ErrScanInProgress       = errors.New("a receipt scan is already in progress")
)

// Ledger is the ordered list of committed items. Insertion order is display
// order. Every mutating method returns a new Ledger and never writes to the
// receiver's backing array.
type Ledger struct {
	items []LineItem
}

// NewLedger builds a ledger holding a copy of items.
func NewLedger(items ...LineItem) Ledger {
	return Ledger{items: slices.Clone(items)}
}

// Items returns a copy of the items in display order.
func (l Ledger) Items() []LineItem {
	return slices.Clone(l.items)
}

// Len returns the number of items.
func (l Ledger) Len() int {
	return len(l.items)
}

// Total sums every item's amount.
func (l Ledger) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range l.items {
		total = total.Add(item.Amount)
	}
	return total
}

// Find returns the item with the given id.
func (l Ledger) Find(id string) (LineItem, bool) {
	idx := l.indexOf(id)
	if idx < 0 {
		return LineItem{}, false
	}
	return l.items[idx], true
}

// Commit evaluates buf and appends the result as a new item. A zero result
// leaves both the ledger and the buffer unchanged and reports false.
func (l Ledger) Commit(buf Buffer, deduction bool, st Stamper) (Ledger, Buffer, bool) {
	value := buf.Evaluate()
	if value.IsZero() {
		return l, buf, false
	}

	amount := value.Abs()
	var label string
	switch {
	case deduction:
		amount = amount.Neg()
		label = DeductionLabel
	case buf.HasOperator():
		label = calcLabelPrefix + buf.Display()
	default:
		label = ordinalLabel(len(l.items) + 1)
	}

	return l.with(st.newItem(amount, label)), buf.Clear(), true
}

// Remove drops the item with the given id. Unknown ids are ignored.
func (l Ledger) Remove(id string) Ledger {
	idx := l.indexOf(id)
	if idx < 0 {
		return l
	}
	return Ledger{items: slices.Delete(slices.Clone(l.items), idx, idx+1)}
}

// Import appends one item per entry. Entries whose amount is not a non-zero
// number are skipped; the number of skipped entries is returned.
func (l Ledger) Import(entries []ImportEntry, st Stamper) (Ledger, int) {
	next := slices.Clone(l.items)
	skipped := 0
	for _, entry := range entries {
		amount, err := decimal.NewFromString(strings.TrimSpace(entry.Amount))
		if err != nil || amount.IsZero() {
			skipped++
			continue
		}
		label := entry.Label
		if strings.TrimSpace(label) == "" {
			label = LooseItemLabel
		}
		next = append(next, st.newItem(amount, label))
	}
	return Ledger{items: next}, skipped
}

// StartEdit opens an edit session for id seeded with the item's magnitude.
func (l Ledger) StartEdit(id string) (EditSession, bool) {
	item, ok := l.Find(id)
	if !ok {
		return EditSession{}, false
	}
	return EditSession{ItemID: id, Draft: item.Amount.Abs().String()}, true
}

// CommitEdit replaces the magnitude of the session's item with raw, keeping
// the item's sign. It reports false without error when the item no longer
// exists.
func (l Ledger) CommitEdit(session EditSession, raw string) (Ledger, bool, error) {
	value, err := parseEditValue(raw)
	if err != nil {
		return l, false, err
	}

	idx := l.indexOf(session.ItemID)
	if idx < 0 {
		return l, false, nil
	}

	next := slices.Clone(l.items)
	if next[idx].Amount.IsNegative() {
		next[idx].Amount = value.Neg()
	} else {
		next[idx].Amount = value
	}
	return Ledger{items: next}, true, nil
}

func (l Ledger) with(item LineItem) Ledger {
	next := make([]LineItem, len(l.items), len(l.items)+1)
	copy(next, l.items)
	return Ledger{items: append(next, item)}
}

func (l Ledger) indexOf(id string) int {
	return slices.IndexFunc(l.items, func(item LineItem) bool {
		return item.ID == id
	})
}

func parseEditValue(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || value.IsZero() {
		return decimal.Zero, ErrInvalidEditValue
	}
	return value.Abs(), nil
}
