// Package bill holds the calculator core: the number pad buffer, the ledger
// of signed line items and the reducer that moves the session state forward.
package bill

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DeductionLabel marks items committed with the deduct key.
	DeductionLabel = "Deduction"
	// LooseItemLabel is used for imported items without a readable name.
	LooseItemLabel = "Loose item"

	calcLabelPrefix = "Calc: "
)

// LineItem is one signed entry on the bill.
type LineItem struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Label     string          `json:"label"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsDeduction reports whether the item subtracts from the total.
func (i LineItem) IsDeduction() bool {
	return i.Amount.IsNegative()
}

// ImportEntry is one extracted receipt line. Amount is the raw textual value
// and is validated when the entry is imported.
type ImportEntry struct {
	Amount string
	Label  string
}

// IDGenerator generates unique IDs for line items
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Stamper supplies identity and creation time for new items.
type Stamper struct {
	IDs   IDGenerator
	Clock TimeSource
}

// DefaultStamper uses random UUIDs and the wall clock.
func DefaultStamper() Stamper {
	return Stamper{IDs: uuidGenerator{}, Clock: systemClock{}}
}

func (s Stamper) newItem(amount decimal.Decimal, label string) LineItem {
	ids, clock := s.IDs, s.Clock
	if ids == nil {
		ids = uuidGenerator{}
	}
	if clock == nil {
		clock = systemClock{}
	}
	return LineItem{
		ID:        ids.Generate(),
		Amount:    amount,
		Label:     label,
		CreatedAt: clock.Now(),
	}
}

func ordinalLabel(n int) string {
	return fmt.Sprintf("Item %d", n)
}
