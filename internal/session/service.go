package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/zombor/billsplit/internal/bill"
	"github.com/zombor/billsplit/internal/scanning"
)

// ErrNothingToShare is returned by Share for an empty bill.
var ErrNothingToShare = errors.New("there are no items to share")

const (
	// DefaultScansPerMinute bounds calls to the scanning service.
	DefaultScansPerMinute = 6

	scanMemoTTL     = 10 * time.Minute
	scanMemoCleanup = 20 * time.Minute
)

// ItemView is a line item as the page renders it.
type ItemView struct {
	Ordinal   int             `json:"ordinal"`
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	Amount    decimal.Decimal `json:"amount"`
	Formatted string          `json:"formatted"`
	Deduction bool            `json:"deduction"`
	CreatedAt time.Time       `json:"created_at"`
}

// View is a read-only snapshot of the session.
type View struct {
	Items          []ItemView        `json:"items"`
	Total          decimal.Decimal   `json:"total"`
	TotalFormatted string            `json:"total_formatted"`
	Input          string            `json:"input"`
	Display        string            `json:"display"`
	Preview        string            `json:"preview,omitempty"`
	Edit           *bill.EditSession `json:"edit,omitempty"`
	Scanning       bool              `json:"scanning"`
	Notice         string            `json:"notice,omitempty"`
	HintSeen       bool              `json:"hint_seen"`
}

// Options tune a Service. Zero values select the defaults.
type Options struct {
	Formatter      bill.Formatter
	Stamper        bill.Stamper
	ScansPerMinute int
}

// Service owns the state of one interactive session. Each call applies at
// most one transition while holding the lock; the scanner runs unlocked.
type Service struct {
	mu       sync.Mutex
	state    bill.State
	hintSeen bool

	stamper bill.Stamper
	format  bill.Formatter
	scanner scanning.Scanner
	flags   FlagStore

	scanSlot *semaphore.Weighted
	limiter  *rate.Limiter
	memo     *cache.Cache
	labels   *bluemonday.Policy
}

// NewService creates a Service with default formatting, ids and quota
func NewService(scanner scanning.Scanner, flags FlagStore) (*Service, error) {
	return NewServiceWithDeps(scanner, flags, Options{})
}

// NewServiceWithDeps creates a Service with custom dependencies. The hint
// flag is read once here.
func NewServiceWithDeps(scanner scanning.Scanner, flags FlagStore, opts Options) (*Service, error) {
	if opts.Stamper.IDs == nil || opts.Stamper.Clock == nil {
		opts.Stamper = bill.DefaultStamper()
	}
	if opts.ScansPerMinute <= 0 {
		opts.ScansPerMinute = DefaultScansPerMinute
	}

	hintSeen, err := flags.HintSeen()
	if err != nil {
		return nil, fmt.Errorf("loading hint flag: %w", err)
	}

	return &Service{
		hintSeen: hintSeen,
		stamper:  opts.Stamper,
		format:   opts.Formatter,
		scanner:  scanner,
		flags:    flags,
		scanSlot: semaphore.NewWeighted(1),
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.ScansPerMinute)), opts.ScansPerMinute),
		memo:     cache.New(scanMemoTTL, scanMemoCleanup),
		labels:   bluemonday.StrictPolicy(),
	}, nil
}

// View returns a snapshot of the current state
func (s *Service) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Dispatch applies one action and returns the resulting view. Validation
// errors come back alongside the unchanged view.
func (s *Service) Dispatch(a bill.Action) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := bill.Reduce(s.state, a, s.stamper)
	s.state = next
	return s.viewLocked(), err
}

// Share returns the plain-text summary for the clipboard
func (s *Service) Share() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Ledger.Len() == 0 {
		return "", ErrNothingToShare
	}
	return s.format.Summary(s.state.Ledger), nil
}

// HintSeen reports the install hint flag as loaded at start
func (s *Service) HintSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hintSeen
}

// DismissHint persists the install hint flag. Only the first call writes.
func (s *Service) DismissHint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hintSeen {
		return nil
	}
	if err := s.flags.MarkHintSeen(); err != nil {
		return fmt.Errorf("dismissing hint: %w", err)
	}
	s.hintSeen = true
	return nil
}

// Scan imports the priced lines of a receipt photo. Only one scan may run
// at a time; a concurrent call fails fast with bill.ErrScanInProgress.
// Every other failure is reported through the returned outcome and leaves
// the ledger unchanged.
func (s *Service) Scan(ctx context.Context, imageData []byte, contentType string) (scanning.Outcome, View, error) {
	if !s.scanSlot.TryAcquire(1) {
		return scanning.Outcome{}, s.View(), bill.ErrScanInProgress
	}
	defer s.scanSlot.Release(1)

	if view, err := s.Dispatch(bill.ScanStarted{}); err != nil {
		return scanning.Outcome{}, view, err
	}

	outcome := s.runScan(ctx, imageData, contentType)
	finished := bill.ScanFinished{Notice: outcome.Message()}
	if outcome.Kind == scanning.KindItems {
		finished.Entries = make([]bill.ImportEntry, 0, len(outcome.Entries))
		for _, e := range outcome.Entries {
			finished.Entries = append(finished.Entries, bill.ImportEntry{Amount: e.Amount, Label: e.Label})
		}
	}

	view, err := s.Dispatch(finished)
	return outcome, view, err
}

func (s *Service) runScan(ctx context.Context, imageData []byte, contentType string) scanning.Outcome {
	sum := sha256.Sum256(imageData)
	key := hex.EncodeToString(sum[:])
	if cached, found := s.memo.Get(key); found {
		slog.Info("Reusing scan result", "digest", key[:12])
		return cached.(scanning.Outcome)
	}

	if !s.limiter.Allow() {
		slog.Warn("Scan quota exceeded", "content_type", contentType, "file_size", len(imageData))
		return scanning.NewOutcome(nil, fmt.Errorf("%w: too many scans, wait a moment", scanning.ErrUnavailable))
	}

	entries, err := s.scanner.ScanReceipt(ctx, imageData, contentType)
	for i := range entries {
		entries[i].Label = s.cleanLabel(entries[i].Label)
	}

	outcome := scanning.NewOutcome(entries, err)
	if !outcome.Succeeded() {
		slog.Error("Failed to scan receipt",
			"content_type", contentType,
			"file_size", len(imageData),
			"kind", outcome.Kind.String(),
			"error", err,
		)
		return outcome
	}

	slog.Info("Scanned receipt", "entries", len(outcome.Entries), "file_size", len(imageData))
	s.memo.Set(key, outcome, cache.DefaultExpiration)
	return outcome
}

// cleanLabel strips HTML elements the model echoed back from the photo.
// Text outside elements, stray "<" and spacing included, is kept as is.
func (s *Service) cleanLabel(label string) string {
	return html.UnescapeString(s.labels.Sanitize(label))
}

func (s *Service) viewLocked() View {
	items := s.state.Ledger.Items()
	view := View{
		Items:          make([]ItemView, 0, len(items)),
		Total:          s.state.Ledger.Total(),
		TotalFormatted: s.format.Currency(s.state.Ledger.Total()),
		Input:          s.state.Buffer.String(),
		Display:        s.state.Buffer.Display(),
		Scanning:       s.state.Scanning,
		Notice:         s.state.Notice,
		HintSeen:       s.hintSeen,
	}
	if s.state.Buffer.HasOperator() {
		view.Preview = s.format.Currency(s.state.Buffer.Evaluate())
	}
	if s.state.Edit != nil {
		edit := *s.state.Edit
		view.Edit = &edit
	}
	for i, item := range items {
		view.Items = append(view.Items, ItemView{
			Ordinal:   i + 1,
			ID:        item.ID,
			Label:     item.Label,
			Amount:    item.Amount,
			Formatted: s.format.Currency(item.Amount),
			Deduction: item.IsDeduction(),
			CreatedAt: item.CreatedAt,
		})
	}
	return view
}
