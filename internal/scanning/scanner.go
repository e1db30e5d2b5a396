package scanning

import (
	"context"
	"errors"
)

var (
	// ErrMissingCredential means no API key was configured.
	ErrMissingCredential = errors.New("gemini api key is not configured")
	// ErrMalformedCredential means the configured key does not look like a Gemini key.
	ErrMalformedCredential = errors.New("gemini api key is malformed")
	// ErrCredentialRejected means the service refused the key.
	ErrCredentialRejected = errors.New("gemini api key was rejected")
	// ErrMalformedResponse means the service answered with something other than a JSON array of items.
	ErrMalformedResponse = errors.New("malformed scanner response")
	// ErrUnreadableImage means the photo could not be decoded.
	ErrUnreadableImage = errors.New("unreadable receipt image")
	// ErrUnavailable covers network failures, timeouts, quota and server errors.
	ErrUnavailable = errors.New("scanning service unavailable")
)

// Entry is one priced line read off a receipt. Amount holds the numeric
// literal exactly as the service returned it.
type Entry struct {
	Amount string `json:"amount"`
	Label  string `json:"label"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt extracts priced lines from a receipt photo. An empty slice
	// with a nil error means the service found nothing.
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) ([]Entry, error)
	// Close closes the scanner and releases resources
	Close() error
}

// Unconfigured is the Scanner used when no usable credential is available.
// Every scan fails with the configuration error so the rest of the app keeps
// working.
type Unconfigured struct {
	Err error
}

// ScanReceipt always returns the configuration error.
func (u Unconfigured) ScanReceipt(context.Context, []byte, string) ([]Entry, error) {
	if u.Err == nil {
		return nil, ErrMissingCredential
	}
	return nil, u.Err
}

// Close is a no-op.
func (u Unconfigured) Close() error {
	return nil
}
