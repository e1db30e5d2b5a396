package scanning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
)

// Kind tags the result of one scan.
type Kind int

const (
	KindItems Kind = iota
	KindEmpty
	KindConfigError
	KindRejected
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindItems:
		return "items"
	case KindEmpty:
		return "empty"
	case KindConfigError:
		return "config_error"
	case KindRejected:
		return "rejected"
	case KindTransient:
		return "transient"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is a scan result folded into one of the five kinds.
type Outcome struct {
	Kind    Kind
	Entries []Entry
	Err     error
}

// NewOutcome classifies the return values of Scanner.ScanReceipt.
func NewOutcome(entries []Entry, err error) Outcome {
	switch {
	case err == nil && len(entries) == 0:
		return Outcome{Kind: KindEmpty}
	case err == nil:
		return Outcome{Kind: KindItems, Entries: entries}
	case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrMalformedCredential):
		return Outcome{Kind: KindConfigError, Err: err}
	case errors.Is(err, ErrCredentialRejected), errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrUnreadableImage):
		return Outcome{Kind: KindRejected, Err: err}
	default:
		return Outcome{Kind: KindTransient, Err: err}
	}
}

// Succeeded reports whether the scan produced a usable answer.
func (o Outcome) Succeeded() bool {
	return o.Kind == KindItems || o.Kind == KindEmpty
}

// Message is the text shown to the user for this outcome.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindItems:
		if len(o.Entries) == 1 {
			return "Imported 1 item from the receipt."
		}
		return fmt.Sprintf("Imported %d items from the receipt.", len(o.Entries))
	case KindEmpty:
		return "No amounts were found on the receipt."
	case KindConfigError:
		if errors.Is(o.Err, ErrMalformedCredential) {
			return "Receipt scanning is disabled: the configured API key does not look like a Gemini key (" + o.Err.Error() + "). Fix GEMINI_API_KEY and restart."
		}
		return "Receipt scanning is disabled: no API key is configured. Set GEMINI_API_KEY or pass --gemini-key and restart."
	case KindRejected:
		switch {
		case errors.Is(o.Err, ErrCredentialRejected):
			return "Gemini rejected the API key (" + o.Err.Error() + "). Check that the key is valid and not expired."
		case errors.Is(o.Err, ErrUnreadableImage):
			return "The photo could not be read (" + o.Err.Error() + "). Try a JPEG, PNG or HEIC picture."
		}
		return "The scanner returned an unexpected answer (" + o.Err.Error() + "). Try again with a clearer photo."
	}
	return "The scanning service is unavailable right now. Check your connection and try again."
}

// classifyError maps a Gemini client error onto the package's sentinel
// errors. The key never appears in the result, only its masked form.
func classifyError(err error, key string) error {
	if err == nil {
		return nil
	}
	msg := redact(err.Error(), key)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}

	status := 0
	var gerr *googleapi.Error
	var aerr *apierror.APIError
	switch {
	case errors.As(err, &gerr):
		status = gerr.Code
	case errors.As(err, &aerr):
		status = aerr.HTTPCode()
	}

	rejected := strings.Contains(msg, "API key not valid") || strings.Contains(msg, "API_KEY_INVALID")
	switch {
	case rejected, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w (key %s): %s", ErrCredentialRejected, MaskCredential(key), msg)
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	case status >= http.StatusBadRequest:
		return fmt.Errorf("%w: service answered %d: %s", ErrMalformedResponse, status, msg)
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, msg)
}

func redact(s, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, key, MaskCredential(key))
}
