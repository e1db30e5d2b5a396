package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	// DefaultModel is used when no model name is configured.
	DefaultModel = "gemini-2.5-flash"
	// DefaultTimeout bounds a single scan.
	DefaultTimeout = 30 * time.Second
)

// receiptPrompt asks for the bare JSON array the parser expects.
const receiptPrompt = `You are helping a group split a restaurant or bar bill. Look at this photo of a printed receipt or a hand-written list of dishes and drinks and extract the price of every line.

Return ONLY a JSON array of objects in this exact format:
[{"amount": 20000, "label": "Beer"}]

Rules:
- "amount" must be a whole number in the receipt's currency, without thousands separators, currency signs or words
- "label" is the dish or drink name as written; use "Loose item" if you cannot read it
- Fold quantities into the amount (2 x 15000 becomes 30000)
- Skip subtotals, totals, taxes and change
- If there are no priced lines, return []
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	apiKey  string
	timeout time.Duration
}

// NewGemini creates a new Gemini Scanner instance. The key is validated
// before any client is built.
func NewGemini(apiKey string, modelName string, timeout time.Duration) (*Gemini, error) {
	if err := ValidateCredential(apiKey); err != nil {
		return nil, err
	}
	apiKey = strings.TrimSpace(apiKey)
	if modelName == "" {
		modelName = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   configureModel(client.GenerativeModel(modelName)),
		apiKey:  apiKey,
		timeout: timeout,
	}, nil
}

// configureModel asks for deterministic JSON output; ParseEntries rejects
// anything but a bare array.
func configureModel(model *genai.GenerativeModel) *genai.GenerativeModel {
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	return model
}

// ScanReceipt sends the photo to Gemini and parses the priced lines.
func (g *Gemini) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (entries []Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entries = nil
			err = fmt.Errorf("%w: %v", ErrMalformedResponse, r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pngData, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	// genai.ImageData expects the format suffix, not the full MIME type
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", pngData), genai.Text(receiptPrompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return nil, fmt.Errorf("%w: response blocked by the service", ErrMalformedResponse)
		}
		return nil, classifyError(err, g.apiKey)
	}

	return ParseEntries(responseText(resp))
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
