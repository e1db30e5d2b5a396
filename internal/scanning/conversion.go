package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

type imageKind int

const (
	kindPNG imageKind = iota
	kindHEIC
	kindPDF
	kindDecodable
)

// prepareImageData turns any supported upload into PNG bytes. PNG input is
// passed through untouched.
func prepareImageData(data []byte, contentType string) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	switch detectKind(data, contentType) {
	case kindPNG:
		return data, nil
	case kindHEIC:
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return encodePNG(img)
	case kindPDF:
		return pdfFirstPage(data)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format, use JPEG, PNG, GIF, HEIC or PDF: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if format == "png" {
		return data, nil
	}
	return encodePNG(img)
}

// detectKind trusts the magic bytes first and the declared MIME type second.
// Phones often upload HEIC with a generic or missing content type.
func detectKind(data []byte, contentType string) imageKind {
	if isHEICFormat(data) {
		return kindHEIC
	}
	switch http.DetectContentType(data) {
	case "image/png":
		return kindPNG
	case "application/pdf":
		return kindPDF
	}

	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.Contains(mimeType, "heic"), strings.Contains(mimeType, "heif"):
		return kindHEIC
	case mimeType == "application/pdf":
		return kindPDF
	}
	return kindDecodable
}

// isHEICFormat looks for an ftyp box with a HEIC family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// pdfFirstPage renders page one of a PDF receipt
func pdfFirstPage(data []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
