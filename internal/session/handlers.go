package session

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/billsplit/internal/bill"
)

// maxUploadSize caps receipt photos; phone pictures are rarely above 15MB
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeDispatch answers with the new view, or with a 4xx when the action
// was rejected.
func writeDispatch(w http.ResponseWriter, view View, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, view)
	case errors.Is(err, bill.ErrScanInProgress):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "state": view})
	default:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "state": view})
	}
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return io.EOF
	}
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.View())
}

func (s *Server) handleAppendInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	view, err := s.service.Dispatch(bill.AppendToken{Token: req.Token})
	writeDispatch(w, view, err)
}

func (s *Server) handleDeleteLast(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Dispatch(bill.DeleteLast{})
	writeDispatch(w, view, err)
}

func (s *Server) handleClearInput(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Dispatch(bill.ClearInput{})
	writeDispatch(w, view, err)
}

// handleCommitItem commits the buffer; {"deduction": true} subtracts it
func (s *Server) handleCommitItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Deduction bool `json:"deduction"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	view, err := s.service.Dispatch(bill.CommitEntry{Deduction: req.Deduction})
	writeDispatch(w, view, err)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Dispatch(bill.RemoveItem{ID: r.PathValue("id")})
	writeDispatch(w, view, err)
}

func (s *Server) handleStartEdit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := s.service.Dispatch(bill.StartEdit{ID: id})
	if err == nil && (view.Edit == nil || view.Edit.ItemID != id) {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	writeDispatch(w, view, err)
}

func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Draft string `json:"draft"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	view, err := s.service.Dispatch(bill.UpdateDraft{Draft: req.Draft})
	writeDispatch(w, view, err)
}

func (s *Server) handleCommitEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	view, err := s.service.Dispatch(bill.CommitEdit{Value: req.Value})
	writeDispatch(w, view, err)
}

func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Dispatch(bill.CancelEdit{})
	writeDispatch(w, view, err)
}

// handleReset clears the whole bill; the body must carry {"confirm": true}
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	view, err := s.service.Dispatch(bill.ClearAll{Confirmed: req.Confirm})
	if errors.Is(err, bill.ErrConfirmationRequired) {
		writeJSON(w, http.StatusPreconditionRequired, map[string]any{"error": err.Error(), "state": view})
		return
	}
	writeDispatch(w, view, err)
}

// handleScan imports a receipt photo sent as the "file" form field
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a photo of the receipt."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := uploadContentType(header.Header.Get("Content-Type"), header.Filename)
	outcome, view, err := s.service.Scan(r.Context(), data, contentType)
	if err != nil {
		writeDispatch(w, view, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kind":    outcome.Kind.String(),
		"message": outcome.Message(),
		"state":   view,
	})
}

// handleSummary returns the share text as plain text
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Share()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, summary)
}

func (s *Server) handleGetHint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"seen": s.service.HintSeen()})
}

func (s *Server) handleDismissHint(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DismissHint(); err != nil {
		slog.Error("Error dismissing hint", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadContentType prefers the declared type and falls back to the file
// extension
func uploadContentType(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}
