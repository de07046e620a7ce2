package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/solenne-labs/corpora/internal/config"
	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/core/identity"
	"github.com/solenne-labs/corpora/internal/services"
)

type DocumentHandler struct {
	intake    *services.IntakeService
	documents *services.DocumentService
	storage   core.ObjectClient
	cfg       *config.Config
}

func NewDocumentHandler(intake *services.IntakeService, documents *services.DocumentService, storage core.ObjectClient, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{intake: intake, documents: documents, storage: storage, cfg: cfg}
}

// UploadDocument stores the raw bytes, fingerprints them, and hands them
// to the intake service. Identical bytes from the same user land on the
// same document (and the same S3 key), so repeat uploads are cheap.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {

	r.ParseMultipartForm(52 << 20)

	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}
	contentHash := identity.HashBytes(data)

	// Sanitize filename to prevent path traversal or invalid characters
	cleanFilename := filepath.Base(header.Filename)
	key := path.Join("users", userID, "raw", contentHash, cleanFilename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	rawURL, err := h.storage.UploadFile(uploadctx, h.cfg.BucketName, key, bytes.NewReader(data), contentType)
	if err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), 500)
		return
	}

	doc, err := h.intake.Submit(uploadctx, userID, cleanFilename, contentType, rawURL, contentHash)
	if err != nil {
		log.Printf("intake failed for owner %s hash %s: %v", userID, contentHash, err)
		http.Error(w, fmt.Sprintf("intake failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	documents, err := h.documents.ListByOwner(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

// GetStatus reports the processing status of one document.
func (h *DocumentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}
	docID := chi.URLParam(r, "document_id")

	status, err := h.documents.Status(r.Context(), userID, docID)
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"document_id": docID, "status": status})
}

// Reprocess re-queues a failed document.
func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}
	docID := chi.URLParam(r, "document_id")

	if err := h.documents.Reprocess(r.Context(), userID, docID); err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"document_id": docID, "status": "queued"})
}
