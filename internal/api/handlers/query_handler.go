package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/models"
	"github.com/solenne-labs/corpora/internal/services"
)

type QueryHandler struct {
	retrieval *services.RetrievalService
	embedder  core.EmbeddingProvider
	llm       core.LLMProvider
}

func NewQueryHandler(retrieval *services.RetrievalService, emb core.EmbeddingProvider, llm core.LLMProvider) *QueryHandler {
	return &QueryHandler{retrieval: retrieval, embedder: emb, llm: llm}
}

type retrieveRequest struct {
	Query      string  `json:"query"`
	Threshold  float64 `json:"threshold"`
	MaxResults int     `json:"max_results"`
}

type retrieveResponse struct {
	Results []models.ScoredChunk `json:"results"`
}

// Retrieve embeds the query text and returns the caller's most similar
// chunks. No matches is an empty list, not an error.
func (h *QueryHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		http.Error(w, "invalid request", 400)
		return
	}

	results, err := h.search(r, userID, req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrDimensionMismatch) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(retrieveResponse{Results: results})
}

type askRequest struct {
	Query     string  `json:"query"`
	Threshold float64 `json:"threshold"`
}

// Ask retrieves context for the question and has the LLM answer from it.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		http.Error(w, "invalid request", 400)
		return
	}

	results, err := h.search(r, userID, retrieveRequest{Query: req.Query, Threshold: req.Threshold, MaxResults: 5})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if len(results) == 0 {
		json.NewEncoder(w).Encode(map[string]string{
			"answer": "I cannot find anything relevant in your documents.",
		})
		return
	}

	var sb strings.Builder
	for _, sc := range results {
		sb.WriteString(sc.Chunk.Text)
		sb.WriteString("\n---\n")
	}

	systemPrompt := "You are an intelligent assistant answering based only on the given document content. If unsure, say 'I cannot find this in the document.'"
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", sb.String(), req.Query)

	answer, err := h.llm.Generate(r.Context(), systemPrompt, userPrompt)
	if err != nil {
		http.Error(w, fmt.Sprintf("LLM failed: %v", err), 500)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{
		"answer": answer,
	})
}

func (h *QueryHandler) search(r *http.Request, userID string, req retrieveRequest) ([]models.ScoredChunk, error) {
	vecs, err := h.embedder.EmbedTexts(r.Context(), []string{req.Query})
	if err != nil || len(vecs) == 0 {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return h.retrieval.Retrieve(r.Context(), userID, vecs[0], req.Threshold, req.MaxResults)
}
