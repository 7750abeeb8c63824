package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/twinlab/digital-twin/internal/apperr"
	"github.com/twinlab/digital-twin/internal/core"
	"github.com/twinlab/digital-twin/internal/llm"
	"github.com/twinlab/digital-twin/internal/vector"
)

const (
	serviceName = "Digital Twin API"
	maxTopK     = 20
)

// TwinService is what the HTTP layer needs from the orchestrator.
type TwinService interface {
	AnswerTopK(ctx context.Context, question string, topK int) (*core.Answer, error)
	AnswerStream(ctx context.Context, question string, topK int) (*core.StreamAnswer, error)
	Search(ctx context.Context, query, category string, topK int) ([]core.Source, error)
	Info(ctx context.Context) (*vector.IndexInfo, error)
}

type APIHandler struct {
	twin   TwinService
	logger *zap.Logger
}

func NewAPIHandler(twin TwinService, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{twin: twin, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps core errors to HTTP status. Only bad input is a client error.
func statusFor(err error) int {
	if apperr.KindOf(err) == apperr.KindInvalidArgument {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

type ChatRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

type ChatResponse struct {
	Answer  string `json:"answer"`
	Sources int    `json:"sources"`
}

func (h *APIHandler) decodeChat(w http.ResponseWriter, r *http.Request) (*ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Missing 'question' in request body")
		return nil, false
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("top_k must be between 1 and %d", maxTopK))
		return nil, false
	}
	return &req, true
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	req, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	ans, err := h.twin.AnswerTopK(r.Context(), req.Question, req.TopK)
	if err != nil {
		h.logger.Error("chat failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Answer: ans.Text, Sources: ans.SourceCount})
}

func (h *APIHandler) ChatStatusHandler(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}

func (h *APIHandler) ChatOptionsHandler(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	w.WriteHeader(http.StatusOK)
}

// ChatStreamHandler answers as server-sent events: one "message" event per
// text fragment, then "done" with the source count or "error".
func (h *APIHandler) ChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	req, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sa, err := h.twin.AnswerStream(r.Context(), req.Question, req.TopK)
	if err != nil {
		h.logger.Error("chat stream failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frag := range sa.Fragments {
		switch frag.Kind {
		case llm.FragmentData:
			writeEvent(w, "message", map[string]string{"content": frag.Text})
		case llm.FragmentError:
			h.logger.Error("stream interrupted", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(frag.Err))
			writeEvent(w, "error", map[string]string{"error": frag.Err.Error()})
		case llm.FragmentEnd:
			writeEvent(w, "done", map[string]int{"sources": sa.SourceCount})
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, data any) {
	payload, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

type SearchResponse struct {
	Query   string        `json:"query"`
	Results []core.Source `json:"results"`
}

func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	topK := 0
	if raw := q.Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopK {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("top_k must be between 1 and %d", maxTopK))
			return
		}
		topK = n
	}

	results, err := h.twin.Search(r.Context(), query, q.Get("category"), topK)
	if err != nil {
		h.logger.Error("search failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
}

func (h *APIHandler) InfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := h.twin.Info(r.Context())
	if err != nil {
		h.logger.Error("info failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
