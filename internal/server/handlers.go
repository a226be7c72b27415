package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/audit"
	"github.com/docsentry/docsentry/internal/cache"
	"github.com/docsentry/docsentry/internal/logger"
	"github.com/docsentry/docsentry/internal/pipeline"
	"github.com/docsentry/docsentry/internal/redact"
	"github.com/docsentry/docsentry/internal/websocket"
)

// redactRequest is the payload for POST /v1/redact: caller-supplied text
// and the entity spans an external detector already found in it.
type redactRequest struct {
	Text          string       `json:"text"`
	Entities      []entitySpan `json:"entities"`
	ExcludedKinds []string     `json:"excluded_kinds"`
}

type entitySpan struct {
	Kind  string `json:"kind"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
}

type redactResponse struct {
	RequestID     string           `json:"request_id"`
	RedactedText  string           `json:"redacted_text"`
	LinesRedacted int              `json:"lines_redacted"`
	SpansApplied  int              `json:"spans_applied"`
	Redactions    []redact.Finding `json:"redactions"`
}

type documentResponse struct {
	RequestID string `json:"request_id"`
	*pipeline.Result
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// handleRedact redacts caller-supplied text against caller-supplied spans.
// If the request names its own excluded kinds they replace the configured
// list for this call only.
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	var req redactRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodySize))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	spans := make([]redact.Span, 0, len(req.Entities))
	for _, e := range req.Entities {
		spans = append(spans, redact.Span{Kind: e.Kind, Begin: e.Begin, End: e.End})
	}

	if s.config.Redaction.OffsetUnit == "bytes" {
		converted, err := redact.SpansFromByteOffsets(req.Text, spans)
		if err != nil {
			s.writeRedactError(w, log, err)
			return
		}
		spans = converted
	}

	engine := s.engine
	if req.ExcludedKinds != nil {
		override, err := redact.New(redact.Config{
			ExcludedKinds: req.ExcludedKinds,
			OverlapPolicy: string(s.engine.Policy()),
		}, log.Logger)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to apply exclusion list", "")
			return
		}
		engine = override
	}

	start := time.Now()
	result, err := engine.Redact(req.Text, spans)
	if err != nil {
		s.writeRedactError(w, log, err)
		return
	}
	redactMS := float64(time.Since(start).Nanoseconds()) / 1e6

	hash := cache.HashDocument([]byte(req.Text))
	s.recordAudit(r, &audit.Event{
		DocumentHash:  hash,
		Source:        "api",
		LinesRedacted: result.LinesRedacted,
		SpansApplied:  result.SpansApplied,
		SpansDropped:  len(spans) - result.SpansApplied,
		Kinds:         findingKinds(result.Findings),
		RedactMS:      redactMS,
	})

	s.broadcastRedaction(requestID, hash, "api", result.LinesRedacted, result.SpansApplied, result.Findings, false, redactMS)

	writeJSON(w, http.StatusOK, redactResponse{
		RequestID:     requestID,
		RedactedText:  result.Text,
		LinesRedacted: result.LinesRedacted,
		SpansApplied:  result.SpansApplied,
		Redactions:    result.Findings,
	})
}

// handleDocument runs the full pipeline over raw document bytes: extract
// text, detect entities, redact.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	document, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "document too large", "")
		return
	}
	if len(document) == 0 {
		writeError(w, http.StatusBadRequest, "empty document", "")
		return
	}

	start := time.Now()
	result, err := s.pipeline.ProcessDocument(r.Context(), document)
	if err != nil {
		if isRedactionError(err) {
			s.writeRedactError(w, log, err)
			return
		}
		log.Error("Document processing failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "document processing failed", "")
		return
	}

	processingMS := float64(time.Since(start).Nanoseconds()) / 1e6
	s.broadcastRedaction(requestID, result.DocumentHash, "document", result.LinesRedacted, result.SpansApplied, result.Findings, result.CacheHit, processingMS)

	writeJSON(w, http.StatusOK, documentResponse{
		RequestID: requestID,
		Result:    result,
	})
}

// writeRedactError maps engine errors to a fail-closed 422 response. The
// response says what class of failure happened, never echoes the text.
func (s *Server) writeRedactError(w http.ResponseWriter, log *logger.Logger, err error) {
	var code string
	switch {
	case errors.Is(err, redact.ErrInvalidSpan):
		code = "invalid_span"
	case errors.Is(err, redact.ErrOverlapConflict):
		code = "overlap_conflict"
	case errors.Is(err, redact.ErrEncodingBoundary):
		code = "encoding_boundary"
	default:
		log.Error("Redaction failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "redaction failed", "")
		return
	}

	log.Warn("Redaction rejected", zap.String("code", code), zap.Error(err))
	writeError(w, http.StatusUnprocessableEntity, err.Error(), code)
}

// isRedactionError reports whether err belongs to the redaction error
// taxonomy rather than an upstream service failure.
func isRedactionError(err error) bool {
	return errors.Is(err, redact.ErrInvalidSpan) ||
		errors.Is(err, redact.ErrOverlapConflict) ||
		errors.Is(err, redact.ErrEncodingBoundary)
}

// recordAudit writes an audit row for a direct API redaction. Failures are
// logged, not fatal.
func (s *Server) recordAudit(r *http.Request, event *audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Insert(r.Context(), event); err != nil {
		s.logger.Warn("Failed to record audit event", zap.Error(err))
	}
}

// broadcastRedaction publishes a redaction summary to dashboard clients.
// Counts and kinds only; the text never reaches the hub.
func (s *Server) broadcastRedaction(requestID, hash, source string, lines, spansApplied int, findings []redact.Finding, cacheHit bool, processingMS float64) {
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRedaction,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.RedactionEvent{
			RequestID:     requestID,
			DocumentHash:  hash,
			Source:        source,
			LinesRedacted: lines,
			SpansApplied:  spansApplied,
			Findings:      findings,
			CacheHit:      cacheHit,
			ProcessingMS:  processingMS,
		},
	})
}

// findingKinds flattens findings into the audit kinds column.
func findingKinds(findings []redact.Finding) string {
	kinds := make([]string, 0, len(findings))
	for _, f := range findings {
		kinds = append(kinds, f.Kind)
	}
	return audit.KindsList(kinds)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
