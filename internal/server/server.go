package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/catalog"
	"ocrr/internal/config"
	"ocrr/internal/exporter"
	"ocrr/internal/pipeline"
)

// Server exposes bon processing and export over HTTP.
type Server struct {
	cfg       config.Config
	store     *catalog.Store
	processor *pipeline.ProcessingService
	exports   *pipeline.ExportService
	log       zerolog.Logger
}

func New(cfg config.Config, store *catalog.Store, processor *pipeline.ProcessingService, exports *pipeline.ExportService, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, store: store, processor: processor, exports: exports, log: log.With().Str("component", "http").Logger()}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.health)
	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/config", s.config)
		r.Post("/process", s.process)
		r.Post("/send-to-sheets", s.sendToSheets)
		r.Post("/discovery", s.discovery)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("requestId", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"catalogEntries": s.store.Index(r.Context()).Len(),
	})
}

func (s *Server) config(w http.ResponseWriter, r *http.Request) {
	var sheetID *string
	if s.cfg.GoogleSheetID != "" {
		sheetID = &s.cfg.GoogleSheetID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"googleSheetsEnabled":    s.exports.Enabled(),
		"googleSheetId":          sheetID,
		"validationAgentEnabled": s.cfg.EnableValidationAgent,
		"validationMaxAttempts":  config.ClampAttempts(s.cfg.ValidationMaxAttempts),
		"textDiscoveryEnabled":   s.cfg.EnableTextDiscovery,
		"referenceLengths":       s.cfg.ReferenceLengths,
		"autoExportOnProcess":    s.cfg.AutoExportOnProcess,
	})
}

type processResponse struct {
	BonID        int                            `json:"bonId"`
	TraceID      string                         `json:"traceId"`
	OCRText      *string                        `json:"ocrText"`
	Items        []internal.ResolvedItem        `json:"items"`
	RawResponse  string                         `json:"rawResponse"`
	SheetURL     *string                        `json:"sheetUrl"`
	SheetsResult *exporter.Submission           `json:"sheetsResult"`
	SheetsError  *string                        `json:"sheetsError"`
	History      []internal.AttemptHistoryEntry `json:"history,omitempty"`
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 12 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file received, send a bon as multipart field \"file\"", err)
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read the uploaded file", err)
		return
	}

	inputType, ok := uploadType(header.Filename, header.Header.Get("Content-Type"))
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type, expected json, xlsx, pdf, eml or txt", nil)
		return
	}
	bon, err := pipeline.ExtractBon(inputType, blob)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or unsupported bon file", err)
		return
	}

	res, err := s.processor.ProcessBon(r.Context(), bon, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("processing failed")
		writeError(w, http.StatusInternalServerError, "internal error while processing the document", err)
		return
	}

	out := processResponse{
		BonID:       res.BonID,
		TraceID:     res.TraceID,
		Items:       res.Items,
		RawResponse: res.RawResponse,
		SheetURL:    s.sheetURL(),
	}
	if res.OCRText != "" {
		out.OCRText = &res.OCRText
	}

	if s.cfg.AutoExportOnProcess && s.exports.Enabled() {
		sub, err := s.exports.SendBon(r.Context(), res.BonID)
		if err != nil {
			msg := err.Error()
			out.SheetsError = &msg
			if f, ok := exporter.AsFailure(err); ok {
				out.History = f.History
			}
		} else {
			out.SheetsResult = sub
			out.Items = sub.Items
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type sendRequest struct {
	BonID   *int                     `json:"bonId"`
	Items   []internal.ExtractedItem `json:"items"`
	OCRText string                   `json:"ocrText"`
}

func (s *Server) sendToSheets(w http.ResponseWriter, r *http.Request) {
	if !s.exports.Enabled() {
		writeError(w, http.StatusNotImplemented, "google sheets export is disabled", nil)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	var (
		sub *exporter.Submission
		err error
	)
	switch {
	case req.BonID != nil:
		sub, err = s.exports.SendBon(r.Context(), *req.BonID)
	case len(req.Items) == 0:
		writeError(w, http.StatusBadRequest, "items list is empty or missing", nil)
		return
	default:
		sub, err = s.exports.Send(r.Context(), req.Items, req.OCRText)
	}

	if err != nil {
		body := map[string]any{"error": err.Error(), "history": nil}
		if f, ok := exporter.AsFailure(err); ok {
			body["history"] = f.History
			body["items"] = f.Items
		}
		s.log.Warn().Err(err).Msg("send to sheets failed")
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"items":    sub.Items,
		"result":   sub.Result,
		"attempts": sub.Attempts,
		"history":  sub.History,
		"sheetUrl": s.sheetURL(),
	})
}

type discoveryRequest struct {
	Text string `json:"text"`
}

func (s *Server) discovery(w http.ResponseWriter, r *http.Request) {
	var req discoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	engine := pipeline.NewDiscoveryEngine(s.store.Index(r.Context()), pipeline.NewConfusableTable(), s.cfg, s.log)
	writeJSON(w, http.StatusOK, engine.Trace(req.Text))
}

func (s *Server) sheetURL() *string {
	if !s.exports.Enabled() {
		return nil
	}
	if u := s.cfg.SheetURL(); u != "" {
		return &u
	}
	return nil
}

func uploadType(filename, contentType string) (string, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return string(internal.SourceJSON), true
	case ".xlsx", ".xlsm":
		return string(internal.SourceXLSX), true
	case ".pdf":
		return string(internal.SourcePDF), true
	case ".eml":
		return string(internal.SourceEmail), true
	case ".txt":
		return string(internal.SourceText), true
	}
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		return string(internal.SourceJSON), true
	case strings.HasPrefix(contentType, "application/pdf"):
		return string(internal.SourcePDF), true
	case strings.HasPrefix(contentType, "message/rfc822"):
		return string(internal.SourceEmail), true
	case strings.HasPrefix(contentType, "text/plain"):
		return string(internal.SourceText), true
	}
	return "", false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{"error": message}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
		body["error"] = "uploaded file is too large"
	}
	if err != nil {
		body["details"] = err.Error()
	}
	writeJSON(w, status, body)
}
