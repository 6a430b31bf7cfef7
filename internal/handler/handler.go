// Package handler exposes the assessment over a JSON HTTP API.
package handler

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Xsert/french-fluency-forge-sub001/internal/i18n"
	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
	"github.com/Xsert/french-fluency-forge-sub001/internal/orchestrator"
	"github.com/Xsert/french-fluency-forge-sub001/internal/session"
	"github.com/Xsert/french-fluency-forge-sub001/internal/speech"
	"github.com/Xsert/french-fluency-forge-sub001/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	manager *session.Manager
	orch    *orchestrator.Orchestrator
	retry   *session.RetryPolicy
	synth   speech.Synthesizer
	config  model.AssessmentConfig
}

// New creates a new Handler. synth may be nil when no TTS backend is
// configured; the synthesize route then reports unavailable.
func New(mgr *session.Manager, orch *orchestrator.Orchestrator, retry *session.RetryPolicy, synth speech.Synthesizer, cfg model.AssessmentConfig) *Handler {
	return &Handler{manager: mgr, orch: orch, retry: retry, synth: synth, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/sessions", h.handleCreateSession)
	r.Get("/api/sessions/unfinished", h.handleUnfinished)
	r.Get("/api/sessions/{sessionID}", h.handleGetSession)
	r.Post("/api/sessions/{sessionID}/resume", h.handleResume)
	r.Post("/api/sessions/{sessionID}/next", h.handleNextItem)
	r.Post("/api/sessions/{sessionID}/restart", h.handleRestartSession)
	r.Post("/api/sessions/{sessionID}/abandon", h.handleAbandon)
	r.Post("/api/sessions/{sessionID}/modules/{module}/restart", h.handleRestartModule)
	r.Post("/api/sessions/{sessionID}/modules/{module}/lock", h.handleLockModule)
	r.Post("/api/items/{itemID}/begin", h.handleBeginRecording)
	r.Post("/api/items/{itemID}/submit", h.handleSubmit)
	r.Post("/api/items/{itemID}/redo", h.handleRedoItem)
	r.Get("/api/users/{userID}/phonemes", h.handlePhonemeInsights)
	r.Get("/api/users/{userID}/official/eligibility", h.handleOfficialEligibility)
	r.Post("/api/users/{userID}/official", h.handleStartOfficial)
	r.Post("/api/official/{examID}/complete", h.handleCompleteOfficial)
	r.Get("/api/speech", h.handleSynthesize)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain sentinels onto HTTP statuses. Conflicts (busy
// items, locked modules, finished sessions) are 409s the client can react
// to, missing inputs are 400s, unknown rows are 404s. Failures of the
// speech backends are 502s so the client knows a retry may succeed.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var transcribeErr *speech.TranscriptionError
	var assessErr *speech.AssessmentError
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, store.ErrActiveSessionExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, session.ErrModuleLocked):
		writeJSON(w, http.StatusConflict, errorResponse{Error: i18n.T(r.Context(), "ModuleLocked")})
	case errors.Is(err, session.ErrSessionFinished):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, session.ErrCooldownActive),
		errors.Is(err, store.ErrExamImmutable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, orchestrator.ErrItemBusy):
		writeJSON(w, http.StatusConflict, errorResponse{Error: i18n.T(r.Context(), "ItemBusy")})
	case errors.Is(err, orchestrator.ErrMissingAudio),
		errors.Is(err, orchestrator.ErrMissingMetrics):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &transcribeErr), errors.As(err, &assessErr):
		slog.Warn("speech backend failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: i18n.T(r.Context(), "SpeechServiceRetry")})
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

type createSessionRequest struct {
	UserID int64             `json:"user_id"`
	Mode   model.SessionMode `json:"mode"`
	Module model.ModuleType  `json:"module,omitempty"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		req.Mode = model.ModeFull
	}

	view, err := h.manager.Create(req.UserID, req.Mode, req.Module)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleUnfinished(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	view, err := h.manager.Unfinished(userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if view == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no unfinished session"})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*session.View
		Message string `json:"message"`
	}{view, i18n.T(r.Context(), "SessionResumed")})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.Resume(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleNextItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.NextItem(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := struct {
		*session.View
		Message string `json:"message,omitempty"`
	}{View: view}
	if view.Session.Status == model.SessionCompleted {
		resp.Message = i18n.T(r.Context(), "SessionCompleted")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode   model.SessionMode `json:"mode"`
		Module model.ModuleType  `json:"module"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	view, err := h.manager.RestartSession(chi.URLParam(r, "sessionID"), req.Mode, req.Module)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Abandon(chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRestartModule(w http.ResponseWriter, r *http.Request) {
	module := model.ModuleType(chi.URLParam(r, "module"))
	if !model.IsValidModule(module) {
		http.Error(w, "unknown module", http.StatusBadRequest)
		return
	}
	view, err := h.manager.RestartModule(chi.URLParam(r, "sessionID"), module)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleLockModule(w http.ResponseWriter, r *http.Request) {
	module := model.ModuleType(chi.URLParam(r, "module"))
	if !model.IsValidModule(module) {
		http.Error(w, "unknown module", http.StatusBadRequest)
		return
	}
	if err := h.orch.LockModule(chi.URLParam(r, "sessionID"), module); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBeginRecording(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid item ID", http.StatusBadRequest)
		return
	}
	item, err := h.orch.BeginRecording(itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type submitRequest struct {
	AudioBase64 string               `json:"audio_base64,omitempty"`
	Metrics     *model.SpeechMetrics `json:"metrics,omitempty"`
	Text        string               `json:"text,omitempty"`
}

type submitResponse struct {
	*orchestrator.Outcome
	Feedback string `json:"feedback,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid item ID", http.StatusBadRequest)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	var audio []byte
	if req.AudioBase64 != "" {
		audio, err = base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil {
			http.Error(w, "invalid audio encoding", http.StatusBadRequest)
			return
		}
	}

	outcome, err := h.orch.Submit(r.Context(), itemID, orchestrator.Submission{
		Audio:   audio,
		Metrics: req.Metrics,
		Text:    req.Text,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := submitResponse{Outcome: outcome}
	if outcome.Result.Kind == model.ResultFluency {
		resp.Feedback = i18n.T(r.Context(), fluencyFeedbackID(outcome.Result.Fluency.Total))
	}
	if outcome.Result.Rubric != nil && outcome.Result.Rubric.Unstable {
		resp.Warning = i18n.T(r.Context(), "ScoringUnstable")
	}
	writeJSON(w, http.StatusOK, resp)
}

func fluencyFeedbackID(total int) string {
	switch {
	case total >= 80:
		return "FluencyExcellent"
	case total >= 60:
		return "FluencyGood"
	case total >= 40:
		return "FluencyFair"
	default:
		return "FluencyNeedsWork"
	}
}

func (h *Handler) handleRedoItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid item ID", http.StatusBadRequest)
		return
	}
	item, err := h.orch.RedoItem(itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handlePhonemeInsights(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	insight, err := h.orch.PhonemeInsights(userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

type eligibilityResponse struct {
	Eligible      bool   `json:"eligible"`
	DaysRemaining int    `json:"days_remaining"`
	NextAvailable string `json:"next_available,omitempty"`
	Message       string `json:"message"`
}

func (h *Handler) handleOfficialEligibility(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	eligible, err := h.retry.CanTakeOfficial(userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := eligibilityResponse{Eligible: eligible}
	if eligible {
		resp.Message = i18n.T(r.Context(), "OfficialEligible")
	} else {
		days, err := h.retry.DaysUntilNext(userID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next, err := h.retry.NextAvailable(userID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.DaysRemaining = days
		if next != nil {
			resp.NextAvailable = next.UTC().Format("2006-01-02T15:04:05Z")
		}
		resp.Message = i18n.Tp(r.Context(), "OfficialCooldown", days)
	}
	writeJSON(w, http.StatusOK, resp)
}

type startOfficialRequest struct {
	Scenario string `json:"scenario"`
	Persona  string `json:"persona"`
	Tier     string `json:"tier"`
}

func (h *Handler) handleStartOfficial(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	var req startOfficialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	exam, err := h.retry.StartOfficial(userID, req.Scenario, req.Persona, req.Tier)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

type completeOfficialRequest struct {
	Transcript string                `json:"transcript"`
	Scores     model.ComponentScores `json:"scores"`
}

func (h *Handler) handleCompleteOfficial(w http.ResponseWriter, r *http.Request) {
	var req completeOfficialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	exam, err := h.retry.CompleteOfficial(chi.URLParam(r, "examID"), req.Transcript, req.Scores)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if h.synth == nil {
		http.Error(w, "speech synthesis not configured", http.StatusServiceUnavailable)
		return
	}
	text := r.URL.Query().Get("text")
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	audio, err := h.synth.Synthesize(r.Context(), text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	if _, err := w.Write(audio); err != nil {
		slog.Error("write audio response", "error", err)
	}
}
