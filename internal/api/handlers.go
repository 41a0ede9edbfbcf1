package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgnsrekt/ttsclient/internal/queue"
	"github.com/dgnsrekt/ttsclient/internal/synth"
	"github.com/dgnsrekt/ttsclient/internal/tts"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// SpeakRequest represents the request body for /v1/speak.
type SpeakRequest struct {
	Text   string `json:"text"`
	Gender string `json:"gender,omitempty"`
}

// SpeakResponse represents the response body for /v1/speak.
type SpeakResponse struct {
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// VoiceRequest represents the request body for /v1/voice.
type VoiceRequest struct {
	Language string `json:"language"`
}

// VoiceResponse reports the active voice.
type VoiceResponse struct {
	LanguageCode string `json:"language_code"`
	VoiceName    string `json:"voice_name"`
	SSMLGender   string `json:"ssml_gender"`
}

// StatusResponse represents the response body for /v1/status.
type StatusResponse struct {
	Pending  int  `json:"pending"`
	InFlight bool `json:"in_flight"`
	VoiceResponse
}

// ClearResponse represents the response body for DELETE /v1/queue.
type ClearResponse struct {
	Dropped int `json:"dropped"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse represents the response body for /v1/healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func voiceResponse(v tts.VoiceSettings) VoiceResponse {
	return VoiceResponse{
		LanguageCode: v.LanguageCode,
		VoiceName:    v.VoiceName,
		SSMLGender:   v.SSMLGender,
	}
}

// handleHealthz handles GET /v1/healthz requests.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleStatus handles GET /v1/status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Pending:       s.speaker.Pending(),
		InFlight:      s.speaker.InFlight(),
		VoiceResponse: voiceResponse(s.speaker.Voice()),
	})
}

// handleSpeak handles POST /v1/speak requests. Empty text is accepted and
// replaced by the placeholder.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req SpeakRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.logger.Warn("failed to decode speak request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(req.Text) > s.cfg.Behavior.MaxTextLength {
		s.logger.Warn("text exceeds max length", "length", len(req.Text), "max", s.cfg.Behavior.MaxTextLength)
		writeError(w, http.StatusBadRequest, "text exceeds maximum length")
		return
	}

	if req.Gender != "" && !tts.ValidGender(req.Gender) {
		writeError(w, http.StatusBadRequest, "gender must be one of: MALE, FEMALE, NEUTRAL")
		return
	}

	queued, err := s.speaker.Enqueue(req.Text, req.Gender, nil)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "queue is full")
		case errors.Is(err, queue.ErrQueueClosed):
			writeError(w, http.StatusServiceUnavailable, "shutting down")
		default:
			s.logger.Error("failed to enqueue request", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to enqueue request")
		}
		return
	}

	s.logger.Info("speak request enqueued",
		"request_id", queued.ID,
		"text_length", len(queued.Text),
		"gender", req.Gender,
	)

	writeJSON(w, http.StatusAccepted, SpeakResponse{
		RequestID: queued.ID,
		Message:   "request enqueued",
	})
}

// handleVoice handles PUT /v1/voice requests.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req VoiceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.speaker.SetLanguage(req.Language); err != nil {
		if errors.Is(err, synth.ErrUnknownLanguage) {
			writeError(w, http.StatusBadRequest, "unknown language, use 0/en or 1/de")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to set language")
		return
	}

	writeJSON(w, http.StatusOK, voiceResponse(s.speaker.Voice()))
}

// handleClear handles DELETE /v1/queue requests.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	dropped := s.speaker.Clear()
	s.logger.Info("queue cleared via API", "dropped", dropped)
	writeJSON(w, http.StatusOK, ClearResponse{Dropped: dropped})
}
