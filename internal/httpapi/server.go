// Package httpapi exposes the conversation controller to a presentation
// client over REST and a WebSocket event stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/capture"
	"github.com/lexiqai/voice-assistant/internal/conversation"
	"github.com/lexiqai/voice-assistant/internal/recorder"
	"github.com/lexiqai/voice-assistant/internal/transcript"
)

// Conversation is the controller surface the API drives
type Conversation interface {
	OnMicPressed(ctx context.Context) (bool, error)
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	SubmitClip(clip audio.Clip) error
	Status() conversation.Status
	ClearError()
	Messages() []transcript.Turn
	ToggleTranscript(id transcript.TurnID)
	SetFeedback(id transcript.TurnID, value transcript.Feedback)
	ExportTranscript() []byte
	Audio(ref audio.Ref) (audio.Clip, error)
	Reset() error
	Subscribe() (<-chan conversation.Event, func())
}

// Server routes API requests to a conversation
type Server struct {
	conv         Conversation
	remote       *capture.RemoteSource
	maxClipBytes int64
	logger       zerolog.Logger
}

// NewServer creates the API. remote is nil unless the client records audio.
func NewServer(conv Conversation, remote *capture.RemoteSource, maxClipBytes int64, logger zerolog.Logger) *Server {
	return &Server{
		conv:         conv,
		remote:       remote,
		maxClipBytes: maxClipBytes,
		logger:       logger.With().Str("component", "httpapi").Logger(),
	}
}

// Register mounts the API routes on mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/mic", s.handleMic)
	mux.HandleFunc("POST /api/recording/start", s.handleStart)
	mux.HandleFunc("POST /api/recording/stop", s.handleStop)
	mux.HandleFunc("POST /api/recording/chunk", s.handleChunk)
	mux.HandleFunc("POST /api/clips", s.handleClip)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("DELETE /api/error", s.handleClearError)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("POST /api/messages/{id}/transcript", s.handleToggleTranscript)
	mux.HandleFunc("PUT /api/messages/{id}/feedback", s.handleFeedback)
	mux.HandleFunc("GET /api/audio/{ref}", s.handleAudio)
	mux.HandleFunc("GET /api/transcript.csv", s.handleExport)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/events", s.handleEvents)
}

func (s *Server) handleMic(w http.ResponseWriter, r *http.Request) {
	if _, err := s.conv.OnMicPressed(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.conv.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.StartRecording(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.conv.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.StopRecording(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.conv.Status())
}

// handleChunk appends client-recorded audio to the in-progress recording
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if s.remote == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "Client-side recording is not enabled."})
		return
	}
	if ct := mediaType(r.Header.Get("Content-Type")); strings.HasPrefix(ct, "audio/") {
		s.remote.SetMIMEType(ct)
	}
	if _, err := io.Copy(s.remote, s.limit(w, r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClip accepts a whole recording, either as the raw body or as a
// multipart "file" field
func (s *Server) handleClip(w http.ResponseWriter, r *http.Request) {
	clip, err := s.readClip(w, r)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, err)
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
		return
	}
	if err := s.conv.SubmitClip(clip); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.conv.Status())
}

func (s *Server) readClip(w http.ResponseWriter, r *http.Request) (audio.Clip, error) {
	body := s.limit(w, r)
	ct := mediaType(r.Header.Get("Content-Type"))

	if ct == "multipart/form-data" {
		r.Body = body
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return audio.Clip{}, fmt.Errorf("invalid multipart body: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return audio.Clip{}, fmt.Errorf("missing file field: %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return audio.Clip{}, err
		}
		mimeType := mediaType(header.Header.Get("Content-Type"))
		if !strings.HasPrefix(mimeType, "audio/") {
			mimeType = audio.MIMETypeWebM
		}
		return audio.Clip{Data: data, MIMEType: mimeType}, nil
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return audio.Clip{}, err
	}
	if !strings.HasPrefix(ct, "audio/") {
		ct = audio.MIMETypeWebM
	}
	return audio.Clip{Data: data, MIMEType: ct}, nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.conv.Status())
}

func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	s.conv.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.conv.Messages())
}

func (s *Server) handleToggleTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := s.turnID(w, r)
	if !ok {
		return
	}
	s.conv.ToggleTranscript(id)
	w.WriteHeader(http.StatusNoContent)
}

type feedbackRequest struct {
	Feedback transcript.Feedback `json:"feedback"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := s.turnID(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Feedback.Valid() {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: `feedback must be "none", "up" or "down"`})
		return
	}
	s.conv.SetFeedback(id, req.Feedback)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	clip, err := s.conv.Audio(audio.Ref(r.PathValue("ref")))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "Audio is no longer available."})
		return
	}
	w.Header().Set("Content-Type", clip.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(clip.Len()))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(clip.Data)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", transcript.CSVContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": transcript.CSVFileName}))
	_, _ = w.Write(s.conv.ExportTranscript())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.Reset(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) turnID(w http.ResponseWriter, r *http.Request) (transcript.TurnID, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid message id"})
		return 0, false
	}
	return transcript.TurnID(id), true
}

func (s *Server) limit(w http.ResponseWriter, r *http.Request) io.ReadCloser {
	if s.maxClipBytes <= 0 {
		return r.Body
	}
	return http.MaxBytesReader(w, r.Body, s.maxClipBytes)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps controller errors to HTTP statuses. Recording and
// pipeline errors carry the notice the controller recorded for them.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := failureBody(err, "internal", conversation.MessageGeneric)

	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		status = http.StatusForbidden
		body = failureBody(err, "permission_denied", capture.Denied.Message())
	case errors.Is(err, recorder.ErrBlocked):
		status = http.StatusServiceUnavailable
		body = failureBody(err, "recording_start", conversation.MessageStartFailed)
	case errors.Is(err, recorder.ErrFinalizationFailed):
		status = http.StatusUnprocessableEntity
		body = failureBody(err, "recording_stop", conversation.MessageStopFailed)
	case errors.Is(err, capture.ErrNoSession):
		status = http.StatusConflict
		body = errorBody{Error: "not_recording", Message: "No recording is in progress."}
	case errors.Is(err, capture.ErrClipTooLarge), errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
		body = errorBody{Error: "too_large", Message: "Recording is too large."}
	case errors.Is(err, conversation.ErrQueueFull):
		status = http.StatusTooManyRequests
		body = errorBody{Error: "busy", Message: "Still working on earlier messages."}
	case errors.Is(err, conversation.ErrClosed):
		status = http.StatusServiceUnavailable
		body = errorBody{Error: "closed", Message: "The conversation has ended."}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		s.logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	s.writeJSON(w, status, body)
}

// failureBody uses the failure the controller recorded for err, falling
// back to kind and message when err carries none
func failureBody(err error, kind, message string) errorBody {
	var failure *conversation.Failure
	if errors.As(err, &failure) {
		return errorBody{Error: failure.Kind, Message: failure.Message}
	}
	return errorBody{Error: kind, Message: message}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}
