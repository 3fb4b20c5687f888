package server

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"gws-pilot/internal/conversation"
	"gws-pilot/internal/session"
	"gws-pilot/internal/speech"
)

// maxAudioBytes matches the Whisper upload limit.
const maxAudioBytes = 25 << 20

type messageDTO struct {
	// Text is null for the pending placeholder.
	Text   *string `json:"text"`
	HTML   string  `json:"html,omitempty"`
	Sender string  `json:"sender"`
}

type snapshotDTO struct {
	SessionID  string       `json:"session_id"`
	Messages   []messageDTO `json:"messages"`
	Busy       bool         `json:"busy"`
	Transcript string       `json:"transcript,omitempty"`
}

type capabilitiesDTO struct {
	Speech     bool   `json:"speech"`
	RenderMode string `json:"render_mode"`
}

type postMessageRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) toDTO(id string, snap conversation.Snapshot) snapshotDTO {
	out := snapshotDTO{SessionID: id, Busy: snap.Busy, Messages: make([]messageDTO, 0, len(snap.Messages))}
	for _, m := range snap.Messages {
		dto := messageDTO{Sender: string(m.Sender)}
		if !m.Pending {
			text := m.Text
			dto.Text = &text
			dto.HTML = s.renderer.Render(text)
		}
		out.Messages = append(out.Messages, dto)
	}
	return out
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, capabilitiesDTO{Speech: s.opts.SpeechAvailable, RenderMode: s.opts.RenderMode})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeJSONError(w, http.StatusTooManyRequests, "too many new sessions, try again shortly")
		return
	}
	sess := s.sessions.Create()
	s.logger.Info().Str("session", sess.ID).Msg("session created")
	writeJSON(w, http.StatusCreated, s.toDTO(sess.ID, sess.Store.Snapshot()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.toDTO(sess.ID, sess.Store.Snapshot()))
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req postMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.submit(w, r, sess, req.Text, "")
}

// submit feeds text into the session's store and writes the resulting snapshot.
// The fetch outlives the request: a client going away does not cancel it.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, sess *session.Session, text, transcript string) {
	_, err := sess.Store.SubmitUserText(context.WithoutCancel(r.Context()), text)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, conversation.ErrBusy):
		writeJSONError(w, http.StatusConflict, "a reply is still pending")
		return
	case err != nil:
		s.logger.Error().Err(err).Str("session", sess.ID).Msg("submit failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	dto := s.toDTO(sess.ID, sess.Store.Snapshot())
	dto.Transcript = transcript
	writeJSON(w, http.StatusOK, dto)
}

// handleSpeech transcribes a complete audio clip and submits the transcript
// as if it had been typed.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !speech.Available(sess.Recognizer) {
		writeJSONError(w, http.StatusNotImplemented, "speech input is not available")
		return
	}
	if sess.Store.Busy() {
		writeJSONError(w, http.StatusConflict, "a reply is still pending")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	rec, err := sess.Recognizer.Start(ctx, audioFilename(r.Header.Get("Content-Type")))
	if errors.Is(err, speech.ErrSessionActive) {
		writeJSONError(w, http.StatusConflict, "speech recognition already in progress")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("session", sess.ID).Msg("speech start failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	_, copyErr := io.Copy(rec, http.MaxBytesReader(w, r.Body, maxAudioBytes))
	rec.Stop()
	transcript, err := rec.Await(ctx)
	if copyErr != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read audio")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "speech was not recognized")
		return
	}
	s.submit(w, r, sess, transcript, strings.TrimSpace(transcript))
}

func audioFilename(contentType string) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "speech.wav"
	case "audio/ogg":
		return "speech.ogg"
	case "audio/mpeg":
		return "speech.mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "speech.m4a"
	default:
		return "speech.webm"
	}
}
