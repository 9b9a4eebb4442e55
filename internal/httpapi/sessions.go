package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/narrador/internal/game"
	"github.com/ent0n29/narrador/internal/session"
)

type createSessionRequest struct {
	Context string `json:"context"`
}

type turnRequest struct {
	Text string `json:"text"`
}

type rollRequest struct {
	Result *int `json:"result"`
}

type sessionResponse struct {
	*session.Session
	InactivityTTLMS int64      `json:"inactivity_ttl_ms"`
	Game            game.State `json:"game"`
}

type rollResponse struct {
	game.Outcome
	Roll int `json:"roll"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	g := s.newGame()
	if err := g.Start(req.Context); err != nil {
		respondError(w, http.StatusInternalServerError, "start_failed", err.Error())
		return
	}
	sess := s.sessions.Create(g)
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.SessionEvent("created")

	respondJSON(w, http.StatusCreated, s.describe(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.describe(sess))
}

func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	out, err := sess.Game.SubmitPlayerText(r.Context(), req.Text)
	if err != nil {
		respondGameError(w, err)
		return
	}
	_ = s.sessions.Touch(sess.ID)
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	var req rollRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	roll := game.RollD20()
	if req.Result != nil {
		roll = *req.Result
	}

	out, err := sess.Game.ResolveDirective(r.Context(), roll)
	if err != nil {
		respondGameError(w, err)
		return
	}
	_ = s.sessions.Touch(sess.ID)
	respondJSON(w, http.StatusOK, rollResponse{Outcome: out, Roll: roll})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	filename := fmt.Sprintf("narrativa-%s.txt", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sess.Game.ExportTranscript()))
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	if err := sess.Game.Discard(); err != nil {
		respondGameError(w, err)
		return
	}
	s.metrics.SessionEvent("discarded")
	respondJSON(w, http.StatusOK, s.describe(sess))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.SessionEvent("ended")
	respondJSON(w, http.StatusOK, s.describe(sess))
}

func (s *Server) activeSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Active(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) describe(sess *session.Session) sessionResponse {
	return sessionResponse{
		Session:         sess,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
		Game:            sess.Game.State(),
	}
}

func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, session.ErrEnded):
		respondError(w, http.StatusGone, "session_ended", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func respondGameError(w http.ResponseWriter, err error) {
	status, code := gameErrorStatus(err)
	respondError(w, status, code, err.Error())
}

func gameErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrRequestPending):
		return http.StatusConflict, "request_pending"
	case errors.Is(err, game.ErrDirectivePending):
		return http.StatusConflict, "roll_pending"
	case errors.Is(err, game.ErrNoDirective):
		return http.StatusConflict, "no_roll_pending"
	case errors.Is(err, game.ErrNotStarted):
		return http.StatusConflict, "not_started"
	case errors.Is(err, game.ErrInvalidRoll):
		return http.StatusBadRequest, "invalid_roll"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
