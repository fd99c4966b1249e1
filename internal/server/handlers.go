package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/wavebuddy/internal/dialogue"
	"github.com/ayusman/wavebuddy/internal/store"
)

// maxListLimit bounds ?limit= on /api/exchanges.
const maxListLimit = 500

type errorResponse struct {
	Error string `json:"error"`
}

type stateResponse struct {
	State        string `json:"state"`
	Busy         bool   `json:"busy"`
	Enabled      bool   `json:"enabled"`
	Running      bool   `json:"running"`
	Active       bool   `json:"active"`
	Listening    bool   `json:"listening"`
	Pages        int    `json:"pages"`
	LastError    string `json:"last_error,omitempty"`
	LastResponse string `json:"last_response,omitempty"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type askRequest struct {
	Text string `json:"text"`
}

type askResponse struct {
	Response string `json:"response"`
	Language string `json:"language,omitempty"`
	Spoken   bool   `json:"spoken"`
	Error    string `json:"error,omitempty"`
}

type exchangeResponse struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Gesture    string `json:"gesture,omitempty"`
	Prompt     string `json:"prompt"`
	Response   string `json:"response,omitempty"`
	Language   string `json:"language,omitempty"`
	Error      string `json:"error,omitempty"`
	Spoken     bool   `json:"spoken"`
	StartedAt  string `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
}

type listExchangesResponse struct {
	Exchanges []exchangeResponse `json:"exchanges"`
}

type statsResponse struct {
	Total     int            `json:"total"`
	Spoken    int            `json:"spoken"`
	Failed    int            `json:"failed"`
	BySource  map[string]int `json:"by_source"`
	ByGesture map[string]int `json:"by_gesture"`
}

func toExchangeResponse(e *store.Exchange) exchangeResponse {
	return exchangeResponse{
		ID:         e.ID,
		Source:     e.Source,
		Gesture:    e.Gesture,
		Prompt:     e.Prompt,
		Response:   e.Response,
		Language:   e.Language,
		Error:      e.Error,
		Spoken:     e.Spoken,
		StartedAt:  e.StartedAt.UTC().Format(time.RFC3339Nano),
		DurationMs: e.DurationMs,
	}
}

// writeJSON writes data as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) state() stateResponse {
	resp := stateResponse{
		State:     dialogue.Idle.String(),
		Listening: s.bridge.Listening(),
		Pages:     s.bridge.Clients(),
	}

	if c := s.config.Controller; c != nil {
		resp.State = c.State().String()
		resp.Busy = c.Busy()
		resp.Listening = c.Listening()
		resp.LastResponse = c.LastResponse()
	}

	if p := s.config.Pipeline; p != nil {
		resp.Enabled = p.IsEnabled()
		resp.Running = p.Running()
		resp.Active = p.Active()
		if err := p.LastError(); err != nil {
			resp.LastError = err.Error()
		}
	}
	return resp
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	s.config.Pipeline.SetEnabled(*req.Enabled)
	s.logger.Info("detection toggled", "enabled", *req.Enabled)
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	exchanges, err := s.config.Store.Exchanges().List(limit)
	if err != nil {
		s.logger.Error("list exchanges", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list exchanges")
		return
	}

	resp := listExchangesResponse{Exchanges: make([]exchangeResponse, 0, len(exchanges))}
	for _, e := range exchanges {
		resp.Exchanges = append(resp.Exchanges, toExchangeResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, err := s.config.Store.Exchanges().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "exchange not found")
		return
	}
	if err != nil {
		s.logger.Error("get exchange", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get exchange")
		return
	}
	writeJSON(w, http.StatusOK, toExchangeResponse(e))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.config.Store.Exchanges().Stats()
	if err != nil {
		s.logger.Error("exchange stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Total:     st.Total,
		Spoken:    st.Spoken,
		Failed:    st.Failed,
		BySource:  st.BySource,
		ByGesture: st.ByGesture,
	})
}

// handleAsk runs a typed prompt through the controller and waits for the
// reply to be spoken.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ex, err := s.config.Controller.Ask(r.Context(), dialogue.Utterance{
		Source: dialogue.SourceManual,
		Text:   req.Text,
	})
	switch {
	case errors.Is(err, dialogue.ErrBusy):
		writeError(w, http.StatusConflict, "an exchange is already in progress")
		return
	case errors.Is(err, dialogue.ErrEmptyUtterance):
		writeError(w, http.StatusBadRequest, "text is required")
		return
	case ex == nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil && ex.Response == "":
		// The responder failed; the page already shows the fallback.
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := askResponse{Response: ex.Response, Language: ex.Language, Spoken: ex.Spoken}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
