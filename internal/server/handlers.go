package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/danshapiro/finsight/internal/agent"
	"github.com/danshapiro/finsight/internal/session"
)

// ChatRequest is the payload for POST /api/agent/chat.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

func extractBearerToken(header string) string {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

// handleChat runs one agent turn and streams its events. The turn executes
// in a goroutine feeding a per-request broadcaster; the response handler
// drains it as SSE frames.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message must not be empty"})
		return
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	bearer := extractBearerToken(r.Header.Get("Authorization"))

	b := NewBroadcaster()
	go s.runTurn(r, b, threadID, req.Message, bearer)
	WriteSSE(w, r, b)
}

func (s *Server) runTurn(r *http.Request, b *Broadcaster, threadID, message, bearer string) {
	defer b.Close()

	b.Send(Event{Type: "thinking", Payload: map[string]any{"message": "Analyzing your request..."}})

	if bearer == "" {
		s.logger.Info().Msg("chat: no bearer token provided")
		b.Send(errorEvent("AUTH_REQUIRED"))
		return
	}
	client, err := s.clientFactory(bearer)
	if err != nil {
		s.logger.Warn().Err(err).Msg("chat: client construction failed")
		b.Send(errorEvent("API_ERROR"))
		return
	}

	prior, _ := s.sessions.Get(threadID)
	historyOffset := len(prior.CallHistory)
	messages := append(append([]agent.Message(nil), prior.Messages...), agent.Message{Role: "user", Text: message})

	pipeline, err := agent.NewPipeline(agent.Dependencies{
		Client:     client,
		Registry:   s.registry,
		Classifier: s.classifier,
		Narrator:   s.narrator,
		Logger:     s.logger,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("chat: pipeline construction failed")
		b.Send(errorEvent("API_ERROR"))
		return
	}

	st := pipeline.RunTurn(r.Context(), agent.TurnInput{
		Messages:    messages,
		CallHistory: prior.CallHistory,
	})

	if err := s.sessions.Put(threadID, session.Record{
		Messages:    st.Messages,
		CallHistory: st.CallHistory,
	}); err != nil {
		s.logger.Warn().Err(err).Str("thread_id", threadID).Msg("chat: session snapshot failed")
	}

	for _, ev := range ProjectEvents(st, threadID, historyOffset, s.chunkSize) {
		b.Send(ev)
	}
}

func errorEvent(code string) Event {
	return Event{
		Type:    "error",
		Payload: map[string]any{"code": code, "message": agent.SafeErrorMessage(code)},
	}
}
