// ABOUTME: chi router exposing the swarm daemon's minimal external surface: health, agent listing, history, and the WS hub.
// ABOUTME: Gives the out-of-scope chat-channel frontends a runnable core to sit behind.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/draphael89/swarmd/internal/eventbus"
	"github.com/draphael89/swarmd/internal/session"
	"github.com/draphael89/swarmd/internal/swarm"
	"go.uber.org/zap"
)

// Server is the daemon's minimal HTTP surface: liveness, agent snapshot,
// per-agent history, and a WebSocket upgrade onto the event bus.
type Server struct {
	manager *swarm.Manager
	bus     *eventbus.Bus
	router  chi.Router
}

// NewServer builds the router. manager supplies listAgents/history reads;
// bus is the same bus manager publishes to, used for the /ws upgrade.
func NewServer(manager *swarm.Manager, bus *eventbus.Bus) *Server {
	s := &Server{manager: manager, bus: bus}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/agents", s.handleListAgents)
	r.Get("/agents/{agentID}/history", s.handleAgentHistory)
	r.Get("/ws", s.handleWS)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.ListAgents())
}

func (s *Server) handleAgentHistory(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	entries := s.manager.ConversationHistoryFor(agentID)
	payload := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		raw, err := session.MarshalConversationEntry(e)
		if err != nil {
			logger.Warn("marshal history entry failed", zap.String("agent_id", agentID), zap.Error(err))
			continue
		}
		payload = append(payload, raw)
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleWS upgrades to the event bus hub, replaying the current agent
// snapshot before streaming live events — the hydrate-then-replay pattern
// new subscribers use in place of a history log.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	replay := func() []eventbus.Event {
		return []eventbus.Event{{
			Topic:   eventbus.TopicAgentsSnapshot,
			Payload: s.manager.ListAgents(),
		}}
	}
	eventbus.ServeWS(s.bus, replay, w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("encode response failed", zap.Error(err))
	}
}
