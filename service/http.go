package service

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artfolio/reco/core"
)

// Server 把 Engine 暴露为 HTTP API。
//
// 路由：
//   - GET  /recommendations?user=ID&limit=N → 200 / 400 / 404 / 503
//   - POST /interactions                    → 202 / 400
type Server struct {
	engine *Engine
	logger zerolog.Logger
}

// NewServer 创建 HTTP 服务。
func NewServer(engine *Engine, logger zerolog.Logger) *Server {
	return &Server{
		engine: engine,
		logger: logger.With().Str("component", "service.http").Logger(),
	}
}

// Router 构建 chi 路由。
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/recommendations", s.handleRecommendations)
	r.Post("/interactions", s.handleInteractions)
	return r
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	resp, err := s.engine.GetForYou(r.Context(), userID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type interactionRequest struct {
	UserID          string  `json:"user_id"`
	ItemID          string  `json:"item_id"`
	DurationSeconds float64 `json:"duration_seconds"`
	Source          string  `json:"source"`
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	src, err := core.ParseSource(req.Source)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev := &core.InteractionEvent{
		UserID:          req.UserID,
		ItemID:          req.ItemID,
		DurationSeconds: req.DurationSeconds,
		Source:          src,
	}
	res, err := s.engine.Ingest(r.Context(), ev)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"event_id": res.Event.ID,
		"status":   "accepted",
	})
}

// writeDomainError 把领域错误映射为 HTTP 状态码。
// 降级（Degraded）不在此处出现：兜底成功的请求正常返回 200。
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case core.IsValidation(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case core.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err.Error())
	case core.IsUnavailable(err):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal error")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("write response failed")
	}
}
