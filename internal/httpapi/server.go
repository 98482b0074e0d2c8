package httpapi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/apperrors"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/usecase"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
)

// Server serves the conversation roster over HTTP alongside health probes.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	service    *usecase.RosterService
	refresher  *usecase.Refresher
	logger     *zap.Logger
}

// ListResponse is the envelope for roster listings.
type ListResponse struct {
	Success bool                 `json:"success"`
	Data    []model.Conversation `json:"data"`
	Count   int                  `json:"count"`
}

// HealthResponse is the response structure for health check endpoints
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer creates the API server.
func NewServer(port string, service *usecase.RosterService, refresher *usecase.Refresher, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	server := &Server{
		httpServer: &http.Server{
			Addr:    ":" + port,
			Handler: mux,
		},
		mux:       mux,
		service:   service,
		refresher: refresher,
		logger:    logger,
	}

	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ready", server.handleReady)
	mux.HandleFunc("/v1/conversations", server.handleConversations)
	mux.HandleFunc("/v1/conversations/refresh", server.handleRefresh)
	mux.HandleFunc("/v1/conversations/read", server.handleMarkRead)

	return server
}

// RegisterMetricsHandler adds the /metrics endpoint handler.
// Should only be called if metrics are enabled.
func (s *Server) RegisterMetricsHandler(handler http.Handler) {
	s.logger.Info("Registering /metrics endpoint")
	s.mux.Handle("/metrics", handler)
}

// Start begins the HTTP server
func (s *Server) Start() {
	utils.SafeGo(func() {
		s.logger.Info("Starting API server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}, nil)
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.httpServer.Shutdown(ctx)
}

// handleConversations serves the current roster snapshot, optionally filtered
// by ?q=. The query also registers search activity with the refresher so
// background polls yield while the user types.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.WriteJSONResponse(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if s.refresher != nil {
		s.refresher.Search(query)
	}

	conversations := s.service.Snapshot(query)
	utils.WriteJSONResponse(w, http.StatusOK, ListResponse{
		Success: true,
		Data:    conversations,
		Count:   len(conversations),
	})
}

// handleRefresh schedules an immediate roster reload.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.WriteJSONResponse(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	s.refresher.TriggerRefresh()
	utils.WriteJSONResponse(w, http.StatusAccepted, map[string]bool{"success": true})
}

// handleMarkRead flags one conversation as read.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.WriteJSONResponse(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		utils.WriteJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "phone is required"})
		return
	}

	affected, err := s.service.MarkRead(r.Context(), phone)
	if err != nil {
		s.logger.Error("Failed to mark conversation read", zap.String("phone", phone), zap.Error(err))
		status := http.StatusInternalServerError
		if apperrors.IsBadRequestError(err) {
			status = http.StatusBadRequest
		}
		utils.WriteJSONResponse(w, status, errorResponse{Error: "failed to mark conversation read"})
		return
	}

	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"updated": affected,
	})
}

// handleHealth handles the /health endpoint for liveness probes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "UP",
		Version: "1.0.0",
	}

	utils.WriteJSONResponse(w, http.StatusOK, resp)
}

// handleReady handles the /ready endpoint for readiness probes. Ready means
// at least one roster load has completed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.service.LoadedAt().IsZero() {
		utils.WriteJSONResponse(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "STARTING",
		})
		return
	}

	resp := HealthResponse{
		Status: "READY",
		Details: map[string]string{
			"loaded_at": utils.FormatISO8601(s.service.LoadedAt()),
			"timestamp": utils.FormatISO8601(utils.Now()),
		},
	}

	utils.WriteJSONResponse(w, http.StatusOK, resp)
}
