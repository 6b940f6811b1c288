// Package server exposes the operational HTTP surface: health, a bus peek
// endpoint, and manual enrichment triggering.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/config"
	"github.com/sells-group/lead-enrichment/internal/model"
)

// Peeker reads pending bus messages without consuming them.
type Peeker interface {
	Peek(ctx context.Context, limit int) ([][]byte, error)
}

// EventPublisher publishes an event envelope to its subject.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Server is the HTTP utility surface. It never participates in message
// processing; enqueue requests go through the bus like any other event.
type Server struct {
	httpServer *http.Server
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, peeker Peeker, publisher EventPublisher) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", handleHealth)
	r.Get("/api/bus/messages", handlePeek(peeker))
	r.Post("/api/enrich", handleEnrich(publisher))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	zap.L().Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePeek returns up to 20 pending messages from the stream without
// consuming them. Bodies that parse as JSON are inlined; anything else is
// returned as a string.
func handlePeek(peeker Peeker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if peeker == nil {
			writeError(w, http.StatusServiceUnavailable, "bus not connected")
			return
		}

		raw, err := peeker.Peek(r.Context(), 20)
		if err != nil {
			zap.L().Error("bus peek failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "peek failed")
			return
		}

		messages := make([]any, 0, len(raw))
		for _, body := range raw {
			var parsed map[string]any
			if err := json.Unmarshal(body, &parsed); err == nil {
				messages = append(messages, parsed)
			} else {
				messages = append(messages, string(body))
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":    len(messages),
			"messages": messages,
		})
	}
}

type enrichRequest struct {
	EventType     string         `json:"eventType"`
	CorrelationID string         `json:"correlationId"`
	Data          map[string]any `json:"data"`
}

// handleEnrich publishes a synthetic enrichment request onto the bus and
// returns 202. The listener picks it up like any external event.
func handleEnrich(publisher EventPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if publisher == nil {
			writeError(w, http.StatusServiceUnavailable, "bus not connected")
			return
		}

		var req enrichRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.EventType == "" {
			req.EventType = string(model.EventLeadCreated)
		}
		eventType, ok := model.ParseEventType(req.EventType)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown eventType")
			return
		}
		if _, err := model.LeadFromEvent(req.Data); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		evt := model.IncomingEvent{
			EventID:        uuid.NewString(),
			EventType:      string(eventType),
			EventVersion:   model.EventVersion,
			EventTimestamp: time.Now().UTC(),
			SourceSystem:   "api",
			CorrelationID:  req.CorrelationID,
			Data:           req.Data,
		}
		body, err := json.Marshal(evt)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "marshal event")
			return
		}

		if err := publisher.Publish(r.Context(), string(eventType), body); err != nil {
			zap.L().Error("enrich publish failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "publish failed")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"eventId": evt.EventID})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
