package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/zuliantoe/TTSLiveChatRelay/internal/platform/timeouts"
	"github.com/zuliantoe/TTSLiveChatRelay/internal/services/relay/upstream"
)

// Config defines the inputs for the relay transport boundary.
type Config struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the relay HTTP process: the control surface plus the
// WebSocket and SSE subscription transports.
//
// It delegates the broadcast-source protocol to the upstream connector so
// the relay remains transport-only.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	registry        *roomRegistry
	registryStop    context.CancelFunc
}

// NewHandler creates relay routes around the given upstream connector,
// for tests and embedding.
func NewHandler(connector upstream.Connector) http.Handler {
	handler, _ := newHandler(context.Background(), connector)
	return handler
}

func newHandler(ctx context.Context, connector upstream.Connector) (http.Handler, *roomRegistry) {
	h := newHub()
	registry := newRoomRegistry(ctx, connector, h)

	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc(http.MethodPost+" /connect/{room}", func(w http.ResponseWriter, r *http.Request) {
		handleConnect(w, r, registry)
	})
	mux.HandleFunc(http.MethodPost+" /disconnect/{room}", func(w http.ResponseWriter, r *http.Request) {
		handleDisconnect(w, r, registry)
	})
	mux.HandleFunc(http.MethodGet+" /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"rooms": registry.Status()})
	})
	mux.HandleFunc(http.MethodGet+" /ws/{room}", newWSSubscribeHandler(registry, h))
	mux.HandleFunc(http.MethodGet+" /sse/{room}", func(w http.ResponseWriter, r *http.Request) {
		handleSSESubscribe(w, r, registry, h)
	})
	return mux, registry
}

func handleConnect(w http.ResponseWriter, r *http.Request, registry *roomRegistry) {
	room, ok := roomFromRequest(w, r)
	if !ok {
		return
	}
	if err := registry.Connect(room); err != nil {
		log.Printf("relay: connect room %q: %v", room, err)
		writeJSON(w, http.StatusBadGateway, errorPayload(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true, "uniqueId": room})
}

func handleDisconnect(w http.ResponseWriter, r *http.Request, registry *roomRegistry) {
	room, ok := roomFromRequest(w, r)
	if !ok {
		return
	}
	if err := registry.Disconnect(room); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorPayload(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disconnected": true, "uniqueId": room})
}

// roomFromRequest validates the room path segment before any registry
// mutation. A blank room is rejected with a 400.
func roomFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	room := strings.TrimSpace(r.PathValue("room"))
	if room == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": errRoomRequired.Error()})
		return "", false
	}
	return room, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("relay: write response: %v", err)
	}
}

// NewServer builds a configured relay server around the upstream connector.
func NewServer(config Config, connector upstream.Connector) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if connector == nil {
		return nil, errors.New("upstream connector is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	registryCtx, registryStop := context.WithCancel(context.Background())
	handler, registry := newHandler(registryCtx, connector)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		registry:        registry,
		registryStop:    registryStop,
	}, nil
}

// Run creates and serves a relay server until the context ends.
func Run(ctx context.Context, config Config, connector upstream.Connector) error {
	server, err := NewServer(config, connector)
	if err != nil {
		return fmt.Errorf("init relay server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve relay: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("relay server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("relay server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources and disconnects any remaining rooms.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.registry != nil {
		s.registry.Close()
	}
	if s.registryStop != nil {
		s.registryStop()
	}
}
