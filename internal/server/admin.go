package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/engine"
	"github.com/ternarybob/loom/internal/interfaces"
)

// Admin serves the read-only observation surface: /api/status with engine
// counters and /ws streaming engine events.
type Admin struct {
	dispatcher *engine.Dispatcher
	events     interfaces.EventService
	logger     arbor.ILogger

	upgrader websocket.Upgrader
	server   *http.Server
}

// NewAdmin builds the admin surface.
func NewAdmin(dispatcher *engine.Dispatcher, events interfaces.EventService, logger arbor.ILogger) *Admin {
	return &Admin{
		dispatcher: dispatcher,
		events:     events,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Start serves the admin endpoint in a background goroutine.
func (a *Admin) Start(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/ws", a.handleWS)

	a.server = &http.Server{Addr: addr, Handler: mux}
	go func() {
		a.logger.Info().Str("addr", addr).Msg("Admin endpoint listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn().Err(err).Msg("Admin endpoint failed")
		}
	}()
}

// Stop shuts the admin endpoint down.
func (a *Admin) Stop(ctx context.Context) {
	if a.server != nil {
		_ = a.server.Shutdown(ctx)
	}
}

func (a *Admin) handleStatus(w http.ResponseWriter, r *http.Request) {
	reply := make(chan engine.Status, 1)
	a.dispatcher.Submit(engine.StatusRequest{Reply: reply})

	select {
	case status := <-reply:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to write status")
		}
	case <-time.After(5 * time.Second):
		http.Error(w, "status timeout", http.StatusServiceUnavailable)
	}
}

func (a *Admin) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := a.events.Subscribe(64)
	defer cancel()

	// Reads are only consumed to observe the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
