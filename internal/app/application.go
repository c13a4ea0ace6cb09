// Package app wires the core together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"chatcore/internal/api"
	"chatcore/internal/bridge"
	"chatcore/internal/broadcast"
	"chatcore/internal/config"
	"chatcore/internal/database"
	"chatcore/internal/dispatch"
	"chatcore/internal/files"
	"chatcore/internal/heartbeat"
	"chatcore/internal/presence"
	"chatcore/internal/rooms"
	"chatcore/internal/websocket"
)

// Application coordinates all system components. Initialization follows
// strict dependency order: database, then the shared state structures, then
// delivery, dispatch, and the background loops.
type Application struct {
	config     *config.Config
	store      *database.Manager
	registry   *websocket.Registry
	rooms      *rooms.Index
	presence   *presence.Tracker
	engine     *broadcast.Engine
	bridge     *bridge.Bridge
	dispatcher *dispatch.Dispatcher
	heartbeat  *heartbeat.Supervisor
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication builds and wires every component. Failure here is the
// only fatal condition the core recognizes; it aborts startup.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := database.NewManager(cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize message store: %w", err)
	}

	registry := websocket.NewRegistry(cfg.WebSocket.BufferSize, cfg.WebSocket.WriteTimeout)
	index := rooms.NewIndex(registry)
	tracker := presence.NewTracker(registry)
	engine := broadcast.NewEngine(registry, index)

	// The bridge wraps the engine when distribution is enabled; the
	// dispatcher only ever sees the Broadcaster interface.
	var broadcaster broadcast.Broadcaster = engine
	var distBridge *bridge.Bridge
	if cfg.Redis.Enabled {
		distBridge = bridge.New(engine, bridge.NewRedisPubSub(cfg.Redis.Addr), cfg.Redis.ChannelPrefix)
		broadcaster = distBridge
	}

	dispatcher := dispatch.NewDispatcher(dispatch.Deps{
		Registry:           registry,
		Rooms:              index,
		Presence:           tracker,
		Broadcaster:        broadcaster,
		Messages:           store,
		History:            store,
		// Upload grants are issued in-process; AI and project services
		// are external collaborators and stay unset unless provided.
		Files:              files.NewService("/uploads", 5*time.Minute),
		RateLimitPerMinute: cfg.Chat.RateLimitPerMinute,
		HistoryReplayLimit: cfg.Chat.HistoryReplayLimit,
		AIRooms:            cfg.Chat.AIRooms,
	})

	cleanup := NewDisconnectCascade(registry, index, tracker, dispatcher)
	engine.SetCleanup(cleanup)

	supervisor := heartbeat.NewSupervisor(registry, cleanup, cfg.WebSocket.HeartbeatInterval, cfg.WebSocket.InactivityThreshold)

	wsHandler := websocket.NewHandler(registry, dispatcher, cleanup, 2*cfg.WebSocket.InactivityThreshold)
	apiServer := api.NewServer(registry, index, tracker, dispatcher)

	mux := http.NewServeMux()
	mux.Handle("/health", apiServer)
	mux.Handle("/stats", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:     mux,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		// WriteTimeout is deliberately left off the server: it would
		// sever long-lived WebSocket connections. Frame writes carry
		// their own deadline.
	}

	return &Application{
		config:     cfg,
		store:      store,
		registry:   registry,
		rooms:      index,
		presence:   tracker,
		engine:     engine,
		bridge:     distBridge,
		dispatcher: dispatcher,
		heartbeat:  supervisor,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start launches the background loops and the HTTP server.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting chatcore on %s", app.httpServer.Addr)

	if app.bridge != nil {
		if err := app.bridge.Start(ctx); err != nil {
			return fmt.Errorf("failed to start distribution bridge: %w", err)
		}
	}

	if err := app.heartbeat.Start(ctx); err != nil {
		return fmt.Errorf("failed to start heartbeat supervisor: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.heartbeat.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("chatcore started")
		return nil
	}
}

// Shutdown stops components in reverse order: no new connections, then the
// background loops, then live sockets, then the store.
func (app *Application) Shutdown(timeout time.Duration) error {
	log.Printf("Shutting down chatcore...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.heartbeat.Stop(); err != nil {
		log.Printf("Heartbeat supervisor stop error: %v", err)
	}

	if app.bridge != nil {
		if err := app.bridge.Stop(); err != nil {
			log.Printf("Distribution bridge stop error: %v", err)
		}
	}

	app.registry.CloseAll()

	if err := app.store.Close(); err != nil {
		log.Printf("Message store close error: %v", err)
	}

	log.Printf("chatcore shutdown complete")
	return nil
}
