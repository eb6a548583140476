// Package app wires configuration, the engine, network surfaces and
// services into one runnable application.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/common"
	"github.com/ternarybob/loom/internal/engine"
	"github.com/ternarybob/loom/internal/server"
	"github.com/ternarybob/loom/internal/services/events"
	"github.com/ternarybob/loom/internal/services/schedule"
	"github.com/ternarybob/loom/internal/worker"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	EventService *events.Service
	Dispatcher   *engine.Dispatcher
	Listener     *server.Listener
	Admin        *server.Admin
	Schedule     *schedule.Service

	// BuiltinWorker is attached when the builtin opcode set is enabled.
	BuiltinWorker *InProcHandle

	cancel context.CancelFunc
}

// InProcHandle pairs an in-process worker with its run loop.
type InProcHandle struct {
	Worker *worker.InProc
}

// New initialises the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	a.EventService = events.NewService(logger)
	a.Dispatcher = engine.NewDispatcher(a.EventService, logger)
	a.Listener = server.NewListener(a.Dispatcher, cfg.Limits, logger)

	if cfg.Server.AdminAddr != "" {
		a.Admin = server.NewAdmin(a.Dispatcher, a.EventService, logger)
	}

	a.Schedule = schedule.NewService(a.Dispatcher, logger)
	if err := a.Schedule.Register(cfg.Programs, cfg.Engine.EntryLabel); err != nil {
		return nil, fmt.Errorf("register scheduled programs: %w", err)
	}

	return a, nil
}

// EnableBuiltinWorker attaches the builtin opcode executor as an in-process
// worker. Must be called before Start.
func (a *App) EnableBuiltinWorker() {
	inproc := worker.NewInProc(worker.NewBuiltin(a.Logger), a.Dispatcher, a.Logger)
	a.BuiltinWorker = &InProcHandle{Worker: inproc}
}

// Start launches the dispatcher loop, the worker listener, the admin
// endpoint and the schedule service.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go a.Dispatcher.Loop(ctx)

	if a.BuiltinWorker != nil {
		go a.BuiltinWorker.Worker.Run(ctx)
		a.BuiltinWorker.Worker.AttachAsync()
		a.Logger.Info().Msg("Builtin worker attached")
	}

	if err := a.Listener.Listen(a.Config.Server.ListenAddr); err != nil {
		a.cancel()
		return fmt.Errorf("listen %s: %w", a.Config.Server.ListenAddr, err)
	}
	go a.Listener.Serve(ctx)

	if a.Admin != nil {
		a.Admin.Start(a.Config.Server.AdminAddr)
	}

	a.Schedule.Start()
	return nil
}

// Stop shuts everything down.
func (a *App) Stop() {
	a.Schedule.Stop()
	if a.Admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Admin.Stop(shutdownCtx)
	}
	if a.cancel != nil {
		a.cancel()
	}
}
