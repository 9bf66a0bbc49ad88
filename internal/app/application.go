// Package app ties the engine services together and manages their
// lifecycle.
package app

import (
	"context"

	adminresetsvc "github.com/R3E-Network/gm_engine/internal/app/services/adminreset"
	"github.com/R3E-Network/gm_engine/internal/app/services/effects"
	leaderboardsvc "github.com/R3E-Network/gm_engine/internal/app/services/leaderboard"
	missionsvc "github.com/R3E-Network/gm_engine/internal/app/services/missions"
	streaksvc "github.com/R3E-Network/gm_engine/internal/app/services/streak"
	"github.com/R3E-Network/gm_engine/internal/app/storage"
	"github.com/R3E-Network/gm_engine/internal/app/storage/memory"
	"github.com/R3E-Network/gm_engine/internal/app/system"
	"github.com/R3E-Network/gm_engine/pkg/logger"
)

// Options configures application construction. A nil KV defaults to the
// in-memory store, which is only suitable for tests and local development.
type Options struct {
	KV               storage.KV
	LeaderboardTopN  int
	EffectsQueueSize int
}

// Application holds the wired services.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Effects      *effects.Worker
	Streaks      *streaksvc.Service
	Missions     *missionsvc.Service
	Leaderboards *leaderboardsvc.Service
	AdminReset   *adminresetsvc.Service
}

// New builds a fully initialised application.
func New(opts Options, log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("app")
	}

	kv := opts.KV
	if kv == nil {
		log.Warn("no store configured, using in-memory storage")
		kv = memory.New()
	}

	worker := effects.NewWorker(opts.EffectsQueueSize, log.WithField("component", "effects"))

	manager := system.NewManager()
	manager.Register(worker)

	return &Application{
		manager:      manager,
		log:          log,
		Effects:      worker,
		Streaks:      streaksvc.New(kv, worker, log.WithField("component", "streak")),
		Missions:     missionsvc.New(kv, worker, log.WithField("component", "missions")),
		Leaderboards: leaderboardsvc.New(kv, opts.LeaderboardTopN, log.WithField("component", "leaderboard")),
		AdminReset:   adminresetsvc.New(kv, log.WithField("component", "adminreset")),
	}
}

// Start launches the background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.StartAll(ctx)
}

// Stop shuts the background services down in reverse start order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.StopAll(ctx)
}
