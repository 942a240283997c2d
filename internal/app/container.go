// Package app assembles the dependency graph behind the CLI.
package app

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/infrastructure/backend"
	"github.com/doeshing/cmdai-go/internal/infrastructure/config"
	"github.com/doeshing/cmdai-go/internal/infrastructure/executor"
	"github.com/doeshing/cmdai-go/internal/infrastructure/history"
	"github.com/doeshing/cmdai-go/internal/infrastructure/modelcache"
	"github.com/doeshing/cmdai-go/internal/infrastructure/probe"
	"github.com/doeshing/cmdai-go/internal/infrastructure/security"
	"github.com/doeshing/cmdai-go/internal/pkg/filesystem"
	"github.com/doeshing/cmdai-go/internal/pkg/logger"
	"github.com/doeshing/cmdai-go/internal/ports"
	"github.com/doeshing/cmdai-go/internal/services"
)

// Container wires application services with infrastructure adapters. Config
// is loaded once at build time; every command works off the same snapshot.
type Container struct {
	Cfg        domain.Config
	ConfigPath string
	Log        ports.Logger
	Generator  *services.GeneratorService
	Doctor     *services.DoctorService
	History    ports.HistoryRepository
	Models     ports.ModelStore
	SessionID  string
}

// BuildContainer constructs the dependency graph. The prompter is supplied
// by the caller because interactivity is a CLI concern. Validator or cache
// construction failures are fatal; a missing rules file is not, the
// validator falls back to its embedded table.
func BuildContainer(ctx context.Context, verbose bool, prompter ports.ConfirmationPrompter) (*Container, error) {
	log := logger.NewStd(verbose)

	loader := config.NewFileLoader("", log)
	cfg, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	validator, err := security.NewValidator(cfg.Security, log)
	if err != nil {
		return nil, err
	}

	store, err := modelcache.New(cfg.Cache, log)
	if err != nil {
		return nil, err
	}

	chain := backend.BuildChain(cfg, store, log)
	registry := backend.NewRegistry(chain, cfg.GenerationTimeout(), log)

	engine := executor.NewEngine(prompter, cfg.MaxOutputBytes(), log)

	historyDir := filepath.Join(filesystem.AppDir(), "history")
	historyStore := history.Open(cfg.History, historyDir, log)

	var audit ports.AuditLogger = security.NopAudit{}
	if cfg.Security.AuditLog {
		audit = security.NewFileAuditLogger()
	}

	envProbe := probe.NewProbe()
	session := uuid.NewString()

	generator := &services.GeneratorService{
		Cfg:       cfg,
		Probe:     envProbe,
		Registry:  registry,
		Validator: validator,
		Runner:    engine,
		History:   historyStore,
		Audit:     audit,
		Logger:    log,
		SessionID: session,
	}

	doctor := &services.DoctorService{
		Cfg:        cfg,
		ConfigPath: loader.Path(),
		Validator:  validator,
		Registry:   registry,
		Store:      store,
		Probe:      envProbe,
	}

	return &Container{
		Cfg:        cfg,
		ConfigPath: loader.Path(),
		Log:        log,
		Generator:  generator,
		Doctor:     doctor,
		History:    historyStore,
		Models:     store,
		SessionID:  session,
	}, nil
}
