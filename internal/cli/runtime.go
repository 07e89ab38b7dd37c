package cli

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prasetya/lintas/internal/config"
	"github.com/prasetya/lintas/internal/logger"
	"github.com/prasetya/lintas/internal/observability"
	"github.com/prasetya/lintas/internal/tracing"
	"github.com/prasetya/lintas/pkg/backend/cliagent"
	"github.com/prasetya/lintas/pkg/backend/hosted"
	"github.com/prasetya/lintas/pkg/backend/httpagent"
	"github.com/prasetya/lintas/pkg/commandqueue"
	"github.com/prasetya/lintas/pkg/coretools"
	"github.com/prasetya/lintas/pkg/dispatch"
	"github.com/prasetya/lintas/pkg/session"
	"github.com/prasetya/lintas/pkg/tool"
)

// runtime wires the session store, queue, tool registry, backends, and
// background workers from one validated config.
type runtime struct {
	cfg        atomic.Pointer[config.Config]
	store      *session.Store
	queue      *commandqueue.CommandQueue
	registry   *tool.Registry
	dispatcher *dispatch.Dispatcher
	janitor    *session.Janitor
	watcher    *config.Watcher
	logger     *logger.Logger
	metricsSrv *http.Server
}

func newRuntime(configPath string) (*runtime, error) {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	observability.EnsureRegistered()
	if err := tracing.Init("lintas", GetVersion()); err != nil {
		log.Warn().Err(err).Msg("Tracing unavailable")
	}

	rt := &runtime{
		store:    session.NewStore(),
		queue:    commandqueue.New(),
		registry: tool.NewRegistry(),
		logger:   lg,
	}
	rt.cfg.Store(cfg)

	if err := coretools.Register(rt.registry); err != nil {
		lg.Close()
		return nil, err
	}

	rt.dispatcher = dispatch.New(dispatch.Config{
		DefaultBackend: cfg.DefaultBackend,
		SessionTTL:     time.Duration(cfg.Session.TTLMinutes) * time.Minute,
		MaxSessions:    cfg.Session.MaxSessions,
		MaxMessages:    cfg.Session.MaxMessages,
		MaxChars:       cfg.Session.MaxChars,
		MaxToolRounds:  cfg.Tools.MaxToolRounds,
	}, rt.store, rt.queue, rt.registry)

	if err := rt.registerBackends(cfg); err != nil {
		rt.Close()
		return nil, err
	}

	rt.janitor = session.NewJanitor(rt.store,
		time.Duration(cfg.Session.TTLMinutes)*time.Minute,
		cfg.Session.MaxSessions,
		session.DefaultSweepInterval,
	)
	if err := rt.janitor.Start(); err != nil {
		rt.Close()
		return nil, err
	}

	if configPath != "" {
		w, err := config.NewWatcher(configPath, func(next *config.Config) {
			rt.cfg.Store(next)
			log.Info().Msg("Applied reloaded limits")
		})
		if err != nil {
			log.Warn().Err(err).Msg("Config watcher unavailable, hot reload disabled")
		} else {
			rt.watcher = w
		}
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		rt.metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := rt.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	return rt, nil
}

func (rt *runtime) registerBackends(cfg *config.Config) error {
	if cfg.Hosted.Enabled {
		client, err := hosted.NewClient(hosted.Config{
			BaseURL: cfg.Hosted.BaseURL,
			APIKey:  cfg.Hosted.APIKey,
			Model:   cfg.Hosted.Model,
			Timeout: time.Duration(cfg.Hosted.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		rt.dispatcher.Register(hosted.NewRunner(client))
	}

	if cfg.CLI.Enabled {
		runner, err := cliagent.NewRunner(cliagent.Config{
			Executable: cfg.CLI.Executable,
			Model:      cfg.CLI.Model,
			TasksDir:   cfg.CLI.TasksDir,
			Timeout:    time.Duration(cfg.CLI.TimeoutSeconds) * time.Second,
		}, nil)
		if err != nil {
			return err
		}
		rt.dispatcher.Register(runner)
	}

	if cfg.Agent.Enabled {
		client, err := httpagent.NewClient(httpagent.Config{
			BaseURL:      cfg.Agent.BaseURL,
			Agent:        cfg.Agent.Agent,
			Model:        cfg.Agent.Model,
			Timeout:      time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
			PollInterval: time.Duration(cfg.Agent.PollIntervalMillis) * time.Millisecond,
			WatcherGrace: time.Duration(cfg.Agent.WatcherGraceMillis) * time.Millisecond,
		})
		if err != nil {
			return err
		}
		rt.dispatcher.Register(httpagent.NewRunner(client))
	}

	return nil
}

// toolContext builds the per-turn tool context from the current config.
func (rt *runtime) toolContext() tool.Context {
	cfg := rt.cfg.Load()
	return tool.Context{
		WorkspaceRoot:      cfg.WorkspacePath,
		OutputsDir:         cfg.OutputsDir,
		EnableShell:        cfg.Tools.EnableShell,
		EnableWrite:        cfg.Tools.EnableWrite,
		MaxFileReadChars:   cfg.Tools.MaxFileReadChars,
		MaxToolOutputChars: cfg.Tools.MaxToolOutputChars,
	}
}

func (rt *runtime) Close() {
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
	if rt.janitor != nil {
		rt.janitor.Stop()
	}
	if rt.metricsSrv != nil {
		rt.metricsSrv.Close()
	}
	if rt.queue != nil {
		rt.queue.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tracing.Shutdown(ctx); err != nil {
		log.Debug().Err(err).Msg("Tracer shutdown incomplete")
	}
	if rt.logger != nil {
		rt.logger.Close()
	}
}
