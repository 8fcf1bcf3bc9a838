package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/encodeous/spindle/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

// RunOptions are the command line overrides of a computation
type RunOptions struct {
	ConfigPath string
	LogPath    string
	Verbose    bool
	Workers    int
	MaxRounds  int
	Timeout    time.Duration
	// DebugAddr serves expvar and the perf metrics when set
	DebugAddr string
}

func setupDebugging(addr string) {
	if addr == "" {
		return
	}
	go func() {
		log.Println(http.ListenAndServe(addr, nil))
	}()
}

func ReadNetworkConfig(configPath string) (*state.NetworkCfg, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := state.ParseNetworkConfig(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	return cfg, nil
}

// NewLogger builds the console logger, fanned out to logPath when it is set. The returned closer releases the
// log file.
func NewLogger(prefix string, level slog.Level, logPath string) (*slog.Logger, io.Closer, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: prefix,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	var closer io.Closer = io.NopCloser(nil)
	if logPath != "" {
		err := os.MkdirAll(path.Dir(logPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0700)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		closer = f
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Apply overrides the engine options of cfg with the ones given on the command line
func (o RunOptions) Apply(cfg *state.NetworkCfg) {
	if o.Workers > 0 {
		cfg.Engine.Workers = o.Workers
	}
	if o.MaxRounds > 0 {
		cfg.Engine.MaxRounds = o.MaxRounds
	}
	if o.Timeout > 0 {
		cfg.Engine.Timeout = o.Timeout
	}
}

// Compute builds an engine for cfg and runs it to convergence
func Compute(ctx context.Context, cfg *state.NetworkCfg, logger *slog.Logger) (*Result, *Engine, error) {
	ectx, err := NewEngineContext(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	e, err := New(ectx)
	if err != nil {
		return nil, nil, err
	}
	ectx.Log.Info("computing data plane", "nodes", len(cfg.Nodes), "sessions", ectx.Topology.Len(), "workers", ectx.Options.Workers)
	start := time.Now()
	res, err := e.Run(ctx)
	if err != nil {
		return nil, e, err
	}
	ectx.Log.Info("converged", "rounds", res.Rounds, "elapsed", time.Since(start), "warnings", len(res.Warnings))
	return res, e, nil
}

// Execute reads the configuration and converges it, stopping early on SIGINT or SIGTERM
func Execute(opts RunOptions) (*Result, *Engine, error) {
	setupDebugging(opts.DebugAddr)
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	cfg, err := ReadNetworkConfig(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	opts.Apply(cfg)

	logger, closer, err := NewLogger("spindle", level, opts.LogPath)
	if err != nil {
		return nil, nil, err
	}
	defer closer.Close()

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(context.Canceled)
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
		}
	}()
	return Compute(ctx, cfg, logger)
}
