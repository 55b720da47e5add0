// Copyright 2025 The MADSci Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command workcelld is the workcell orchestration core's daemon: it
// loads configuration, wires the state handler, scheduler, execution
// engine, and HTTP control plane together, and serves until it receives
// a shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/madsci-lab/workcell/internal/config"
	"github.com/madsci-lab/workcell/internal/engine"
	"github.com/madsci-lab/workcell/internal/httpapi"
	"github.com/madsci-lab/workcell/internal/log"
	"github.com/madsci-lab/workcell/internal/metrics"
	"github.com/madsci-lab/workcell/internal/scheduler"
	"github.com/madsci-lab/workcell/internal/state"
	"github.com/madsci-lab/workcell/internal/tracing"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/node"
	"github.com/madsci-lab/workcell/pkg/nodeclient"
	"github.com/madsci-lab/workcell/pkg/param"
)

// Version information (injected via ldflags at build time).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to workcelld YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "workcelld error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg := &log.Config{Level: cfg.Log.Level, Format: log.Format(cfg.Log.Format), AddSource: cfg.Log.AddSource}
	logger := log.New(logCfg)
	slog.SetDefault(logger)
	logger.Info("starting workcelld", "version", version, "commit", commit, "build_date", buildDate)

	otelProvider, err := tracing.New("workcelld", version)
	if err != nil {
		return fmt.Errorf("starting tracing provider: %w", err)
	}

	collector, err := metrics.New(otelProvider.MeterProvider())
	if err != nil {
		return fmt.Errorf("starting metrics collector: %w", err)
	}

	clock := id.SystemClock{}
	backend := state.New(clock)
	datapoints := state.NewDatapointStore(clock)
	resolver := param.New(datapoints).WithLocations(backend)
	eval := param.DefaultEvaluator()

	clients := newClientFactory(backend, cfg.Node)

	sched := scheduler.New(backend, resolver, eval, clock,
		scheduler.WithInterval(cfg.Scheduler.TickInterval),
		scheduler.WithMetrics(collector),
		scheduler.WithLogger(log.WithComponent(logger, "scheduler")),
	)
	eng := engine.New(backend, resolver, eval, clients, clock,
		engine.WithDefaultTimeout(cfg.Engine.DefaultStepTimeout),
		engine.WithMetrics(collector),
		engine.WithLogger(log.WithComponent(logger, "engine")),
	)

	server := httpapi.NewServer(backend, resolver, eng, clients, clock,
		httpapi.WithTracer(otelProvider.Tracer("httpapi")),
		httpapi.WithLogger(log.WithComponent(logger, "httpapi")),
	)
	server.SetMetricsHandler(promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := restoreSnapshot(backend, cfg.State.SnapshotPath, logger); err != nil {
		return fmt.Errorf("restoring state snapshot: %w", err)
	}
	if n := backend.RequeueRunning(ctx); n > 0 {
		logger.Info("requeued workflows left running by a previous process", "count", n)
	}

	sched.Start(ctx)
	go pumpEngine(ctx, eng, sched)
	go archiveLoop(ctx, backend, clock, cfg.State, log.WithComponent(logger, "state"))
	go snapshotLoop(ctx, backend, cfg.State, log.WithComponent(logger, "state"))
	go nodeStatusLoop(ctx, backend, clients, clock, cfg.Node.StatusPollInterval, log.WithComponent(logger, "nodepoll"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http control plane listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	cancel()
	sched.Stop()
	eng.Wait()

	if err := writeSnapshot(backend, cfg.State.SnapshotPath); err != nil {
		logger.Error("writing final state snapshot", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during http shutdown", "error", err)
	}

	return otelProvider.Shutdown(shutdownCtx)
}

// pumpEngine drains scheduler candidates into the engine until ctx is
// cancelled, backing off briefly when the queue is empty rather than
// busy-looping.
func pumpEngine(ctx context.Context, eng *engine.Engine, sched *scheduler.Scheduler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !eng.RunNextStep(ctx, sched) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
}

// archiveLoop periodically moves terminal workflows past their retention
// window from the active collection into the archive.
func archiveLoop(ctx context.Context, backend *state.Memory, clock id.Clock, cfg config.StateConfig, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.ArchiveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := backend.Archive(ctx, cfg.ArchiveRetention, clock.Now()); n > 0 {
				logger.Info("archived terminal workflows", "count", n)
			}
		}
	}
}

// restoreSnapshot replays the durable snapshot into the backend at boot.
// A missing file is a fresh install, not an error.
func restoreSnapshot(backend *state.Memory, path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := backend.Restore(data); err != nil {
		return err
	}
	logger.Info("restored state snapshot", "path", path)
	return nil
}

// writeSnapshot serializes the backend's workflow collections to path via
// a temp-file rename so a crash mid-write never corrupts the snapshot.
func writeSnapshot(backend *state.Memory, path string) error {
	if path == "" {
		return nil
	}
	data, err := backend.Snapshot()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// snapshotLoop rewrites the durable snapshot at a fixed interval so a
// crash loses at most one interval of workflow state.
func snapshotLoop(ctx context.Context, backend *state.Memory, cfg config.StateConfig, logger *slog.Logger) {
	if cfg.SnapshotPath == "" {
		return
	}
	ticker := time.NewTicker(cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeSnapshot(backend, cfg.SnapshotPath); err != nil {
				logger.Error("writing state snapshot", "error", err)
			}
		}
	}
}

// nodeStatusLoop refreshes every registered node's status in the registry
// at a fixed interval. The scheduler's readiness check reads these
// last-known statuses, so a node coming online (or falling over) is
// observed within one poll interval. A node that can't be reached keeps
// its previous LastReachableTime and is recorded as not ready.
func nodeStatusLoop(ctx context.Context, backend state.Backend, clients engine.ClientFactory, clock id.Clock, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		entries, err := backend.ListNodes(ctx)
		if err != nil {
			logger.Error("listing nodes for status poll", "error", err)
			continue
		}
		for _, entry := range entries {
			client, err := clients(ctx, entry.NodeName)
			if err != nil {
				continue
			}
			status, err := client.GetStatus(ctx)
			if err != nil {
				logger.Warn("node unreachable", "node", entry.NodeName, "error", err)
				_ = backend.UpdateNodeStatus(ctx, entry.NodeName, node.Status{}, entry.LastReachableTime)
				continue
			}
			if err := backend.UpdateNodeStatus(ctx, entry.NodeName, *status, clock.Now()); err != nil {
				logger.Error("recording node status", "node", entry.NodeName, "error", err)
			}
		}
	}
}

// newClientFactory resolves a registered node's URL from the backend and
// wraps it in the same retry/breaker stack every node client uses. One
// client is kept per node and rebuilt only when the node's URL changes, so
// the breaker's failure count carries over from one call to the next.
func newClientFactory(backend state.Backend, cfg config.NodeClientConfig) engine.ClientFactory {
	type cachedClient struct {
		url    string
		client *nodeclient.BreakerClient
	}
	var mu sync.Mutex
	cache := make(map[string]cachedClient)
	return func(ctx context.Context, nodeName string) (nodeclient.Client, error) {
		entry, ok, err := backend.GetNode(ctx, nodeName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("node %q is not registered", nodeName)
		}

		mu.Lock()
		defer mu.Unlock()
		if cc, ok := cache[nodeName]; ok && cc.url == entry.NodeURL {
			return cc.client, nil
		}

		c := nodeclient.NewHTTPClient(nodeName, entry.NodeURL)
		c.Retry = nodeclient.RetryConfig{
			MaxAttempts:    cfg.MaxRetryAttempts,
			InitialBackoff: cfg.InitialBackoff,
			BackoffFactor:  cfg.BackoffFactor,
			MaxBackoff:     cfg.MaxBackoff,
		}
		bc := nodeclient.NewBreakerClient(nodeName, c)
		cache[nodeName] = cachedClient{url: entry.NodeURL, client: bc}
		return bc, nil
	}
}
