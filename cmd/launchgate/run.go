package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/axmq/launchgate/gate"
	"github.com/axmq/launchgate/hook"
	"github.com/axmq/launchgate/nav"
	"github.com/axmq/launchgate/push"
	"github.com/axmq/launchgate/syncer"
)

var errSyncStopped = errors.New("initial sync stopped")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resume every session and wait until the home screen can open",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runGate(ctx, cmd)
	},
}

func runGate(ctx context.Context, cmd *cobra.Command) error {
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			env.log.Warn("failed to close stores", "error", err)
		}
	}()

	cfg, log := env.cfg, env.log
	out := cmd.OutOrStdout()

	sessions := env.registry.ActiveSessions()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No session found. Add one with `launchgate sessions add`.")
		return nil
	}

	hooks := hook.NewManager()
	if err := hooks.Add(hook.NewLogHook(log)); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics, err := hook.NewMetricsHook(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if err := hooks.Add(metrics); err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, func(err error) {
			log.Error("metrics server stopped", "error", err)
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var registrar push.Registrar = &push.DisabledRegistrar{}
	if cfg.Push.Enabled {
		registrar, err = push.NewMatrixRegistrar(ctx, push.MatrixRegistrarConfig{
			Sessions:          env.registry,
			Store:             env.registrations,
			AppID:             cfg.Push.AppID,
			AppDisplayName:    cfg.Push.AppDisplayName,
			DeviceDisplayName: cfg.Push.DeviceDisplayName,
			Lang:              cfg.Push.Lang,
			GatewayURL:        cfg.Push.GatewayURL,
			PushKey:           cfg.Push.PushKey,
			Logger:            log,
		})
		if err != nil {
			return err
		}
	}

	coordinator := nav.NewCoordinator(nav.CoordinatorConfig{
		Sessions: env.registry,
		Clients:  nav.MatrixLogoutClients(),
		Logger:   log,
	})

	g, err := gate.New(gate.Config{
		Registrar: registrar,
		Navigator: coordinator,
		Hooks:     hooks,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer g.Close()

	syncCtx, cancelSync := context.WithCancel(ctx)
	defer cancelSync()

	backoff := syncer.DefaultBackoffConfig()
	backoff.InitialInterval = cfg.Sync.RetryInterval
	backoff.MaxInterval = cfg.Sync.MaxRetryInterval
	backoff.MaxRetries = cfg.Sync.MaxRetries
	s, err := syncer.New(syncer.Config{
		Filter:      cfg.Sync.Filter,
		Backoff:     backoff,
		Concurrency: cfg.Sync.Concurrency,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	waitCtx, cancelWait := context.WithCancelCause(ctx)
	defer cancelWait(nil)
	if cfg.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, cfg.ReadyTimeout)
		defer cancel()
	}

	// Listeners are attached before any sync can complete.
	if err := g.Start(ctx, sessions); err != nil {
		return err
	}
	go func() {
		err := s.Run(syncCtx, sessions)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("initial sync did not complete", "error", err)
		}
		// Sync listeners run inside Run, so anything still pending now
		// will never complete.
		if len(g.Pending()) > 0 {
			if err == nil {
				err = errSyncStopped
			} else {
				err = fmt.Errorf("%w: %w", errSyncStopped, err)
			}
			cancelWait(err)
		}
	}()

	outcome, err := g.Wait(waitCtx)
	if err != nil && (outcome == gate.OutcomeNone || outcome == gate.OutcomeAborted) {
		if cause := context.Cause(waitCtx); cause != nil {
			err = cause
		}
		return fmt.Errorf("gate did not finish (pending %v): %w", g.Pending(), err)
	}

	select {
	case change := <-coordinator.Changes():
		if arrival, ok := coordinator.Take(change.Token); ok {
			fmt.Fprintf(out, "%s: %s for %d session(s)\n", outcome, arrival.Destination, len(arrival.UserIDs))
			for _, id := range arrival.UserIDs {
				fmt.Fprintf(out, "  %s\n", id)
			}
		}
	default:
		fmt.Fprintln(out, outcome)
	}

	if registrar.FallbackTransport() {
		fmt.Fprintln(out, "push unavailable, events are delivered through the fallback transport")
	}
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry, onErr func(error)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			onErr(err)
		}
	}()
	return srv
}
