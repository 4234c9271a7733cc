package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/selfgene/sg/internal/engine/snapshot"
	"github.com/selfgene/sg/internal/healthserver"
	"github.com/selfgene/sg/internal/poolserver"
)

// handleWatch keeps the process alive serving the health/metrics and
// federation peer listeners (plus the optional snapshot-rotation poller),
// then persists registry/phenotype state once on shutdown. It runs no
// locus itself; verify timers armed by other sgctl invocations belong to
// those one-shot processes and end with them, so none fire here.
func handleWatch(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	health := healthserver.New(prometheus.NewRegistry())
	health.SetReady(true)
	healthSrv := &http.Server{Addr: a.cfg.Server.HealthAddr, Handler: health.Handler()}

	var poolSrv *http.Server
	if a.cfg.Pool.JWTSecret != "" {
		pool := poolserver.New(a.exchange, poolserver.Config{
			Domain:    a.kernel.DomainName(),
			JWTSecret: a.cfg.Pool.JWTSecret,
		})
		poolSrv = &http.Server{Addr: a.cfg.Server.PoolAddr, Handler: pool.Handler()}
	}

	var rotator *cron.Cron
	if a.cfg.Snapshot.Enabled {
		mgr := snapshot.New(a.cfg.Engine.ProjectRoot)
		rotator = cron.New()
		_, err := rotator.AddFunc(a.cfg.Snapshot.Cron, func() {
			name := fmt.Sprintf("auto-%d", time.Now().UTC().Unix())
			if _, err := mgr.Rotate(name, a.cfg.Snapshot.Retain); err != nil {
				fmt.Fprintf(os.Stderr, "snapshot rotation failed: %v\n", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule snapshot rotation %q: %w", a.cfg.Snapshot.Cron, err)
		}
		rotator.Start()
		defer rotator.Stop()
	}

	errc := make(chan error, 2)
	go func() { errc <- healthSrv.ListenAndServe() }()
	if poolSrv != nil {
		go func() { errc <- poolSrv.ListenAndServe() }()
		fmt.Printf("watching for scheduled verification steps; health on %s, pool on %s; press Ctrl-C to stop\n",
			a.cfg.Server.HealthAddr, a.cfg.Server.PoolAddr)
	} else {
		fmt.Printf("watching for scheduled verification steps; health on %s (SG_POOL_JWT_SECRET unset, pool endpoint disabled); press Ctrl-C to stop\n",
			a.cfg.Server.HealthAddr)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		fmt.Printf("received %s, shutting down\n", sig)
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "listener error: %v\n", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	if poolSrv != nil {
		_ = poolSrv.Shutdown(shutdownCtx)
	}

	fmt.Println("persisting state")
	if err := a.registry.SaveIndex(); err != nil {
		return err
	}
	return a.phenotype.Save()
}
