package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/pfxrest/postfix-rest-api-connector/config"
	"github.com/pfxrest/postfix-rest-api-connector/gwserver"
	"github.com/pfxrest/postfix-rest-api-connector/logging"
	"github.com/pfxrest/postfix-rest-api-connector/observability"
	"github.com/pfxrest/postfix-rest-api-connector/restclient"
)

const warnFormat = "\033[1;31m%s\033[0m"

// drainDeadline bounds how long Shutdown waits for in-flight connections
// before forcing them closed.
const drainDeadline = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	adminListen := pflag.String("admin-listen", "127.0.0.1:8081", "serve /healthz and /metrics at this address")
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [--admin-listen host:port] <config-file>\n", os.Args[0])
		return 1
	}
	configPath := pflag.Arg(0)

	if workers := os.Getenv("TOKIO_WORKER_THREADS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		} else {
			logging.Warnf("ignoring invalid TOKIO_WORKER_THREADS value %q", workers)
		}
	}

	logging.Infof("starting Postfix REST API Connector")

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Errorf("loading configuration: %v", err)
		return 1
	}
	logging.Infof("configuration loaded: %d endpoint(s)", len(cfg.Endpoints))

	metrics, registry := observability.NewMetrics()
	ready := &observability.Readiness{}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := gwserver.New()
	g, gctx := errgroup.WithContext(ctx)

	for _, ep := range cfg.Endpoints {
		ep := ep

		client, err := restclient.New(ep, cfg.UserAgent)
		if err != nil {
			logging.Errorf("endpoint %q: %v", ep.Name, err)
			return 1
		}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx); err != nil {
			logging.Warnf(warnFormat, fmt.Sprintf("endpoint %q: target unreachable at startup: %v", ep.Name, err))
		}
		cancel()

		l, err := srv.Listen(ctx, ep.Addr())
		if err != nil {
			logging.Errorf("endpoint %q: %v", ep.Name, err)
			return 1
		}
		logging.Infof("endpoint %q: listening on %s (%s)", ep.Name, ep.Addr(), ep.Mode)

		handle := gwserver.NewConnHandler(ep, client, metrics)
		g.Go(func() error {
			return srv.Serve(l, handle)
		})
	}

	adminSrv := &http.Server{
		Addr:    *adminListen,
		Handler: observability.Handler(registry, ready),
	}
	adminListener, err := net.Listen("tcp", *adminListen)
	if err != nil {
		logging.Errorf("admin listener: %v", err)
		return 1
	}
	g.Go(func() error {
		if err := adminSrv.Serve(adminListener); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	logging.Infof("admin endpoint listening on %s", *adminListen)

	ready.SetReady()
	logging.Infof("all endpoints started")

	<-gctx.Done()
	logging.Infof("received shutdown signal")
	ready.SetNotReady()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainDeadline)
	defer cancel()

	adminSrv.Shutdown(drainCtx)
	if err := srv.Shutdown(drainCtx); err != nil {
		logging.Warnf("shutdown: %v", err)
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		logging.Errorf("%v", err)
		return 2
	}

	logging.Infof("exiting")
	return 0
}
