package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/momentics/hioload-nio/control"
	"github.com/momentics/hioload-nio/eventloop"
	"github.com/momentics/hioload-nio/internal/demo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

var (
	protocol  string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a demo protocol server",
	Long: `Run a server speaking one of the demo protocols:

  echo       writes back every byte received
  adder      answers each pair of big-endian int64 operands with their sum
  heartbeat  answers "ping" with "pong"

SIGHUP reloads the configuration file and applies the log level and idle
timeouts to the running loop. SIGINT or SIGTERM shuts down gracefully;
with daemon set the loop is stopped without waiting for open sessions.

Examples:
  hioload-nio serve --protocol echo --port 9696
  HIOLOAD_NIO_READ_TIMEOUT=30s hioload-nio serve --config /etc/hioload-nio.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&protocol, "protocol", "p", "echo", "demo protocol: echo, adder or heartbeat")
	serveCmd.Flags().IntVar(&servePort, "port", -1, "override the configured port")
}

// pipelineFor maps a protocol name to its server initializer.
func pipelineFor(name string) (eventloop.Initializer, error) {
	switch name {
	case "echo":
		return demo.EchoPipeline, nil
	case "adder":
		return demo.AdderPipeline, nil
	case "heartbeat":
		return demo.HeartbeatPipeline, nil
	}
	return nil, fmt.Errorf("unknown protocol %q", name)
}

func runServe(cmd *cobra.Command, _ []string) error {
	initializer, err := pipelineFor(protocol)
	if err != nil {
		return err
	}
	reloader, err := control.NewReloader(cfgFile)
	if err != nil {
		return err
	}
	cfg := applyFlags(reloader.Config())
	if servePort >= 0 {
		cfg.Port = servePort
	}
	logger := control.NewLogger(cfg, cmd.ErrOrStderr())

	opts := []eventloop.Option{
		eventloop.WithLogger(logger),
		eventloop.WithServerInitializer(initializer),
	}
	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, eventloop.WithRegisterer(reg))
	}
	loop, err := eventloop.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := loop.Start(); err != nil {
		return err
	}

	reloader.OnReload(func(_, cur *control.Config) {
		next := applyFlags(cur)
		logger.SetLevel(hclog.LevelFromString(next.LogLevel))
		if err := loop.SetIdleTimeouts(next.ReadTimeout, next.WriteTimeout); err != nil {
			logger.Warn("apply idle timeouts", "error", err)
		}
		logger.Info("configuration reloaded", "log_level", next.LogLevel,
			"read_timeout", next.ReadTimeout, "write_timeout", next.WriteTimeout)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-loop.Done():
			if err := loop.AwaitTermination(context.Background()); err != nil {
				return err
			}
			return errors.New("event loop terminated")
		case <-ctx.Done():
			return stopLoop(loop, cfg.Daemon, logger)
		}
	})
	g.Go(func() error { return watchReload(ctx, reloader, logger) })
	if reg != nil {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, reg, logger) })
	}
	return g.Wait()
}

func stopLoop(loop *eventloop.EventLoop, daemon bool, logger hclog.Logger) error {
	if daemon {
		loop.ShutdownNow()
		return nil
	}
	loop.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := loop.AwaitTermination(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("sessions still open after grace period, closing them")
		loop.ShutdownNow()
		<-loop.Done()
		return nil
	}
	return err
}

func watchReload(ctx context.Context, r *control.Reloader, logger hclog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := r.Reload(); err != nil {
				logger.Error("reload failed, keeping current configuration", "error", err)
			}
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger hclog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("metrics listening", "addr", addr)
	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
