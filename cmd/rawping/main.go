package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tkjaer/rawping/internal/config"
	"github.com/tkjaer/rawping/internal/output"
	"github.com/tkjaer/rawping/internal/probe"
	"github.com/tkjaer/rawping/internal/resolve"
	"github.com/tkjaer/rawping/internal/shared"
	"github.com/tkjaer/rawping/internal/version"
	"github.com/tkjaer/rawping/pkg/iface"
)

func main() {
	args, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logFile, err := config.SetupLogging(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		os.Exit(1)
	}

	code := run(args)
	if logFile != nil {
		logFile.Close()
	}
	os.Exit(code)
}

func run(args config.Args) int {
	runID := uuid.New().String()
	log := slog.Default().With("run_id", runID)
	log.Debug("Starting rawping",
		"destinations", args.Destinations,
		"mode", args.Mode(),
		"parallel", args.Parallel,
	)

	bind, err := sourceAddr(args.Interface)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return shared.StatusFailed
	}

	if args.Mode() == probe.ModeRaw {
		if err := probe.CheckRawPrivileges(); err != nil {
			log.Warn("Raw socket will likely fail, consider --unprivileged", "error", err)
		}
	}

	om, err := createOutputs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create outputs: %v\n", err)
		return shared.StatusFailed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseID := uint16(args.ID)
	if baseID == 0 {
		// Random per run, then offset per destination.
		baseID = uint16(rand.N(0x10000-len(args.Destinations))) + 1
	}

	cfg := probe.DefaultConfig()
	cfg.Count = args.Count
	cfg.Deadline = args.Deadline
	cfg.Size = args.Size
	cfg.Timeout = args.Timeout
	cfg.Interval = args.Interval
	cfg.Bind = bind
	cfg.Mode = args.Mode()
	cfg.SkipChecksum = args.NoChecksum
	cfg.RunID = runID
	cfg.Logger = log
	cfg.Resolver = resolve.New(resolve.DefaultCacheTTL)
	cfg.Observer = om

	statuses := runSessions(ctx, args.Destinations, cfg, baseID, int(args.Parallel), runSession)

	if err := om.Close(); err != nil {
		log.Error("Failed to close outputs", "error", err)
	}

	for _, st := range statuses {
		if st != shared.StatusOK {
			return shared.StatusFailed
		}
	}
	return shared.StatusOK
}

// runSessions probes each destination with its own identifier, at most
// parallel at a time. Destinations still queued when ctx is cancelled are
// skipped and count as failed.
func runSessions(ctx context.Context, dests []string, cfg probe.Config, baseID uint16, parallel int,
	runOne func(context.Context, string, probe.Config) int) []int {
	statuses := make([]int, len(dests))
	g := new(errgroup.Group)
	g.SetLimit(parallel)
	for i, dest := range dests {
		c := cfg
		c.ID = baseID + uint16(i)
		g.Go(func() error {
			if ctx.Err() != nil {
				slog.Debug("Skipping destination, run interrupted", "destination", dest)
				statuses[i] = shared.StatusFailed
				return nil
			}
			statuses[i] = runOne(ctx, dest, c)
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

func runSession(ctx context.Context, dest string, cfg probe.Config) int {
	s, err := probe.NewSession(ctx, dest, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", dest, err)
		return shared.StatusFailed
	}
	summary, err := s.Run(ctx)
	if err != nil && !errors.Is(err, resolve.ErrUnknownHost) {
		cfg.Logger.Debug("Session ended with error", "destination", dest, "error", err)
	}
	if summary == nil {
		return shared.StatusFailed
	}
	return summary.Status
}

// sourceAddr resolves -I: an IPv4 literal is used as-is, anything else is
// taken as an interface name.
func sourceAddr(spec string) (netip.Addr, error) {
	if spec == "" {
		return netip.Addr{}, nil
	}
	if addr, err := netip.ParseAddr(spec); err == nil {
		if !addr.Unmap().Is4() {
			return netip.Addr{}, fmt.Errorf("source address %s is not IPv4", spec)
		}
		return addr.Unmap(), nil
	}
	addr, err := iface.IPv4Addr(spec)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("interface %s: %w", spec, err)
	}
	return addr, nil
}

func createOutputs(args config.Args) (_ *output.OutputManager, err error) {
	om := &output.OutputManager{}
	defer func() {
		if err != nil {
			// Release whatever was opened before the failure.
			_ = om.Close()
		}
	}()

	if !args.Json {
		buffered := len(args.Destinations) > 1 && args.Parallel > 1
		om.Register(output.NewTextOutput(os.Stdout, args.Quiet, buffered))
	}

	if args.Json || args.JsonFile != "" {
		jo, jerr := output.NewJSONOutput(args.JsonFile)
		if jerr != nil {
			return nil, jerr
		}
		om.Register(jo)
	}

	if args.Table {
		om.Register(output.NewTableOutput(os.Stdout))
	}

	if args.MetricsAddr != "" {
		po := output.NewPrometheusOutput(version.Version)
		if err = serveMetrics(args.MetricsAddr, po); err != nil {
			return nil, err
		}
		om.Register(po)
	}

	return om, nil
}

// serveMetrics exposes the Prometheus output's registry for the lifetime of
// the process.
func serveMetrics(addr string, po *output.PrometheusOutput) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(po.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server stopped", "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", listener.Addr().String())
	return nil
}
