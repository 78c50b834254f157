package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/alarm-klaxon/internal/api/grpc/delivery"
	"github.com/oshokin/alarm-klaxon/internal/config"
	"github.com/oshokin/alarm-klaxon/internal/logger"
	"github.com/oshokin/alarm-klaxon/internal/metrics"
	"github.com/oshokin/alarm-klaxon/internal/version"
)

// Options controls the alarm-klaxon daemon.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the gRPC listen address from the settings.
	ListenAddress string
	// MetricsAddress overrides the Prometheus listen address from the settings.
	MetricsAddress string
	// LogLevel overrides the log level from the settings.
	LogLevel string
	// SkipInstanceCheck disables the single-instance guard.
	SkipInstanceCheck bool
}

// metricsReadHeaderTimeout bounds slow metrics clients.
const metricsReadHeaderTimeout = 5 * time.Second

// Run starts the daemon and blocks until ctx is cancelled or a server fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarm-klaxon")

	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	if err = logger.Setup(settings.LogLevel, ""); err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}

	logger.InfoKV(ctx, "Starting alarm delivery", "version", version.Full())

	if !opts.SkipInstanceCheck {
		if err = ensureSingleInstance(ps.Processes); err != nil {
			return err
		}
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", settings.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", settings.ListenAddress, err)
	}

	core, err := newStack(ctx, settings)
	if err != nil {
		_ = lis.Close()

		return fmt.Errorf("initialise delivery core: %w", err)
	}

	//nolint:contextcheck // Teardown must outlive the cancelled run context.
	defer core.close(logger.ToContext(context.Background(), logger.FromContext(ctx)))

	grpcServer := grpc.NewServer()
	api.RegisterAlarmDeliveryServer(grpcServer, api.NewServer(core.coordinator, core.bus))

	logger.InfoKV(ctx, "Alarm delivery listening", "listen_address", lis.Addr().String())

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", serveErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()

		return nil
	})

	group.Go(func() error {
		return core.journal(groupCtx)
	})

	if settings.MetricsAddress != "" {
		startMetrics(groupCtx, group, settings.MetricsAddress)
	}

	err = group.Wait()

	logger.Info(ctx, "Alarm delivery stopped")

	return err
}

// loadSettings reads the settings file and applies command line overrides.
// A missing default settings file falls back to the built-in defaults.
func loadSettings(opts *Options) (*config.Config, error) {
	settings, err := config.Load(opts.ConfigPath)

	switch {
	case err == nil:
	case opts.ConfigPath == "" && errors.Is(err, fs.ErrNotExist):
		settings = config.Default()
	default:
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.ListenAddress != "" {
		settings.ListenAddress = opts.ListenAddress
	}

	if opts.MetricsAddress != "" {
		settings.MetricsAddress = opts.MetricsAddress
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}

	if err = config.Validate(settings); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return settings, nil
}

// startMetrics serves the Prometheus registry until ctx is done.
func startMetrics(ctx context.Context, group *errgroup.Group, address string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	group.Go(func() error {
		logger.InfoKV(ctx, "Metrics listening", "metrics_address", address)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve metrics: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-ctx.Done()

		//nolint:contextcheck // Shutdown gets its own deadline after ctx is cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsReadHeaderTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})
}
