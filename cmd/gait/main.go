package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/gait.report/internal/app"
	"github.com/banshee-data/gait.report/internal/classifier"
	"github.com/banshee-data/gait.report/internal/config"
	"github.com/banshee-data/gait.report/internal/dashboard"
	"github.com/banshee-data/gait.report/internal/health"
	"github.com/banshee-data/gait.report/internal/httputil"
	"github.com/banshee-data/gait.report/internal/journal"
	"github.com/banshee-data/gait.report/internal/motion"
	"github.com/banshee-data/gait.report/internal/session"
	"github.com/banshee-data/gait.report/internal/timeutil"
	"github.com/banshee-data/gait.report/internal/version"
)

var (
	configPath     = flag.String("config", "", "Path to a JSON config file (defaults are built in)")
	listen         = flag.String("listen", ":8080", "Listen address")
	devMode        = flag.Bool("dev", false, "Run in dev mode: replay a fixture instead of reading the serial port")
	fixture        = flag.String("fixture", "config/fixtures/demo.csv", "Sample fixture replayed in dev mode")
	replayInterval = flag.Duration("replay-interval", 200*time.Millisecond, "Delay between replayed samples in dev mode")
	port           = flag.String("port", "", "Serial port to use (overrides serial_port, ignored in dev mode)")
	disableSensor  = flag.Bool("disable-sensor", false, "Run without an accelerometer; no samples are classified")
	grpcListen     = flag.String("grpc-listen", "", "Listen address for the gRPC health service (empty disables)")
	serviceURL     = flag.String("service-url", "", "Base URL of the classification service (overrides service_url)")
)

// loadConfig reads the config file, or returns the built-in defaults when no
// path is given, and applies flag overrides.
func loadConfig(path, urlOverride string) (*config.Config, error) {
	cfg := config.Empty()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if urlOverride != "" {
		cfg.ServiceURL = &urlOverride
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func thresholds(cfg *config.Config) session.Thresholds {
	return session.Thresholds{
		WalkingSeconds:      cfg.GetWalkingThresholdSeconds(),
		RunningSeconds:      cfg.GetRunningThresholdSeconds(),
		UnknownWarningCount: cfg.GetUnknownWarningCount(),
	}
}

type sourceOptions struct {
	dev            bool
	disabled       bool
	fixture        string
	replayInterval time.Duration
	port           string
}

// newSource picks the accelerometer feed: nothing when disabled, a fixture
// replay in dev mode, otherwise the serial port.
func newSource(cfg *config.Config, o sourceOptions, clock timeutil.Clock) (motion.Source, error) {
	switch {
	case o.disabled:
		return motion.NewDisabledSource(), nil
	case o.dev:
		lines, err := motion.LoadFixture(o.fixture)
		if err != nil {
			return nil, err
		}
		return motion.NewReplaySource(lines, o.replayInterval, true, clock)
	}

	path := o.port
	if path == "" {
		path = cfg.GetSerialPort()
	}
	so := cfg.GetSerialOptions()
	return motion.NewSerialSource(path, motion.PortOptions{
		BaudRate: so.BaudRate,
		DataBits: so.DataBits,
		StopBits: so.StopBits,
		Parity:   so.Parity,
	})
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configPath, *serviceURL)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("gait.report %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	clock := timeutil.RealClock{}

	source, err := newSource(cfg, sourceOptions{
		dev:            *devMode,
		disabled:       *disableSensor,
		fixture:        *fixture,
		replayInterval: *replayInterval,
		port:           *port,
	}, clock)
	if err != nil {
		log.Fatalf("failed to open accelerometer: %v", err)
	}
	defer source.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	j, err := journal.Open(ctx, clock)
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	reporter := health.NewReporter(clock)

	client := classifier.NewClient(
		cfg.GetServiceURL(),
		httputil.NewStandardClient(&http.Client{}),
		cfg.GetRequestTimeout(),
	)
	log.Printf("classification service at %s", cfg.GetServiceURL())

	a := app.New(source, client, app.Options{
		Thresholds:      thresholds(cfg),
		TickInterval:    cfg.GetTickInterval(),
		SummaryInterval: cfg.GetSummaryInterval(),
		MaxInflight:     int64(cfg.GetMaxInflightPredictions()),
		Clock:           clock,
		Journal:         j,
		Health:          reporter,
	})

	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the accelerometer
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor accelerometer: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pipeline stopped: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	if *grpcListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reporter.ListenAndServe(ctx, *grpcListen); err != nil {
				log.Printf("grpc health service stopped: %v", err)
			}
			log.Print("grpc health routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := dashboard.NewServer(a).ServeMux()
		source.AttachAdminRoutes(mux)
		j.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: dashboard.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("dashboard listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
