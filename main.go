package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/app"
	"github.com/Kabilash01/cricket-ai/internal/config"
	"github.com/Kabilash01/cricket-ai/internal/display"
	"github.com/Kabilash01/cricket-ai/internal/health"
	"github.com/Kabilash01/cricket-ai/internal/history"
	"github.com/Kabilash01/cricket-ai/internal/logger"
	"github.com/Kabilash01/cricket-ai/internal/overlay"
	"github.com/Kabilash01/cricket-ai/internal/pipeline"
	"github.com/Kabilash01/cricket-ai/internal/service"
	"github.com/Kabilash01/cricket-ai/internal/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// windowDisplay is a sink backed by a desktop window
type windowDisplay interface {
	pipeline.Sink
	Close() error
}

// newWindowSink is set in builds with OpenCV support
var newWindowSink func(title string) (windowDisplay, error)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		source     string
		maxFrames  int
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (short)")
	flag.StringVar(&source, "source", "", "Override pipeline.source (file, device, rtsp:// URL or image directory)")
	flag.IntVar(&maxFrames, "max-frames", -1, "Override pipeline.max_frames (0 = unlimited)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if source != "" {
		cfg.Pipeline.Source = source
	}
	if maxFrames >= 0 {
		cfg.Pipeline.MaxFrames = maxFrames
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	log.Info("Starting realtime pipeline",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
		"source", cfg.Pipeline.Source,
		"detector", cfg.Detector.Backend,
		"display", cfg.Display.Mode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	svcMgr := service.NewManager(log)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.DBPath)
		if err != nil {
			log.Error("Failed to open run history", "error", err)
			return 1
		}
		svcMgr.Register(history.NewService(store, log.Named("history")))
	}

	var (
		sink   pipeline.Sink
		hub    *display.Broadcaster
		window windowDisplay
	)
	switch cfg.Display.Mode {
	case "web":
		hub = display.NewBroadcaster(cfg.Display.JPEGQuality, log.Named("display"))
		defer hub.Close()
		sink = hub
	case "window":
		if newWindowSink == nil {
			log.Error("Window display requires a build with -tags opencv")
			return 1
		}
		window, err = newWindowSink(cfg.Display.WindowTitle)
		if err != nil {
			log.Error("Failed to open display window", "error", err)
			return 1
		}
		defer window.Close()
		sink = window
	default:
		sink = display.NewNull()
	}

	factory, cleanup, err := app.DetectorFactory(cfg.Detector, cfg.Display.JPEGQuality, log)
	if err != nil {
		log.Error("Failed to configure detector", "error", err)
		return 1
	}
	defer cleanup()

	pipelineCfg, err := app.PipelineConfig(cfg)
	if err != nil {
		log.Error("Invalid pipeline configuration", "error", err)
		return 1
	}

	deps := pipeline.Deps{
		Open:      app.SourceOpener(cfg.Pipeline, log),
		Detector:  factory,
		Annotator: overlay.New(),
		Sink:      sink,
	}
	if store != nil {
		deps.Recorder = store
	}

	p, err := pipeline.New(pipelineCfg, deps, log)
	if err != nil {
		log.Error("Failed to build pipeline", "error", err)
		return 1
	}

	if cfg.Web.Enabled {
		server := web.NewServer(&cfg.Web, log.Named("web"))
		server.SetVersion(version)
		var frames web.FrameHub
		if hub != nil {
			frames = hub
		}
		server.SetDependencies(p, frames)
		if store != nil {
			server.SetHistory(store)
		}

		healthMgr := health.NewManager(svcMgr)
		healthMgr.RegisterChecker(health.NewPipelineChecker(p))
		if store != nil {
			healthMgr.RegisterChecker(health.NewDatabaseChecker(store))
		}
		if cfg.Detector.Backend == "http" {
			healthMgr.RegisterChecker(health.NewInferenceServiceChecker(cfg.Detector.ServiceURL))
		}
		server.SetHealth(healthMgr)
		svcMgr.Register(server)
	}

	// A window must be driven from the main goroutine, so the pipeline only
	// runs as a managed background service in headless and web modes.
	exitCode := 0
	if window != nil {
		p.SetEventBus(svcMgr.GetEventBus())
		if err := svcMgr.Start(ctx); err != nil {
			log.Error("Failed to start services", "error", err)
			exitCode = 1
		} else if err := p.Run(ctx); err != nil {
			exitCode = reportRunError(log, err)
		}
	} else {
		svcMgr.Register(p)
		if err := svcMgr.Start(ctx); err != nil {
			exitCode = reportRunError(log, err)
		} else {
			select {
			case <-p.Done():
			case <-ctx.Done():
			}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := svcMgr.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		exitCode = 1
	}
	if exitCode == 0 && window == nil {
		if err := p.Err(); err != nil {
			exitCode = reportRunError(log, err)
		}
	}

	log.Info("Shutdown complete", "exit_code", exitCode)
	return exitCode
}

func reportRunError(log *logger.Logger, err error) int {
	if errors.Is(err, pipeline.ErrSourceUnavailable) {
		log.Error("Capture source unavailable", "error", err)
	} else {
		log.Error("Pipeline failed", "error", err)
	}
	return 1
}
