// Command fridgewatch watches a fridge opening with a camera and keeps the
// inventory ledger in step with items crossing the reference line.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/camera"
	"github.com/anusha9573/SmartRefridgerator/internal/config"
	"github.com/anusha9573/SmartRefridgerator/internal/detect"
	"github.com/anusha9573/SmartRefridgerator/internal/detect/yolo"
	"github.com/anusha9573/SmartRefridgerator/internal/inventory"
	"github.com/anusha9573/SmartRefridgerator/internal/journal"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/internal/pipeline"
	"github.com/anusha9573/SmartRefridgerator/internal/replay"
	"github.com/anusha9573/SmartRefridgerator/internal/shm"
	"github.com/anusha9573/SmartRefridgerator/internal/store"
	"github.com/anusha9573/SmartRefridgerator/internal/webmonitor"
	"github.com/anusha9573/SmartRefridgerator/internal/webrtc"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	envFile    = flag.String("env", ".env", "dotenv file with FRIDGE_* overrides")
	source     = flag.String("source", "", "Frame source: camera, replay or shm")
	device     = flag.String("device", "", "Camera device index or video file")
	replayPath = flag.String("replay", "", "JSON-lines detection recording (implies -source replay)")
	storeURI   = flag.String("store", "", "Ledger URI (mongodb://, postgres://, memory://)")
	httpAddr   = flag.String("http", "", "Web monitor address")
	metricsAdr = flag.String("metrics", "", "Metrics server address")
	headless   = flag.Bool("headless", false, "Run without the preview window")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor   = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err == nil {
		applyFlags(&cfg)
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.Log.Color)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Main", "Exiting: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Main", "Stopped")
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			cfg.Source = *source
		case "device":
			cfg.Camera.Device = *device
		case "replay":
			cfg.Source = config.SourceReplay
			cfg.Replay.Path = *replayPath
		case "store":
			cfg.Store.URI = *storeURI
		case "http":
			cfg.Monitor.Addr = *httpAddr
		case "metrics":
			cfg.Metrics.Addr = *metricsAdr
		case "headless":
			cfg.Pipeline.Headless = *headless
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-color":
			cfg.Log.Color = *logColor
		}
	})
}

func run(ctx context.Context, cfg config.Config) error {
	logger.Info("Main", "fridgewatch starting (source: %s)", cfg.Source)
	logger.Info("Main", "  Ledger: %s", store.Redact(cfg.Store.URI))

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", cfg.Metrics.Addr)
			if err := m.StartServer(cfg.Metrics.Addr); err != nil {
				logger.Error("Main", "Metrics server error: %v", err)
			}
		}()
	}

	// An unreachable ledger at startup is fatal.
	ledger, err := store.Open(ctx, cfg.Store.Config)
	if err != nil {
		return errors.Wrap(err, "open ledger")
	}
	closeLedger := func() error {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Wrap(ledger.Close(cctx), "close ledger")
	}
	seedQuantities(ctx, ledger, m)

	src, det, detCloser, err := openSource(cfg)
	if err != nil {
		_ = closeLedger()
		return err
	}
	var closers []func() error
	if detCloser != nil {
		closers = append(closers, detCloser)
	}

	reconciler := inventory.NewReconciler(ledger,
		inventory.WithRetryPolicy(cfg.Store.Retry),
		inventory.WithRetryNotify(func(error, time.Duration) {
			m.LedgerRetries.Add(1)
		}),
	)
	processor := pipeline.NewProcessor(reconciler,
		pipeline.WithLineRatio(cfg.Pipeline.LineRatio),
		pipeline.WithMetrics(m),
	)

	j := journal.New(cfg.Journal.Path, m)
	if cfg.Journal.AutoStart {
		if _, err := j.Start(""); err != nil {
			logger.Warn("Main", "Journal auto-start failed: %v", err)
		}
	}
	sinks := []pipeline.Sink{pipeline.SinkFunc(func(res pipeline.Result) {
		for _, ev := range res.Events {
			j.Send(ev)
		}
	})}
	closers = append(closers, j.Close)

	var rtc *webrtc.Server
	if cfg.WebRTC.Enabled {
		rtc = webrtc.NewServer(cfg.WebRTC.Config, m)
		sinks = append(sinks, rtc)
		closers = append(closers, rtc.Close)
	}

	if cfg.Monitor.Enabled {
		deps := webmonitor.Deps{Ledger: ledger, Journal: j, Metrics: m}
		if rtc != nil {
			deps.WebRTC = rtc
		}
		mon := webmonitor.NewServer(cfg.Monitor.Config, deps)
		sinks = append(sinks, mon)

		httpServer := &http.Server{Addr: cfg.Monitor.Addr, Handler: mon.Handler()}
		go func() {
			logger.Info("Main", "Web monitor listening on %s", cfg.Monitor.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Main", "Web monitor error: %v", err)
			}
		}()
		// Streaming clients are disconnected first so Shutdown does not wait on them.
		closers = append(closers, mon.Close, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return errors.Wrap(httpServer.Shutdown(sctx), "shutdown web monitor")
		})
	}

	var display pipeline.Display
	if !cfg.Pipeline.Headless {
		display = camera.NewWindow(cfg.Pipeline.WindowTitle)
	}

	// The ledger closes last, after everything that may still read it.
	closers = append(closers, closeLedger)

	loop := pipeline.NewLoop(pipeline.LoopConfig{
		Source:    src,
		Detector:  det,
		Processor: processor,
		Display:   display,
		Sinks:     sinks,
		Metrics:   m,
		Closers:   closers,
	})
	return loop.Run(ctx)
}

// openSource returns the frame source, the detector for it and, when the
// detector owns resources separate from the source, its closer.
func openSource(cfg config.Config) (pipeline.Source, pipeline.Detector, func() error, error) {
	switch cfg.Source {
	case config.SourceReplay:
		var opts []replay.Option
		if cfg.Replay.Pace > 0 {
			opts = append(opts, replay.WithPace(cfg.Replay.Pace))
		}
		if cfg.Replay.BlankFrames || !cfg.Pipeline.Headless {
			opts = append(opts, replay.WithBlankFrames())
		}
		p, err := replay.Open(cfg.Replay.Path, opts...)
		if err != nil {
			return nil, nil, nil, err
		}
		return p, p, nil, nil

	case config.SourceSHM:
		r, err := shm.Open(cfg.SHM)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "open shared memory")
		}
		return r, r, nil, nil

	default:
		cam, err := camera.Open(cfg.Camera.Device)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "open camera")
		}
		var post []detect.Postprocessor
		if cfg.Detector.MinArea > 0 {
			post = append(post, detect.NewAreaFilter(cfg.Detector.MinArea))
		}
		if len(cfg.Detector.Labels) > 0 {
			post = append(post, detect.NewLabelFilter(cfg.Detector.Labels))
		}
		d, err := yolo.New(yolo.Config{
			ModelPath:      cfg.Detector.Model,
			LabelsPath:     cfg.Detector.Names,
			InputSize:      cfg.Detector.InputSize,
			ScoreThreshold: cfg.Detector.ScoreThreshold,
			NMSThreshold:   cfg.Detector.NMSThreshold,
		}, post...)
		if err != nil {
			cam.Close()
			return nil, nil, nil, errors.Wrap(err, "load detector")
		}
		logger.Info("Main", "Camera %s (height %d), model %s with %d labels",
			cfg.Camera.Device, cam.Height(), cfg.Detector.Model, len(d.Labels()))
		return cam, d, d.Close, nil
	}
}

// seedQuantities publishes the current ledger to the quantity gauge.
func seedQuantities(ctx context.Context, ledger inventory.Ledger, m *metrics.Metrics) {
	items, err := ledger.List(ctx)
	if err != nil {
		logger.Warn("Main", "Could not list inventory: %v", err)
		return
	}
	for _, it := range items {
		m.SetQuantity(it.Name, it.Quantity)
	}
	logger.Info("Main", "Ledger holds %d items", len(items))
	logSnapshot(items)
}

func logSnapshot(items []types.InventoryRecord) {
	for _, it := range items {
		logger.Debug("Main", "  %s: %d", it.Name, it.Quantity)
	}
}
