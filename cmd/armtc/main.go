// Command armtc runs the transcode orchestrator: it loads configuration,
// probes available hardware encoders, recovers any in-flight jobs from a
// prior run, and serves the HTTP API while the Worker Loop drains the
// job queue in the background.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/armtc/transcoder/internal/api"
	"github.com/armtc/transcoder/internal/backend"
	"github.com/armtc/transcoder/internal/catalog"
	"github.com/armtc/transcoder/internal/config"
	"github.com/armtc/transcoder/internal/ffmpeg"
	"github.com/armtc/transcoder/internal/hwprobe"
	"github.com/armtc/transcoder/internal/ingest"
	"github.com/armtc/transcoder/internal/logger"
	"github.com/armtc/transcoder/internal/pipeline"
	"github.com/armtc/transcoder/internal/resolver"
	"github.com/armtc/transcoder/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config/armtc.yaml)")
	port := flag.Int("port", 8080, "Port to listen on")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("ARMTC_CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/armtc.yaml"
		}
	}

	cfg := config.DefaultConfig()
	cfg.LoadEnv()
	if err := cfg.LoadFile(cfgPath); err != nil {
		log.Printf("warning: could not load config from %s: %v", cfgPath, err)
	}

	logger.Init(cfg.LogLevel)

	cat, err := catalog.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open catalog at %s: %v", cfg.DBPath, err)
	}
	defer cat.Close()

	overrides, err := cat.GetAllOverrides()
	if err != nil {
		log.Fatalf("failed to load config overrides: %v", err)
	}
	overrideList := make([]config.Override, len(overrides))
	for i, o := range overrides {
		overrideList[i] = config.Override{Key: o.Key, Value: o.Value}
	}
	if err := cfg.ApplyOverrides(overrideList); err != nil {
		log.Fatalf("failed to apply config overrides: %v", err)
	}

	fmt.Println("armtc - single-host transcode orchestrator")
	fmt.Printf("  raw path:       %s\n", cfg.RawPath)
	fmt.Printf("  completed path: %s\n", cfg.CompletedPath)
	fmt.Printf("  work path:      %s\n", cfg.WorkPath)
	fmt.Printf("  catalog:        %s\n", cfg.DBPath)
	fmt.Println()

	binaries := hwprobe.Binaries{}
	caps := hwprobe.Probe(binaries)
	logger.Info("hwprobe: capability scan complete",
		"handbrake_nvenc", caps.HandbrakeNVENC,
		"ffmpeg_hevc_nvenc", caps.FFmpegHEVCNVENC,
		"ffmpeg_hevc_qsv", caps.FFmpegHEVCQSV,
		"ffmpeg_hevc_vaapi", caps.FFmpegHEVCVAAPI,
		"ffmpeg_hevc_amf", caps.FFmpegHEVCAMF,
		"device_present", caps.HWDevicePresent,
	)

	family := backend.BestAvailableFamily(caps)
	backend.ApplyGPUDefaults(cfg, family)
	logger.Info("backend: GPU-aware defaults applied", "family", family)

	// Recovery must complete before the HTTP surface starts serving, so a
	// client never observes a PROCESSING job left behind by a prior crash
	// (spec §5 ordering guarantee).
	n, err := cat.ResetInFlight()
	if err != nil {
		log.Fatalf("failed to reset in-flight jobs: %v", err)
	}
	if n > 0 {
		logger.Info("startup: demoted in-flight jobs back to pending", "count", n)
	}

	prober := ffmpeg.NewProber("ffprobe")
	res := resolver.New(cfg.RawPath)

	pl := &pipeline.Pipeline{
		Catalog:  cat,
		Resolver: res,
		Prober:   prober,
		Config:   cfg,
		Caps:     caps,
		Binaries: binaries,
	}

	loop := worker.New(cat, pl, 256, worker.DefaultGracefulShutdown)
	if err := loop.Recover(); err != nil {
		log.Fatalf("failed to recover worker queue: %v", err)
	}

	ig := ingest.New(cat, cfg.RawPath)
	handler := api.NewHandler(cat, cfg, loop, ig, caps)
	router := api.NewRouter(handler)

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nshutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("main: HTTP server did not shut down cleanly", "error", err)
		}
	}()

	fmt.Printf("listening on port %d\n", *port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	// Wait for the Worker Loop to finish (or force-cancel) its in-flight
	// job within its graceful shutdown timeout.
	<-loopDone
	fmt.Println("goodbye")
}
