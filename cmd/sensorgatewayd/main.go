// Command sensorgatewayd is the radio-listening daemon: it opens the
// stores, the radio link, and the ancillary worker threads, then sleeps
// until asked to shut down.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spillwave/sensorgateway/internal/config"
	"github.com/spillwave/sensorgateway/internal/gateway"
	"github.com/spillwave/sensorgateway/internal/gwlog"
)

// logFilePath is where file-level log lines go when the file destination is
// reachable, mirroring original_source/datarecorder/main.py's
// RotatingFileHandler('/tmp/datarecorder.log', ...) without the rotation
// (no example repo in the pack rotates logs).
const logFilePath = "/tmp/sensorgateway.log"

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := buildLogger(cfg)
	logger.Printf("starting sensorgatewayd")
	logger.Printf("db: %s, radio: %s @ %.1fMHz, display: %dx%d",
		cfg.DBURL, cfg.RadioSPIBus, cfg.RadioFrequencyMHz, cfg.DisplayWidth, cfg.DisplayHeight)

	gw := gateway.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	if err := gw.Start(ctx); err != nil {
		logger.Fatalf("startup failed: %v", err)
	}
	logger.Printf("receive mode active")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	for sig := range sigCh {
		if sig == syscall.SIGUSR1 {
			dumpDiagnostics(gw, logger)
			continue
		}
		break
	}

	logger.Printf("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
	logger.Printf("shutdown complete")
}

// buildLogger resolves cfg.LogLevelConsole/cfg.LogLevelFile into a gwlog.Logger
// gating stderr and logFilePath independently. A file that cannot be opened
// disables the file destination rather than failing startup, the same
// non-fatal pattern display.Open uses for a missing OLED.
func buildLogger(cfg *config.Config) *gwlog.Logger {
	consoleLevel, err := gwlog.ParseLevel(cfg.LogLevelConsole)
	if err != nil {
		log.Fatalf("log-level-console: %v", err)
	}
	fileLevel, err := gwlog.ParseLevel(cfg.LogLevelFile)
	if err != nil {
		log.Fatalf("log-level-file: %v", err)
	}

	logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("log file %s unavailable, file-level logging disabled: %v", logFilePath, err)
		return gwlog.New("", os.Stderr, consoleLevel, nil, fileLevel, log.Ldate|log.Ltime|log.Lmicroseconds)
	}
	return gwlog.New("", os.Stderr, consoleLevel, logFile, fileLevel, log.Ldate|log.Ltime|log.Lmicroseconds)
}

func dumpDiagnostics(gw *gateway.Gateway, logger *gwlog.Logger) {
	data, err := gw.Diagnostics().Dump()
	if err != nil {
		logger.Printf("diagnostics dump failed: %v", err)
		return
	}
	path := "/tmp/sensorgateway-diag.cbor"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Printf("diagnostics write failed: %v", err)
		return
	}
	logger.Printf("wrote diagnostics snapshot to %s", path)
}
