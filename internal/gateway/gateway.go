// Package gateway supervises the ingestion pipeline's lifecycle: opening
// stores and the radio in dependency order at startup, and tearing them
// down in reverse order so in-flight data is never silently lost.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/spillwave/sensorgateway/internal/config"
	"github.com/spillwave/sensorgateway/internal/diag"
	"github.com/spillwave/sensorgateway/internal/display"
	"github.com/spillwave/sensorgateway/internal/dispatch"
	"github.com/spillwave/sensorgateway/internal/gwerr"
	"github.com/spillwave/sensorgateway/internal/gwlog"
	"github.com/spillwave/sensorgateway/internal/ingest"
	"github.com/spillwave/sensorgateway/internal/radio"
	"github.com/spillwave/sensorgateway/internal/readings"
	"github.com/spillwave/sensorgateway/internal/registry"

	"periph.io/x/conn/v3/i2c/i2creg"
)

// Gateway owns every long-lived component's lifecycle.
type Gateway struct {
	cfg    *config.Config
	logger *gwlog.Logger

	registryStore *registry.Store
	readingStore  *readings.Store
	dispatcher    *dispatch.Dispatcher
	displaySink   *display.Sink
	pipeline      *ingest.Pipeline
	recorder      *diag.Recorder
	radio         *radio.Radio

	wg sync.WaitGroup
}

// New constructs a Gateway bound to cfg. Nothing is opened yet; call Start.
// logger is expected to already gate on cfg.LogLevelFile/cfg.LogLevelConsole
// (see cmd/sensorgatewayd, which builds it from those fields).
func New(cfg *config.Config, logger *gwlog.Logger) *Gateway {
	return &Gateway{cfg: cfg, logger: logger}
}

// Start brings up every component in the order each depends on the last:
// stores, then decode worker, then display sink, then event dispatcher,
// then the radio link, then the interrupt-driven receive loop.
func (g *Gateway) Start(ctx context.Context) error {
	var err error
	g.registryStore, err = registry.Open(ctx, g.cfg.DBURL)
	if err != nil {
		return fmt.Errorf("open registry store: %w", err)
	}
	g.readingStore, err = readings.Open(ctx, g.cfg.DBURL)
	if err != nil {
		return fmt.Errorf("open reading store: %w", err)
	}

	g.dispatcher = dispatch.New(g.cfg.EventActions, g.readingStore, g.componentLogger("dispatch"))

	bus, err := i2creg.Open("")
	if err != nil {
		g.componentLogger("display").Printf("i2c bus unavailable: %v", err)
	}
	g.displaySink = display.Open(bus, g.cfg.DisplayWidth, g.cfg.DisplayHeight, g.componentLogger("display"))
	g.pipeline = ingest.New(g.readingStore, g.dispatcher, g.displaySink, g.componentLogger("ingest"))
	g.recorder = diag.NewRecorder(g.pipeline)
	g.pipeline.SetRecorder(g.recorder)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.pipeline.Run(ctx)
	}()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.displaySink.Run(ctx)
	}()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.dispatcher.Run(ctx)
	}()

	g.radio, err = radio.Open(radio.Config{
		SPIBus:        g.cfg.RadioSPIBus,
		IRQPin:        g.cfg.RadioIRQPin,
		CSPin:         g.cfg.RadioCSPin,
		ResetPin:      g.cfg.RadioResetPin,
		FrequencyMHz:  g.cfg.RadioFrequencyMHz,
		EncryptionKey: g.cfg.EncryptionKey,
	})
	if err != nil {
		return err
	}

	g.displaySink.Enqueue("Radio initialized OK")

	g.wg.Add(1)
	go g.receiveLoop(ctx)

	return nil
}

// receiveLoop plays the role of the "payload ready" interrupt handler: it
// blocks on the radio's edge wait, decrypts whatever arrived, and hands it
// to the pipeline. It never touches storage or HTTP directly.
func (g *Gateway) receiveLoop(ctx context.Context) {
	defer g.wg.Done()
	for {
		raw, ok, err := g.radio.WaitForFrame()
		if !ok {
			return
		}
		if err != nil {
			g.logger.Printf("radio receive error: %v", err)
			continue
		}
		plaintext, err := g.radio.Decrypt(g.cfg.EncryptionKey, raw)
		if err != nil {
			g.logger.Printf("decrypt error: %v", err)
			continue
		}
		g.pipeline.EnqueueRaw(plaintext)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Shutdown unregisters the radio interrupt, drains the queues so nothing
// already received is lost, shuts the display down gracefully, and closes
// the stores. Start's ctx should already be canceled before calling this so
// the worker goroutines have stopped pulling new work.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.radio != nil {
		if err := g.radio.Close(); err != nil {
			g.logger.Printf("radio close error: %v", err)
		}
	}
	g.wg.Wait()

	if g.pipeline != nil {
		g.pipeline.Drain(ctx)
	}
	if g.dispatcher != nil {
		g.dispatcher.Drain(ctx)
	}
	if g.displaySink != nil {
		g.displaySink.Shutdown(ctx)
	}

	var errs []error
	if g.readingStore != nil {
		if err := g.readingStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if g.registryStore != nil {
		if err := g.registryStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", gwerr.ErrStorageError, errs)
	}
	return nil
}

// Diagnostics returns the bad-frame/LastSeen recorder for CLI or signal-
// triggered dumps.
func (g *Gateway) Diagnostics() *diag.Recorder {
	return g.recorder
}

func (g *Gateway) componentLogger(name string) *gwlog.Logger {
	return g.logger.Named(name)
}
