// Package ingest wires together the frame codec, the reading store, the
// event dispatcher, and the display sink into the single decode worker that
// turns raw radio bytes into persisted readings and queued events.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/spillwave/sensorgateway/internal/dispatch"
	"github.com/spillwave/sensorgateway/internal/frame"
	"github.com/spillwave/sensorgateway/internal/gwlog"
)

// QueueDepth is the capacity of the bounded raw-frame FIFO from producer
// (radio ISR) to decode worker.
const QueueDepth = 64

// ReadingWriter is the persistence dependency of the decode worker. It is
// satisfied by *readings.Store.
type ReadingWriter interface {
	WriteReadings(ctx context.Context, ts time.Time, readings []frame.SensorSlot) error
}

// EventQueue is the event-dispatch dependency of the decode worker. It is
// satisfied by *dispatch.Dispatcher.
type EventQueue interface {
	Enqueue(ev dispatch.Event)
}

// LineQueue is the display dependency of the decode worker. It is satisfied
// by *display.Sink.
type LineQueue interface {
	Enqueue(line string)
}

// BadFrameRecorder optionally captures rejected frames for later
// troubleshooting. It is satisfied by *diag.Recorder; nil disables capture.
type BadFrameRecorder interface {
	CaptureBadFrame(raw []byte, reason string)
}

// lastSeenEntry is one node's dedup/gap-detection memory.
type lastSeenEntry struct {
	lastSerial    uint16
	lastTimestamp time.Time
}

// Pipeline bundles the ingestion pipeline's mutable state: the raw-frame
// queue, per-node LastSeen memory, and handles to the downstream
// collaborators. It is owned by the supervisor and passed by reference to
// the worker goroutine at startup, rather than living as package-level
// globals. Depending on narrow interfaces rather than concrete store/sink
// types keeps the decode worker testable without a real database or OLED.
type Pipeline struct {
	store      ReadingWriter
	dispatcher EventQueue
	display    LineQueue
	recorder   BadFrameRecorder
	logger     *gwlog.Logger

	raw     chan []byte
	dropped int

	// lastSeen is touched only by the worker goroutine running Run.
	lastSeen map[uint8]lastSeenEntry
}

// New builds a Pipeline. None of store, dispatcher, or sink may be nil.
func New(store ReadingWriter, dispatcher EventQueue, sink LineQueue, logger *gwlog.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		dispatcher: dispatcher,
		display:    sink,
		logger:     logger,
		raw:        make(chan []byte, QueueDepth),
		lastSeen:   make(map[uint8]lastSeenEntry),
	}
}

// SetRecorder attaches a bad-frame recorder. Optional; nil is a valid state
// (the zero value) and disables capture.
func (p *Pipeline) SetRecorder(r BadFrameRecorder) {
	p.recorder = r
}

// EnqueueRaw pushes one raw, still-CRC'd frame onto the bounded FIFO. On
// overflow the oldest queued frame is dropped to make room, since radio
// throughput briefly exceeding decode throughput is expected and recent
// frames are more valuable than old ones.
func (p *Pipeline) EnqueueRaw(raw []byte) {
	for {
		select {
		case p.raw <- raw:
			return
		default:
		}
		select {
		case <-p.raw:
			p.dropped++
			p.logger.Printf("raw frame queue full, dropped oldest frame (total dropped: %d)", p.dropped)
		default:
			return
		}
	}
}

// Run pops one raw frame at a time and decodes it until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-p.raw:
			p.decode(ctx, raw)
		}
	}
}

// Drain processes any frames still queued, without blocking for new ones.
// Called during shutdown after the radio ISR has been disarmed.
func (p *Pipeline) Drain(ctx context.Context) {
	for {
		select {
		case raw := <-p.raw:
			p.decode(ctx, raw)
		default:
			return
		}
	}
}

func (p *Pipeline) decode(ctx context.Context, raw []byte) {
	receiveTime := time.Now().UTC()

	stripped, err := frame.CheckAndStrip(raw)
	if err != nil {
		p.logger.Printf("warning: %v", err)
		p.display.Enqueue("*Bad data packet Rx*")
		p.captureBadFrame(raw, err)
		return
	}

	f, err := frame.Unpack(stripped)
	if err != nil {
		p.logger.Printf("warning: %v", err)
		p.display.Enqueue("*Bad data packet Rx*")
		p.captureBadFrame(raw, err)
		return
	}

	if !p.trackSerial(f, receiveTime) {
		return
	}

	readingsSlots := f.Readings()
	if err := p.store.WriteReadings(ctx, receiveTime, readingsSlots); err != nil {
		p.logger.Printf("critical: %v", err)
		return
	}

	if f.StatusRegister != 0 {
		p.dispatcher.Enqueue(dispatch.Event{NodeID: f.NodeID, StatusRegister: f.StatusRegister})
	}
}

func (p *Pipeline) captureBadFrame(raw []byte, cause error) {
	if p.recorder == nil {
		return
	}
	p.recorder.CaptureBadFrame(raw, cause.Error())
}

// trackSerial implements the per-node LastSeen state machine. It returns
// false if the frame is a duplicate and processing should stop.
func (p *Pipeline) trackSerial(f *frame.Frame, receiveTime time.Time) bool {
	prev, seen := p.lastSeen[f.NodeID]
	if !seen {
		p.logger.Printf("First data packet from node 0x%02x", f.NodeID)
		p.display.Enqueue(fmt.Sprintf("First data node 0x%02x", f.NodeID))
		p.display.Enqueue(fmt.Sprintf("Rx 0x%02x sn 0x%04x", f.NodeID, f.PacketSerial))
		p.lastSeen[f.NodeID] = lastSeenEntry{lastSerial: f.PacketSerial, lastTimestamp: receiveTime}
		return true
	}

	if f.PacketSerial == prev.lastSerial {
		return false
	}

	if f.PacketSerial != prev.lastSerial+1 {
		p.logger.Printf("warning: Data packet missing from node 0x%02x", f.NodeID)
		p.display.Enqueue(fmt.Sprintf("*Data missing from node 0x%02x*", f.NodeID))
	}

	p.lastSeen[f.NodeID] = lastSeenEntry{lastSerial: f.PacketSerial, lastTimestamp: receiveTime}
	p.display.Enqueue(fmt.Sprintf("Rx 0x%02x sn 0x%04x", f.NodeID, f.PacketSerial))
	return true
}

// LastSerial returns the last accepted serial for a node, for diagnostics.
func (p *Pipeline) LastSerial(nodeID uint8) (uint16, bool) {
	e, ok := p.lastSeen[nodeID]
	return e.lastSerial, ok
}

// Snapshot returns a copy of the current LastSeen table, for diagnostics.
func (p *Pipeline) Snapshot() map[uint8]uint16 {
	out := make(map[uint8]uint16, len(p.lastSeen))
	for k, v := range p.lastSeen {
		out[k] = v.lastSerial
	}
	return out
}
