package ingest

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spillwave/sensorgateway/internal/dispatch"
	"github.com/spillwave/sensorgateway/internal/frame"
	"github.com/spillwave/sensorgateway/internal/gwlog"
)

type fakeStore struct {
	mu    sync.Mutex
	calls [][]frame.SensorSlot
}

func (f *fakeStore) WriteReadings(_ context.Context, _ time.Time, readings []frame.SensorSlot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]frame.SensorSlot, len(readings))
	copy(cp, readings)
	f.calls = append(f.calls, cp)
	return nil
}

func (f *fakeStore) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += len(c)
	}
	return n
}

type fakeEvents struct {
	mu   sync.Mutex
	evts []dispatch.Event
}

func (f *fakeEvents) Enqueue(ev dispatch.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evts = append(f.evts, ev)
}

type fakeLines struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeLines) Enqueue(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
}

func newTestPipeline() (*Pipeline, *fakeStore, *fakeEvents, *fakeLines) {
	store := &fakeStore{}
	events := &fakeEvents{}
	lines := &fakeLines{}
	logger := gwlog.New("test: ", os.Stderr, gwlog.LevelDebug, nil, gwlog.LevelDebug, 0)
	return New(store, events, lines, logger), store, events, lines
}

func referenceFrame() *frame.Frame {
	f := &frame.Frame{
		NodeID:         0x0A,
		NodeIDEcho:     0x0A,
		PacketSerial:   0x0A0A,
		StatusRegister: 0xF0F0,
	}
	for i := range f.Slots {
		f.Slots[i] = frame.SensorSlot{ID: frame.PadSensorID, Value: 0}
	}
	for i := 0; i < 9; i++ {
		f.Slots[i] = frame.SensorSlot{ID: uint8(i), Value: float32(i) + 0.5}
	}
	return f
}

func TestHappyPathPersistsNineReadings(t *testing.T) {
	p, store, _, _ := newTestPipeline()
	raw := frame.AppendCRC(referenceFrame().Pack())
	p.decode(context.Background(), raw)
	if got := store.rowCount(); got != 9 {
		t.Fatalf("rowCount = %d, want 9", got)
	}
}

func TestDuplicateFrameSuppressed(t *testing.T) {
	p, store, _, _ := newTestPipeline()
	raw := frame.AppendCRC(referenceFrame().Pack())
	p.decode(context.Background(), raw)
	p.decode(context.Background(), raw)
	if got := store.rowCount(); got != 9 {
		t.Fatalf("rowCount after duplicate = %d, want 9", got)
	}
}

func TestGapDetectionStillPersists(t *testing.T) {
	p, store, _, lines := newTestPipeline()

	f1 := &frame.Frame{NodeID: 0x01, PacketSerial: 0x0101}
	f1.Slots[0] = frame.SensorSlot{ID: 0x00, Value: 1.0}
	for i := 1; i < frame.NumSensorSlots; i++ {
		f1.Slots[i] = frame.SensorSlot{ID: frame.PadSensorID}
	}
	p.decode(context.Background(), frame.AppendCRC(f1.Pack()))

	f2 := &frame.Frame{NodeID: 0x01, PacketSerial: 0x1012}
	f2.Slots[0] = frame.SensorSlot{ID: 0x00, Value: 2.0}
	for i := 1; i < frame.NumSensorSlots; i++ {
		f2.Slots[i] = frame.SensorSlot{ID: frame.PadSensorID}
	}
	p.decode(context.Background(), frame.AppendCRC(f2.Pack()))

	if got := store.rowCount(); got != 2 {
		t.Fatalf("rowCount = %d, want 2", got)
	}
	found := false
	for _, l := range lines.lines {
		if l == "*Data missing from node 0x01*" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a gap warning display line, got %v", lines.lines)
	}
}

func TestSerialWraparoundNoGapWarning(t *testing.T) {
	p, store, _, lines := newTestPipeline()
	serials := []uint16{0xFFFE, 0xFFFF, 0x0000}
	for _, s := range serials {
		f := &frame.Frame{NodeID: 0x02, PacketSerial: s}
		f.Slots[0] = frame.SensorSlot{ID: 0x00, Value: 1.0}
		for i := 1; i < frame.NumSensorSlots; i++ {
			f.Slots[i] = frame.SensorSlot{ID: frame.PadSensorID}
		}
		p.decode(context.Background(), frame.AppendCRC(f.Pack()))
	}
	if got := store.rowCount(); got != 3 {
		t.Fatalf("rowCount = %d, want 3", got)
	}
	for _, l := range lines.lines {
		if l == "*Data missing from node 0x02*" {
			t.Fatalf("unexpected gap warning across serial wraparound: %v", lines.lines)
		}
	}
}

func TestBadCRCProducesNoRowsAndWarningLine(t *testing.T) {
	p, store, _, lines := newTestPipeline()
	raw := frame.AppendCRC(referenceFrame().Pack())
	raw[0] ^= 0xFF
	p.decode(context.Background(), raw)
	if got := store.rowCount(); got != 0 {
		t.Fatalf("rowCount = %d, want 0", got)
	}
	if len(lines.lines) != 1 || lines.lines[0] != "*Bad data packet Rx*" {
		t.Fatalf("expected exactly one bad-packet display line, got %v", lines.lines)
	}
}

func TestEventWebhookEnqueuedOnNonZeroRegister(t *testing.T) {
	p, _, events, _ := newTestPipeline()
	f := &frame.Frame{NodeID: 0x05, PacketSerial: 1, StatusRegister: 0x0001}
	for i := range f.Slots {
		f.Slots[i] = frame.SensorSlot{ID: frame.PadSensorID}
	}
	p.decode(context.Background(), frame.AppendCRC(f.Pack()))

	if len(events.evts) != 1 {
		t.Fatalf("expected exactly 1 queued event, got %d", len(events.evts))
	}
	if events.evts[0].NodeID != 0x05 || events.evts[0].StatusRegister != 0x0001 {
		t.Fatalf("unexpected event: %+v", events.evts[0])
	}
}

func TestEnqueueRawDropsOldestOnFull(t *testing.T) {
	p, _, _, _ := newTestPipeline()
	for i := 0; i < QueueDepth+5; i++ {
		p.EnqueueRaw([]byte{byte(i)})
	}
	if p.dropped == 0 {
		t.Fatal("expected some raw frames to be dropped on overflow")
	}
	if len(p.raw) != QueueDepth {
		t.Fatalf("queue len = %d, want %d", len(p.raw), QueueDepth)
	}
}

func TestRunProcessesUntilCanceled(t *testing.T) {
	p, store, _, _ := newTestPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	p.EnqueueRaw(frame.AppendCRC(referenceFrame().Pack()))
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	if got := store.rowCount(); got != 9 {
		t.Fatalf("rowCount = %d, want 9", got)
	}
}
