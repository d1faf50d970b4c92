// Package diag captures bad-frame samples and on-demand LastSeen snapshots
// for offline troubleshooting, encoded as CBOR so the same on-disk format
// can be read back by a small tool without reimplementing a parser.
package diag

import (
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// MaxBadFrames bounds the in-memory bad-frame ring; older captures are
// dropped once full.
const MaxBadFrames = 32

// BadFrameSample is one rejected frame, captured verbatim for replay.
type BadFrameSample struct {
	CapturedAt time.Time `cbor:"captured_at"`
	Raw        []byte    `cbor:"raw"`
	Reason     string    `cbor:"reason"`
}

// Snapshot is a point-in-time dump of the gateway's LastSeen table plus
// recent bad-frame samples, suitable for writing to disk.
type Snapshot struct {
	TakenAt   time.Time        `cbor:"taken_at"`
	LastSeen  map[uint8]uint16 `cbor:"last_seen"`
	BadFrames []BadFrameSample `cbor:"bad_frames"`
}

// LastSeenSource is the subset of ingest.Pipeline that diagnostics needs.
type LastSeenSource interface {
	Snapshot() map[uint8]uint16
}

// Recorder accumulates bad-frame samples and produces Snapshots on demand.
type Recorder struct {
	mu     sync.Mutex
	frames []BadFrameSample
	source LastSeenSource
}

// NewRecorder builds a Recorder that reads LastSeen state from source.
func NewRecorder(source LastSeenSource) *Recorder {
	return &Recorder{source: source}
}

// CaptureBadFrame records a rejected frame, dropping the oldest sample once
// MaxBadFrames is reached.
func (r *Recorder) CaptureBadFrame(raw []byte, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := make([]byte, len(raw))
	copy(cp, raw)
	sample := BadFrameSample{CapturedAt: time.Now().UTC(), Raw: cp, Reason: reason}

	r.frames = append(r.frames, sample)
	if len(r.frames) > MaxBadFrames {
		r.frames = r.frames[len(r.frames)-MaxBadFrames:]
	}
}

// Snapshot builds a CBOR-encodable Snapshot of the current state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	frames := make([]BadFrameSample, len(r.frames))
	copy(frames, r.frames)
	r.mu.Unlock()

	return Snapshot{
		TakenAt:   time.Now().UTC(),
		LastSeen:  r.source.Snapshot(),
		BadFrames: frames,
	}
}

// Dump CBOR-encodes the current snapshot.
func (r *Recorder) Dump() ([]byte, error) {
	return cbor.Marshal(r.Snapshot())
}

// DecodeSnapshot reverses Dump, for tooling that reads a captured file back.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
