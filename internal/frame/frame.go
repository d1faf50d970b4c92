// Package frame implements the on-air frame codec: CRC-16/CCITT-FALSE
// compute/verify and the fixed 58-byte plaintext layout. It is pure and
// stateless; bit-exact interoperability with the field nodes' own encoder
// is the whole point.
package frame

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spillwave/sensorgateway/internal/gwerr"
)

const (
	// PadSensorID marks a sensor slot as padding; it never produces a
	// SensorReading.
	PadSensorID = 0xFF

	// NumSensorSlots is the number of (id, float32) pairs carried per frame.
	NumSensorSlots = 10

	// PlaintextLen is the length of the plaintext struct, before the CRC.
	PlaintextLen = 58

	// WireLen is PlaintextLen plus the 2-byte trailing CRC.
	WireLen = PlaintextLen + 2

	sensorSlotsOffset = 8
)

// SensorSlot is one (sensor_id, value) pair carried in a frame. A slot with
// ID == PadSensorID is padding and must be filtered before persistence.
type SensorSlot struct {
	ID    uint8
	Value float32
}

// Frame is the decoded, strongly-typed representation of one received
// packet. Padding slots are still present in Slots; callers that want only
// real readings should call Readings().
type Frame struct {
	NodeID         uint8
	NodeIDEcho     uint8
	PacketSerial   uint16
	StatusRegister uint16
	Slots          [NumSensorSlots]SensorSlot
}

// Readings returns the subset of Slots that are not padding.
func (f *Frame) Readings() []SensorSlot {
	out := make([]SensorSlot, 0, NumSensorSlots)
	for _, s := range f.Slots {
		if s.ID != PadSensorID {
			out = append(out, s)
		}
	}
	return out
}

// Pack encodes f into the fixed 58-byte plaintext layout, big-endian
// throughout. Reserved bytes at offset 6-7 are zeroed.
func (f *Frame) Pack() []byte {
	buf := make([]byte, PlaintextLen)
	buf[0] = f.NodeID
	buf[1] = f.NodeIDEcho
	binary.BigEndian.PutUint16(buf[2:4], f.PacketSerial)
	binary.BigEndian.PutUint16(buf[4:6], f.StatusRegister)
	// buf[6:8] reserved, left zero.
	for i, slot := range f.Slots {
		off := sensorSlotsOffset + i*5
		buf[off] = slot.ID
		binary.BigEndian.PutUint32(buf[off+1:off+5], math.Float32bits(slot.Value))
	}
	return buf
}

// Unpack decodes a stripped (CRC already removed) plaintext buffer into a
// Frame. It fails with gwerr.ErrBadFrame on a length mismatch.
func Unpack(stripped []byte) (*Frame, error) {
	if len(stripped) != PlaintextLen {
		return nil, errBadFrame("unpack: expected %d bytes, got %d", PlaintextLen, len(stripped))
	}
	f := &Frame{
		NodeID:         stripped[0],
		NodeIDEcho:     stripped[1],
		PacketSerial:   binary.BigEndian.Uint16(stripped[2:4]),
		StatusRegister: binary.BigEndian.Uint16(stripped[4:6]),
	}
	for i := 0; i < NumSensorSlots; i++ {
		off := sensorSlotsOffset + i*5
		f.Slots[i] = SensorSlot{
			ID:    stripped[off],
			Value: math.Float32frombits(binary.BigEndian.Uint32(stripped[off+1 : off+5])),
		}
	}
	return f, nil
}

func errBadFrame(format string, args ...any) error {
	return fmt.Errorf("%w: %s", gwerr.ErrBadFrame, fmt.Sprintf(format, args...))
}
