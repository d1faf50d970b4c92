// Package radio drives the sub-GHz packet radio: SPI for the data path, one
// GPIO line for "payload ready", and AES-128 decryption of the fixed-size
// frame.
package radio

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/spillwave/sensorgateway/internal/frame"
	"github.com/spillwave/sensorgateway/internal/gwerr"
)

// Config names the hardware resources and deployment secret for one radio.
type Config struct {
	SPIBus        string // e.g. "/dev/spidev0.0"
	IRQPin        string // GPIO line for "payload ready"
	CSPin         string // SPI chip-select
	ResetPin      string // radio reset line
	FrequencyMHz  float64
	EncryptionKey [16]byte
}

// Radio is the gateway's handle to the receive-only radio link. The ISR
// (the goroutine calling WaitForFrame) and the supervisor (Open/Close) touch
// the device handle; Close halts the IRQ line so the edge wait ends.
type Radio struct {
	port   spi.Conn
	irq    gpio.PinIn
	cs     gpio.PinOut
	reset  gpio.PinOut
	closed chan struct{}
}

// Open initializes the host drivers, opens the SPI bus and GPIO lines,
// pulses reset, tunes the carrier, and checks that the encryption key builds
// an AES-128 cipher. The key is not written to the chip; frames are
// decrypted in software by Decrypt. Failure here is gwerr.ErrHardwareInit,
// which is fatal at startup.
func Open(cfg Config) (*Radio, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: host init: %v", gwerr.ErrHardwareInit, err)
	}

	p, err := spireg.Open(cfg.SPIBus)
	if err != nil {
		return nil, fmt.Errorf("%w: open spi bus %s: %v", gwerr.ErrHardwareInit, cfg.SPIBus, err)
	}
	// The bus clock is a fixed electrical parameter of the link (well under
	// the radio's rated max SPI speed); it is unrelated to cfg.FrequencyMHz,
	// which is the RF carrier the chip transmits/receives on. periph's
	// spi.Conn has no notion of "carrier frequency" at all — that's tuned by
	// writing the chip's FRF registers over this same connection once it is
	// open, the way every SX1231/RFM69 driver does it (see setFrequency).
	conn, err := p.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: configure spi: %v", gwerr.ErrHardwareInit, err)
	}

	irq := gpioreg.ByName(cfg.IRQPin)
	if irq == nil {
		return nil, fmt.Errorf("%w: irq pin %s not found", gwerr.ErrHardwareInit, cfg.IRQPin)
	}
	if err := irq.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("%w: configure irq pin: %v", gwerr.ErrHardwareInit, err)
	}

	// The radio's chip-select is wired as an ordinary GPIO the driver drives
	// directly, not the SPI controller's hardware CS line, mirroring how the
	// field node's own radio driver takes a bare clock/data busio.SPI plus a
	// separate cs_pin DigitalInOut rather than letting the bus own chip
	// select.
	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("%w: cs pin %s not found", gwerr.ErrHardwareInit, cfg.CSPin)
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("%w: idle cs pin: %v", gwerr.ErrHardwareInit, err)
	}

	reset := gpioreg.ByName(cfg.ResetPin)
	if reset == nil {
		return nil, fmt.Errorf("%w: reset pin %s not found", gwerr.ErrHardwareInit, cfg.ResetPin)
	}
	if err := pulseReset(reset); err != nil {
		return nil, fmt.Errorf("%w: %v", gwerr.ErrHardwareInit, err)
	}

	if err := setFrequency(conn, cs, cfg.FrequencyMHz); err != nil {
		return nil, fmt.Errorf("%w: %v", gwerr.ErrHardwareInit, err)
	}

	if _, err := aes.NewCipher(cfg.EncryptionKey[:]); err != nil {
		return nil, fmt.Errorf("%w: install encryption key: %v", gwerr.ErrHardwareInit, err)
	}

	return &Radio{
		port:   conn,
		irq:    irq,
		cs:     cs,
		reset:  reset,
		closed: make(chan struct{}),
	}, nil
}

func pulseReset(pin gpio.PinOut) error {
	if err := pin.Out(gpio.High); err != nil {
		return fmt.Errorf("reset high: %w", err)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("reset low: %w", err)
	}
	return nil
}

// Register addresses on the SX1231/RFM69 radio core, write access signaled
// by setting the top address bit.
const (
	regFrfMsb   = 0x07
	regWriteBit = 0x80
)

// setFrequency writes the chip's carrier frequency registers. Frequency
// steps are in units of (32MHz crystal >> 19) = 61.03515625Hz; multiplying
// by 4 and dividing by (32MHz >> 11) keeps the computation in integer
// arithmetic, the same shift SX1231 drivers use. The result is the FRF
// register value divided by 64, so the low 6 FRF bits are written as zero
// (a tuning step of 3.90625kHz).
func setFrequency(conn spi.Conn, cs gpio.PinOut, mhz float64) error {
	hz := uint32(mhz * 1e6)
	frf := (uint64(hz) << 2) / (32000000 >> 11)
	return writeReg(conn, cs, regFrfMsb, byte(frf>>10), byte(frf>>2), byte(frf<<6))
}

// writeReg performs one register-write transaction. The radio's chip-select
// is driven manually around the transfer since, as set up in Open, this
// link does not rely on the SPI controller's own hardware CS.
func writeReg(conn spi.Conn, cs gpio.PinOut, addr byte, data ...byte) error {
	if err := cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("write reg 0x%02x: assert cs: %w", addr, err)
	}
	defer cs.Out(gpio.High)

	w := make([]byte, len(data)+1)
	w[0] = addr | regWriteBit
	copy(w[1:], data)
	r := make([]byte, len(w))
	if err := conn.Tx(w, r); err != nil {
		return fmt.Errorf("write reg 0x%02x: %w", addr, err)
	}
	return nil
}

// WaitForFrame blocks until the IRQ line asserts or the radio is closed, then
// performs one SPI read of a raw (still-encrypted) frame. It returns
// ok == false once the radio has been closed. The caller's goroutine plays
// the interrupt handler's role: it never blocks on storage or HTTP, only on
// the edge and the SPI transfer itself.
func (r *Radio) WaitForFrame() (raw []byte, ok bool, err error) {
	if !r.irq.WaitForEdge(-1) {
		select {
		case <-r.closed:
			return nil, false, nil
		default:
			return nil, true, fmt.Errorf("wait for edge: spurious wake")
		}
	}
	if err := r.cs.Out(gpio.Low); err != nil {
		return nil, true, fmt.Errorf("assert cs: %w", err)
	}
	defer r.cs.Out(gpio.High)

	buf := make([]byte, frame.WireLen)
	if err := r.port.Tx(nil, buf); err != nil {
		return nil, true, fmt.Errorf("spi read: %w", err)
	}
	return buf, true, nil
}

// Decrypt reverses the field node's AES-128 encryption of a raw frame,
// returning the plaintext-plus-CRC bytes ready for frame.CheckAndStrip.
func (r *Radio) Decrypt(key [16]byte, raw []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	var iv [aes.BlockSize]byte
	stream := cipher.NewCTR(block, iv[:])
	out := make([]byte, len(raw))
	stream.XORKeyStream(out, raw)
	return out, nil
}

// Close marks the radio closed and halts the IRQ line, which wakes a pending
// WaitForFrame so that it returns ok == false. The SPI port is not closed
// here; it stays open until the process exits.
func (r *Radio) Close() error {
	close(r.closed)
	if r.irq == nil {
		return nil
	}
	return r.irq.Halt()
}
