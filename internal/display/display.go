// Package display implements the status display sink: a single-threaded
// consumer of short status strings, rendered to a small OLED via periph.io.
package display

import (
	"context"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/spillwave/sensorgateway/internal/gwlog"
)

// RingDepth is the number of lines kept on screen at once.
const RingDepth = 4

// MaxLineLen is the maximum rendered length of a line; longer lines are
// truncated with a trailing "...".
const MaxLineLen = 20

const lineHeightPx = 12

// QueueDepth is the capacity of the bounded message FIFO.
const QueueDepth = 64

// Sink is the single consumer of PendingMessages. If the OLED failed to
// initialize, it swallows messages but keeps draining the queue so
// producers are never blocked.
type Sink struct {
	dev    display.Drawer // nil if DisplayInitFailure occurred
	width  int
	height int
	lines  []string // ring buffer, oldest first, capped at RingDepth

	messages chan string
	logger   *gwlog.Logger
}

// Open attempts to initialize the OLED over the given I2C bus. On failure it
// returns a Sink with dev == nil; the failure is logged, not returned, so
// startup can continue without a working display.
func Open(bus i2c.Bus, width, height int, logger *gwlog.Logger) *Sink {
	s := &Sink{
		width:    width,
		height:   height,
		messages: make(chan string, QueueDepth),
		logger:   logger,
	}
	if bus == nil {
		logger.Printf("display init failure, no i2c bus available, swallowing future messages")
		return s
	}
	opts := ssd1306.Opts{W: width, H: height, Rotated: false}
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		logger.Printf("display init failure, swallowing future messages: %v", err)
		return s
	}
	s.dev = dev
	return s
}

// Enqueue pushes a line onto the bounded FIFO. On overflow the new message
// is dropped (drop-newest); producers are never blocked.
func (s *Sink) Enqueue(line string) {
	select {
	case s.messages <- line:
	default:
		s.logger.Printf("display queue full, dropping message %q", line)
	}
}

// Run drains messages until ctx is canceled, rendering each to the OLED.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-s.messages:
			s.consume(line)
		}
	}
}

func (s *Sink) consume(line string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("recovered from display render panic: %v", r)
		}
	}()

	s.lines = append(s.lines, truncate(line))
	if len(s.lines) > RingDepth {
		s.lines = s.lines[len(s.lines)-RingDepth:]
	}
	if s.dev == nil {
		return
	}
	if err := s.render(); err != nil {
		s.logger.Printf("display render error: %v", err)
	}
}

func (s *Sink) render() error {
	img := image1bit.NewVerticalLSB(s.dev.Bounds())
	face := basicfont.Face7x13
	for row, text := range s.lines {
		y := 1 + lineHeightPx*row + face.Ascent
		d := font.Drawer{
			Dst:  img,
			Src:  &image.Uniform{C: image1bit.On},
			Face: face,
			Dot:  fixed.P(1, y),
		}
		d.DrawString(text)
	}
	return s.dev.Draw(s.dev.Bounds(), img, image.Point{})
}

// Shutdown writes three blank messages then "OLED shut down" and waits for
// the queue to drain.
func (s *Sink) Shutdown(ctx context.Context) {
	for i := 0; i < 3; i++ {
		s.Enqueue("")
	}
	s.Enqueue("OLED shut down")
	s.drain(ctx)
}

// drain blocks until the message queue is empty or ctx is canceled.
func (s *Sink) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-s.messages:
			s.consume(line)
		default:
			if len(s.messages) == 0 {
				return
			}
		}
	}
}

func truncate(line string) string {
	if len(line) <= MaxLineLen {
		return line
	}
	if MaxLineLen <= 3 {
		return line[:MaxLineLen]
	}
	return line[:MaxLineLen-3] + "..."
}
