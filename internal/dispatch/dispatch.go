// Package dispatch implements the event dispatcher: it decodes a
// status-register bitmap into outbound HTTP webhook calls, writing an audit
// trail to the reading store before any webhook fires so the trail survives
// HTTP failures.
package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spillwave/sensorgateway/internal/gwerr"
	"github.com/spillwave/sensorgateway/internal/gwlog"
	"github.com/spillwave/sensorgateway/internal/readings"
)

// Action is one configured webhook: hit URL after waiting Delay.
type Action struct {
	URL   string
	Delay time.Duration
}

// ActionTable maps node_id -> bit_index -> Action. Unknown (node, bit) pairs
// are logged and skipped without failing.
type ActionTable map[uint8]map[uint8]Action

// Event is one decoded status register from a frame, queued for dispatch.
type Event struct {
	NodeID         uint8
	StatusRegister uint16
}

// QueueDepth is the capacity of the bounded event FIFO; event volume is
// expected to remain shallow relative to reading volume.
const QueueDepth = 64

// httpTimeout bounds each webhook GET. A timeout firing is treated
// identically to a non-200 response.
const httpTimeout = 5 * time.Second

// Dispatcher is the single-threaded consumer of queued events. It is the
// only writer of event rows and the only caller of the HTTP client.
type Dispatcher struct {
	actions ActionTable
	store   *readings.Store
	client  *http.Client
	logger  *gwlog.Logger

	events  chan Event
	dropped int
}

// New builds a Dispatcher. actions may be nil, meaning no webhooks are
// configured; events are still audited to store.
func New(actions ActionTable, store *readings.Store, logger *gwlog.Logger) *Dispatcher {
	if actions == nil {
		actions = ActionTable{}
	}
	return &Dispatcher{
		actions: actions,
		store:   store,
		client:  &http.Client{Timeout: httpTimeout},
		logger:  logger,
		events:  make(chan Event, QueueDepth),
	}
}

// Enqueue pushes an event onto the bounded FIFO. On overflow the new event
// is dropped (drop-newest) and logged; the caller (the decode worker) is
// never blocked.
func (d *Dispatcher) Enqueue(ev Event) {
	select {
	case d.events <- ev:
	default:
		d.dropped++
		d.logger.Printf("event queue full, dropping event from node 0x%02x (total dropped: %d)", ev.NodeID, d.dropped)
	}
}

// DecodeRegister returns the asserted bit indices of r, LSB = bit 0.
// decode_register(0) == nil (empty).
func DecodeRegister(r uint16) []uint8 {
	var bits []uint8
	for i := uint8(0); i < 16; i++ {
		if r&(1<<i) != 0 {
			bits = append(bits, i)
		}
	}
	return bits
}

// Run processes events until ctx is canceled. It is meant to be the body of
// the dispatcher's single goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			d.handle(ctx, ev)
		}
	}
}

// Drain processes any events still queued, without blocking for new ones.
// Called during shutdown so queued events are not silently lost.
func (d *Dispatcher) Drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.events:
			d.handle(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	bits := DecodeRegister(ev.StatusRegister)
	if len(bits) == 0 {
		return
	}

	if d.store != nil {
		if err := d.store.WriteEvents(ctx, time.Now().UTC(), ev.NodeID, bits); err != nil {
			d.logger.Printf("critical: failed to write node events for node 0x%02x: %v", ev.NodeID, err)
		}
	}

	for _, bit := range bits {
		action, ok := d.lookup(ev.NodeID, bit)
		if !ok {
			d.logger.Printf("event %d from node 0x%02x has no configured action, skipping", bit, ev.NodeID)
			continue
		}
		if action.Delay > 0 {
			select {
			case <-time.After(action.Delay):
			case <-ctx.Done():
				return
			}
		}
		if err := d.fire(ctx, action.URL); err != nil {
			d.logger.Printf("bad response dispatching event %d from node 0x%02x: %v", bit, ev.NodeID, err)
		}
	}
}

func (d *Dispatcher) lookup(nodeID, bit uint8) (Action, bool) {
	byBit, ok := d.actions[nodeID]
	if !ok {
		return Action{}, false
	}
	a, ok := byBit[bit]
	return a, ok
}

func (d *Dispatcher) fire(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gwerr.ErrBadResponse, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", gwerr.ErrBadResponse, resp.StatusCode)
	}
	return nil
}
