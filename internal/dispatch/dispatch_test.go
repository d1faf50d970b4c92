package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spillwave/sensorgateway/internal/gwlog"
)

func TestDecodeRegister(t *testing.T) {
	cases := []struct {
		reg  uint16
		want []uint8
	}{
		{0x0000, nil},
		{0x0001, []uint8{0}},
		{0x8000, []uint8{15}},
		{0x0003, []uint8{0, 1}},
	}
	for _, c := range cases {
		got := DecodeRegister(c.reg)
		if len(got) != len(c.want) {
			t.Fatalf("DecodeRegister(0x%04x) = %v, want %v", c.reg, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("DecodeRegister(0x%04x) = %v, want %v", c.reg, got, c.want)
			}
		}
	}
}

func TestDispatcherFiresConfiguredWebhookOnly(t *testing.T) {
	var mu sync.Mutex
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	actions := ActionTable{
		0x05: {0x00: {URL: srv.URL, Delay: 0}},
	}
	logger := gwlog.New("test: ", os.Stderr, gwlog.LevelDebug, nil, gwlog.LevelDebug, 0)
	d := New(actions, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Enqueue(Event{NodeID: 0x05, StatusRegister: 0x0001})

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Fatalf("expected exactly 1 webhook hit, got %d", hits)
	}
}

func TestEnqueueDropsNewestOnFull(t *testing.T) {
	logger := gwlog.New("test: ", os.Stderr, gwlog.LevelDebug, nil, gwlog.LevelDebug, 0)
	d := New(nil, nil, logger)
	for i := 0; i < QueueDepth+10; i++ {
		d.Enqueue(Event{NodeID: uint8(i)})
	}
	if d.dropped == 0 {
		t.Fatal("expected some events to be dropped on overflow")
	}
}
