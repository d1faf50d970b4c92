package gateway

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spillwave/sensorgateway/internal/gwlog"
)

func TestComponentLoggerPrefixesName(t *testing.T) {
	var buf bytes.Buffer
	base := gwlog.New("", &buf, gwlog.LevelDebug, nil, gwlog.LevelDebug, 0)
	g := &Gateway{logger: base}

	cl := g.componentLogger("ingest")
	cl.Printf("hello")

	if !strings.HasPrefix(buf.String(), "ingest: hello") {
		t.Fatalf("unexpected log output: %q", buf.String())
	}
}
