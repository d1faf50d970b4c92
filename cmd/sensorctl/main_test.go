package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spillwave/sensorgateway/internal/gwerr"
	"github.com/spillwave/sensorgateway/internal/registry"
)

type fakeRegistry struct {
	nodes   map[uint8]*registry.Node
	sensors map[uint8]*registry.Sensor
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{nodes: map[uint8]*registry.Node{}, sensors: map[uint8]*registry.Sensor{}}
}

func (f *fakeRegistry) ListNodeIDs(context.Context) ([]uint8, error) {
	var ids []uint8
	for id := range f.nodes {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeRegistry) GetNode(_ context.Context, id uint8) (*registry.Node, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, gwerr.ErrNotFound
	}
	return n, nil
}

func (f *fakeRegistry) AddNode(_ context.Context, id uint8, name, location string) error {
	if _, exists := f.nodes[id]; exists {
		return gwerr.ErrConflict
	}
	f.nodes[id] = &registry.Node{ID: id, Name: name, Location: location}
	return nil
}

func (f *fakeRegistry) ListSensorIDs(context.Context) ([]uint8, error) {
	var ids []uint8
	for id := range f.sensors {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeRegistry) GetSensor(_ context.Context, id uint8) (*registry.Sensor, error) {
	s, ok := f.sensors[id]
	if !ok {
		return nil, gwerr.ErrNotFound
	}
	return s, nil
}

func (f *fakeRegistry) AddSensor(_ context.Context, id, nodeID uint8, name, quantity string) error {
	if _, exists := f.nodes[nodeID]; !exists {
		return gwerr.ErrConflict
	}
	f.sensors[id] = &registry.Sensor{ID: id, NodeID: nodeID, Name: name}
	return nil
}

func TestAddThenShowNode(t *testing.T) {
	reg := newFakeRegistry()
	ctx := context.Background()
	var out, errOut bytes.Buffer

	if code := runWithStore(ctx, reg, []string{"node", "add", "5", "Tank", "Barn"}, &out, &errOut); code != 0 {
		t.Fatalf("add exit code = %d, stderr = %s", code, errOut.String())
	}
	out.Reset()
	if code := runWithStore(ctx, reg, []string{"node", "show", "5"}, &out, &errOut); code != 0 {
		t.Fatalf("show exit code = %d, stderr = %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "Name -- Tank") {
		t.Fatalf("unexpected show output: %s", out.String())
	}
}

func TestShowMissingNodeReturnsNonZero(t *testing.T) {
	reg := newFakeRegistry()
	ctx := context.Background()
	var out, errOut bytes.Buffer
	code := runWithStore(ctx, reg, []string{"node", "show", "9"}, &out, &errOut)
	if code == 0 {
		t.Fatal("expected non-zero exit code for missing node")
	}
	if !strings.Contains(errOut.String(), "not found") {
		t.Fatalf("expected not-found error, got: %s", errOut.String())
	}
}

func TestAddSensorWithoutNodeFails(t *testing.T) {
	reg := newFakeRegistry()
	ctx := context.Background()
	var out, errOut bytes.Buffer
	code := runWithStore(ctx, reg, []string{"sensor", "add", "1", "9", "Probe", "Temperature"}, &out, &errOut)
	if code == 0 {
		t.Fatal("expected non-zero exit code when owning node is missing")
	}
}

func TestListEmptyRegistry(t *testing.T) {
	reg := newFakeRegistry()
	ctx := context.Background()
	var out, errOut bytes.Buffer
	code := runWithStore(ctx, reg, []string{"node", "list"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "No existing nodes") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestUnknownFamilyPrintsUsage(t *testing.T) {
	reg := newFakeRegistry()
	ctx := context.Background()
	var out, errOut bytes.Buffer
	code := runWithStore(ctx, reg, []string{"bogus", "list"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
