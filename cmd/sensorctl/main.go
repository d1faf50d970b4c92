// Command sensorctl registers and inspects nodes and sensors in the
// gateway's registry store. Every registry error is printed and turns into
// a non-zero exit code; nothing is swallowed.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spillwave/sensorgateway/internal/registry"
)

const usage = `usage: sensorctl <node|sensor> <list|show|add> [args...]

  node list
  node show <id>
  node add <id> <name> <location>

  sensor list
  sensor show <id>
  sensor add <id> <node_id> <name> <quantity>
`

// registryAPI is the subset of *registry.Store the CLI needs, narrowed so
// command logic can be exercised against a fake in tests.
type registryAPI interface {
	ListNodeIDs(ctx context.Context) ([]uint8, error)
	GetNode(ctx context.Context, id uint8) (*registry.Node, error)
	AddNode(ctx context.Context, id uint8, name, location string) error
	ListSensorIDs(ctx context.Context) ([]uint8, error)
	GetSensor(ctx context.Context, id uint8) (*registry.Sensor, error)
	AddSensor(ctx context.Context, id, nodeID uint8, name, quantity string) error
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	dbURL := os.Getenv("SENSORGATEWAY_DB_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost/sensorgateway?sslmode=disable"
	}

	ctx := context.Background()
	store, err := registry.Open(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer store.Close()

	return runWithStore(ctx, store, args, stdout, stderr)
}

func runWithStore(ctx context.Context, store registryAPI, args []string, stdout, stderr io.Writer) int {
	family, cmd, rest := args[0], args[1], args[2:]

	var cmdErr error
	switch family {
	case "node":
		cmdErr = dispatchNode(ctx, store, cmd, rest, stdout)
	case "sensor":
		cmdErr = dispatchSensor(ctx, store, cmd, rest, stdout)
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}

	if cmdErr != nil {
		fmt.Fprintf(stderr, "error: %v\n", cmdErr)
		return 1
	}
	return 0
}

func dispatchNode(ctx context.Context, store registryAPI, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "list":
		ids, err := store.ListNodeIDs(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(out, layoutHexGrid("node", ids))
		return nil
	case "show":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		n, err := store.GetNode(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Details for node ID 0x%02x:\n\nName -- %s\nLocation -- %s\n", n.ID, n.Name, n.Location)
		return nil
	case "add":
		if len(args) != 3 {
			return fmt.Errorf("add requires id, name, location")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[0], err)
		}
		if err := store.AddNode(ctx, uint8(id), args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Node ID 0x%02x created\n", id)
		return nil
	default:
		return fmt.Errorf("unknown node command %q", cmd)
	}
}

func dispatchSensor(ctx context.Context, store registryAPI, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "list":
		ids, err := store.ListSensorIDs(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(out, layoutHexGrid("sensor", ids))
		return nil
	case "show":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		s, err := store.GetSensor(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Details for sensor ID 0x%02x:\n\nNode_ID -- 0x%02x\nName -- %s\nQuantity -- %s\n",
			s.ID, s.NodeID, s.Name, s.Quantity)
		return nil
	case "add":
		if len(args) != 4 {
			return fmt.Errorf("add requires id, node_id, name, quantity")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[0], err)
		}
		nodeID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid node_id %q: %w", args[1], err)
		}
		if err := store.AddSensor(ctx, uint8(id), uint8(nodeID), args[2], args[3]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Sensor ID 0x%02x created\n", id)
		return nil
	default:
		return fmt.Errorf("unknown sensor command %q", cmd)
	}
}

func parseID(args []string) (uint8, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("show requires exactly one id argument")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", args[0], err)
	}
	if id < 0 || id > 254 {
		return 0, fmt.Errorf("id %d out of range 0-254", id)
	}
	return uint8(id), nil
}

// layoutHexGrid lays out ids 16 to a row, two hex digits each, matching the
// operator-facing listing format used for node/sensor inventories.
func layoutHexGrid(thing string, ids []uint8) string {
	if len(ids) == 0 {
		return fmt.Sprintf("No existing %ss in database\n", thing)
	}
	out := fmt.Sprintf("Existing %ss\n", thing)
	for i, id := range ids {
		if i%16 == 0 {
			out += "\n"
		}
		out += fmt.Sprintf("%02x ", id)
	}
	return out + "\n\n"
}
