// Package config defines the gateway's configuration surface: command-line
// flags for hardware wiring and storage location, with environment variable
// overrides for secrets that should not live in a process list or shell
// history.
package config

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spillwave/sensorgateway/internal/dispatch"
)

// Config is the fully resolved, validated configuration for one gateway
// process.
type Config struct {
	DBURL string

	RadioSPIBus       string
	RadioIRQPin       string
	RadioCSPin        string
	RadioResetPin     string
	RadioFrequencyMHz float64
	EncryptionKey     [16]byte

	LogLevelFile    string
	LogLevelConsole string

	DisplayWidth  int
	DisplayHeight int

	EventActions dispatch.ActionTable
}

// envEncryptionKey overrides -encryption-key when set, keeping the secret
// out of the process argument list.
const envEncryptionKey = "SENSORGATEWAY_ENCRYPTION_KEY"

// envDBURL overrides -db-url when set, for the same reason.
const envDBURL = "SENSORGATEWAY_DB_URL"

// rawEventAction mirrors one entry of the event-actions JSON document; it
// exists only to give encoding/json a concrete shape before conversion to
// dispatch.ActionTable.
type rawEventAction struct {
	URL     string `json:"url"`
	DelayMS int    `json:"delay_ms"`
}

// Parse builds a Config from args (typically os.Args[1:]), applying
// environment variable overrides for secrets afterward.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("sensorgatewayd", flag.ContinueOnError)

	dbURL := fs.String("db-url", "postgres://localhost/sensorgateway?sslmode=disable", "connection string for the reading/registry store")
	spiBus := fs.String("radio-spi-bus", "/dev/spidev0.0", "SPI bus device for the radio")
	irqPin := fs.String("radio-irq-pin", "GPIO24", "GPIO line for \"payload ready\"")
	csPin := fs.String("radio-cs-pin", "GPIO8", "SPI chip-select line")
	resetPin := fs.String("radio-reset-pin", "GPIO25", "radio reset line")
	freq := fs.Float64("radio-frequency", 433.0, "radio frequency in MHz")
	key := fs.String("encryption-key", "", "16-byte hex-encoded AES-128 key shared with field nodes")
	logFile := fs.String("log-level-file", "info", "log level for the file log sink")
	logConsole := fs.String("log-level-console", "info", "log level for the console log sink")
	width := fs.Int("display-width", 128, "OLED panel width in pixels")
	height := fs.Int("display-height", 64, "OLED panel height in pixels")
	eventActionsJSON := fs.String("event-actions", "", "JSON document: node_id (string) -> bit_index (string) -> {url, delay_ms}")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if v := os.Getenv(envDBURL); v != "" {
		*dbURL = v
	}
	if v := os.Getenv(envEncryptionKey); v != "" {
		*key = v
	}

	keyBytes, err := decodeKey(*key)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	actions, err := parseEventActions(*eventActionsJSON)
	if err != nil {
		return nil, fmt.Errorf("event actions: %w", err)
	}

	return &Config{
		DBURL:             *dbURL,
		RadioSPIBus:       *spiBus,
		RadioIRQPin:       *irqPin,
		RadioCSPin:        *csPin,
		RadioResetPin:     *resetPin,
		RadioFrequencyMHz: *freq,
		EncryptionKey:     keyBytes,
		LogLevelFile:      *logFile,
		LogLevelConsole:   *logConsole,
		DisplayWidth:      *width,
		DisplayHeight:     *height,
		EventActions:      actions,
	}, nil
}

func decodeKey(hexKey string) ([16]byte, error) {
	var out [16]byte
	if hexKey == "" {
		return out, nil
	}
	decoded, err := hex.DecodeString(hexKey)
	if err != nil {
		return out, err
	}
	if len(decoded) != 16 {
		return out, fmt.Errorf("expected 16 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func parseEventActions(doc string) (dispatch.ActionTable, error) {
	if doc == "" {
		return dispatch.ActionTable{}, nil
	}
	var raw map[string]map[string]rawEventAction
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, err
	}
	table := make(dispatch.ActionTable, len(raw))
	for nodeStr, byBit := range raw {
		nodeID, err := parseUint8(nodeStr)
		if err != nil {
			return nil, fmt.Errorf("node id %q: %w", nodeStr, err)
		}
		actions := make(map[uint8]dispatch.Action, len(byBit))
		for bitStr, a := range byBit {
			bit, err := parseUint8(bitStr)
			if err != nil {
				return nil, fmt.Errorf("bit index %q: %w", bitStr, err)
			}
			actions[bit] = dispatch.Action{
				URL:   a.URL,
				Delay: time.Duration(a.DelayMS) * time.Millisecond,
			}
		}
		table[nodeID] = actions
	}
	return table, nil
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("out of range: %d", v)
	}
	return uint8(v), nil
}
