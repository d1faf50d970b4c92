// Package gwerr defines the gateway's error taxonomy. Errors are plain
// comparable sentinels wrapped with fmt.Errorf("...: %w", ...) at the call
// site, not a framework.
package gwerr

import "errors"

var (
	// ErrBadFrame means a frame failed CRC or could not be unpacked.
	ErrBadFrame = errors.New("bad frame")

	// ErrDuplicateFrame is not surfaced as a pipeline failure; it exists so
	// callers that want to distinguish a dedup-drop from a real error can.
	ErrDuplicateFrame = errors.New("duplicate frame")

	// ErrStorageError wraps a persistence I/O failure for one frame.
	ErrStorageError = errors.New("storage error")

	// ErrInvalidField is returned by the registry when a field fails
	// validation (type, range, or shape).
	ErrInvalidField = errors.New("invalid field")

	// ErrConflict is returned by the registry when an id or name already
	// exists.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a node or sensor id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadResponse means a webhook returned a non-200 status or the
	// request failed outright (including timeout).
	ErrBadResponse = errors.New("bad response")

	// ErrHardwareInit means the radio failed to open at startup. Fatal.
	ErrHardwareInit = errors.New("hardware init failure")

	// ErrDisplayInit means the OLED/I2C bus is unavailable. Non-fatal.
	ErrDisplayInit = errors.New("display init failure")
)
