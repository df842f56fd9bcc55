package engine

import "errors"

var (
	// ErrNotReady is returned when a search is requested before the handshake completed.
	ErrNotReady = errors.New("engine not ready")
	// ErrTimeout is returned when no bestmove arrives within the analysis timeout.
	ErrTimeout = errors.New("analysis timeout")
	// ErrClosed is returned once the session has quit or its process exited.
	ErrClosed = errors.New("engine session closed")
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("engine session already initialized")
	// ErrHandshake is returned when the engine does not acknowledge uci/isready.
	ErrHandshake = errors.New("engine handshake failed")
)
