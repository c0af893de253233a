package server

import "errors"

// Sentinel errors for common session and server error conditions.
var (
	// ErrServerClosed is returned by Run after a graceful shutdown.
	ErrServerClosed = errors.New("server: closed")

	// ErrSessionClosed is returned when an operation is attempted on a closed session.
	ErrSessionClosed = errors.New("server: session closed")
)
