package anova

import "errors"

// Domain errors for the anova package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, anova.ErrNotConnected) {
//	    // defer to the next poll tick
//	}
var (
	// ErrConnectionFailed is returned when the websocket dial or
	// handshake fails.
	ErrConnectionFailed = errors.New("anova: connection failed")

	// ErrNotConnected is returned when an operation requires a live
	// push channel and there is none.
	ErrNotConnected = errors.New("anova: not connected")

	// ErrMalformedFrame is returned when an inbound frame cannot be
	// decoded. The frame is dropped; the channel stays up.
	ErrMalformedFrame = errors.New("anova: malformed frame")

	// ErrCommandFailed is returned when the cloud rejects a command.
	ErrCommandFailed = errors.New("anova: command failed")

	// ErrCommandTimeout is returned when no response arrives for a
	// command within the configured window.
	ErrCommandTimeout = errors.New("anova: command timed out")
)
