package oven

import "errors"

// Domain errors for the oven package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, oven.ErrNoDeviceID) {
//	    // drop the message, log a warning
//	}
var (
	// ErrNoDeviceID is returned when a message carries neither an "id"
	// nor a "cookerId" key. The message is dropped, never retried.
	ErrNoDeviceID = errors.New("oven: message has no device id")

	// ErrMalformedMessage is returned when a message fails structural
	// probing and cannot be normalized.
	ErrMalformedMessage = errors.New("oven: malformed message")

	// ErrDeviceNotFound is returned when a device id has never been seen.
	ErrDeviceNotFound = errors.New("oven: device not found")

	// ErrHistoryUnavailable is returned when the state history store is
	// not configured.
	ErrHistoryUnavailable = errors.New("oven: state history unavailable")
)
