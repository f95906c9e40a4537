package anova

import "errors"

// Domain errors for the bridge package.
var (
	// ErrNotSteady is returned when a command is attempted while the
	// push channel is down.
	ErrNotSteady = errors.New("bridge: scheduler not in steady state")
)
