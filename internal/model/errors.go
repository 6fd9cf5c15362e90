package model

import "errors"

// ErrInvalidInput marks a position request that cannot be computed.
var ErrInvalidInput = errors.New("invalid input")

// ErrPoolNotFound is returned when a source has no record of a pool.
var ErrPoolNotFound = errors.New("pool not found")
