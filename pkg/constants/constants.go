// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout is the deadline for a single outbound WebSocket write
	WebSocketWriteTimeout = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 24 * time.Hour
)

// Connection constants
const (
	// SendBufferSize is the per-connection outbound message buffer.
	// A full buffer drops the message rather than blocking the sender.
	SendBufferSize = 256

	// DefaultMaxConnections caps concurrent WebSocket connections
	DefaultMaxConnections = 1000
)

// Consultation room constants
const (
	// DefaultRoomCapacity bounds the participant set of a consultation room.
	// A doctor-patient pair needs 2; supervising participants raise it.
	DefaultRoomCapacity = 4
)

// Persistence constants
const (
	// StatusWriteTimeout bounds the fire-and-forget status write-through
	StatusWriteTimeout = 5 * time.Second

	// StatusEntryTTL is how long a persisted doctor status survives without refresh
	StatusEntryTTL = 5 * time.Minute
)

// Validation constants
const (
	// MaxDisplayNameLength is the maximum allowed display name length
	MaxDisplayNameLength = 100

	// MaxSignalPayloadBytes bounds a single relayed negotiation payload
	MaxSignalPayloadBytes = 64 * 1024
)
