package gossip

import "errors"

var (
	// ErrBindFailed indicates the transport socket could not be bound. This is
	// the only error fatal to startup.
	ErrBindFailed = errors.New("gossip: bind failed")

	// ErrSendFailed indicates a datagram could not be written to a peer.
	ErrSendFailed = errors.New("gossip: send failed")

	// ErrSocketClosed indicates use of a socket after Close.
	ErrSocketClosed = errors.New("gossip: socket closed")

	// ErrInvalidEnvelope indicates a datagram that could not be decoded.
	ErrInvalidEnvelope = errors.New("gossip: invalid envelope")

	// ErrNoEntrypoints indicates the client was configured without any
	// reachable entrypoint address.
	ErrNoEntrypoints = errors.New("gossip: no entrypoints configured")
)

// IsInvalidEnvelope reports whether the error originated from a malformed datagram.
func IsInvalidEnvelope(err error) bool {
	return errors.Is(err, ErrInvalidEnvelope)
}
