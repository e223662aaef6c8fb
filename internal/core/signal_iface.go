package core

import "errors"

// Frame is a raw encoded message.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts the messaging transport of one connection.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking. Frames queued on one connection are
	// written in order.
	TrySend(f Frame) error
	Close()
}
