package phxclient

import "github.com/pkg/errors"

var (
	// ErrMalformedMessage is returned when an inbound frame is not a valid envelope.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrNotConnected is returned when writing to a transport with no live connection.
	ErrNotConnected = errors.New("not connected")

	// ErrClosing is returned by Connect while the previous connection is
	// still shutting down.
	ErrClosing = errors.New("previous connection still closing")
)
