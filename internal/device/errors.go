package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotConnected) {
//	    // connect first
//	}
var (
	// ErrCredentialDecryption is returned when a manifest entry's local
	// credentials cannot be decoded. The device cannot be used.
	ErrCredentialDecryption = errors.New("device: credential decryption failed")

	// ErrConnection is returned when the transport session cannot be opened.
	ErrConnection = errors.New("device: connection failed")

	// ErrNotConnected is returned when publishing without an active session.
	ErrNotConnected = errors.New("device: not connected")

	// ErrMalformedMessage is returned when an inbound payload lacks a field
	// the dispatch rules read, or a field fails to parse.
	ErrMalformedMessage = errors.New("device: malformed message")

	// ErrInvalidMode is returned for an empty or unknown tri-state value.
	ErrInvalidMode = errors.New("device: invalid mode")

	// ErrInvalidFanSpeed is returned for a fan speed outside 0-10 that is not auto.
	ErrInvalidFanSpeed = errors.New("device: invalid fan speed")

	// ErrInvalidControl is returned for an unknown toggle name.
	ErrInvalidControl = errors.New("device: invalid control")

	// ErrDeviceNotFound is returned when a serial is not managed.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when adding a serial that is already managed.
	ErrDeviceExists = errors.New("device: already exists")
)
