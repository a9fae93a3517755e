package discovery

import "errors"

// Domain-specific errors for discovery operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrServiceNotFound is returned when no service record is known for a serial.
	ErrServiceNotFound = errors.New("discovery: service not found")

	// ErrResolveFailed is returned when a known service host cannot be resolved to an address.
	ErrResolveFailed = errors.New("discovery: address resolution failed")

	// ErrInvalidServiceName is returned when an advertised name has no prefix/serial separator.
	ErrInvalidServiceName = errors.New("discovery: invalid service name")

	// ErrBrowserRunning is returned when Start is called on a browser that is already browsing.
	ErrBrowserRunning = errors.New("discovery: browser already running")
)
