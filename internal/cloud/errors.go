package cloud

import "errors"

// Sentinel errors for account API operations.
//
//	if errors.Is(err, cloud.ErrAuthentication) {
//	    // wrong email or password
//	}
var (
	// ErrAuthentication indicates the account API rejected the credentials.
	ErrAuthentication = errors.New("cloud: authentication failed")

	// ErrUnexpectedStatus indicates a non-2xx HTTP response.
	ErrUnexpectedStatus = errors.New("cloud: unexpected response status")

	// ErrInvalidResponse indicates a response body that could not be decoded.
	ErrInvalidResponse = errors.New("cloud: invalid response")
)
