package credentials

import "errors"

// ErrDecryption is returned when a LocalCredentials blob cannot be turned
// into credentials: bad base64, bad block alignment or padding, or a
// plaintext that is not the expected JSON object.
// Use errors.Is() to check for it.
var ErrDecryption = errors.New("credentials: decryption failed")
