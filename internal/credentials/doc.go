// Package credentials recovers local MQTT credentials from the encrypted
// LocalCredentials field of a cloud manifest entry.
//
// The blob is base64 of AES-256-CBC ciphertext with an all-zero IV and a
// fixed key shared by every installation. The key only wraps the JSON
// payload for transport inside the manifest and is not a secret.
//
// Usage:
//
//	creds, err := credentials.Decrypt(entry.LocalCredentials)
//	if err != nil {
//	    return err // device is unusable
//	}
//	fmt.Println(creds.Serial)
package credentials
