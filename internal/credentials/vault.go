package credentials

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// manifestKey is the fixed AES-256 key used for every manifest.
var manifestKey = [32]byte{
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18,
	0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20,
}

// manifestIV is all zero.
var manifestIV [aes.BlockSize]byte

// Credentials authenticate the local MQTT session of one appliance.
type Credentials struct {
	// Serial is the appliance serial; it is the MQTT username and part of every topic.
	Serial string `json:"serial"`

	// PasswordHash is the MQTT password.
	PasswordHash string `json:"apPasswordHash"`
}

// String hides the password hash so Credentials can be logged safely.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Serial: %q}", c.Serial)
}

// Decrypt decodes a base64 LocalCredentials blob into Credentials.
//
// Any failure wraps ErrDecryption; callers must treat it as fatal for the
// device the blob belongs to.
func Decrypt(blob string) (Credentials, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: decoding base64: %w", ErrDecryption, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return Credentials{}, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d",
			ErrDecryption, len(ciphertext), aes.BlockSize)
	}

	block, err := aes.NewCipher(manifestKey[:])
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, manifestIV[:]).CryptBlocks(plain, ciphertext)

	plain, err = unpad(plain)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	var creds Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: parsing plaintext: %w", ErrDecryption, err)
	}
	if creds.Serial == "" || creds.PasswordHash == "" {
		return Credentials{}, fmt.Errorf("%w: plaintext missing serial or apPasswordHash", ErrDecryption)
	}

	return creds, nil
}

// Encrypt is the inverse of Decrypt. It produces a blob in the same format
// the manifest carries.
func Encrypt(creds Credentials) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("marshalling credentials: %w", err)
	}

	block, err := aes.NewCipher(manifestKey[:])
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	plain = pad(plain)
	ciphertext := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, manifestIV[:]).CryptBlocks(ciphertext, plain)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// pad applies PKCS#7 padding to a whole number of AES blocks.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips and verifies PKCS#7 padding.
func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("invalid padding length %d", n)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("invalid padding bytes")
		}
	}
	return b[:len(b)-n], nil
}
