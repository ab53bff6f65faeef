package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// encryptionKeyBytes is the AES-256 key length expected by pkg/crypto.
const encryptionKeyBytes = 32

// DecodeKey decodes a key from hex or base64 encoding to raw bytes.
// Hex is tried first, then standard and raw base64. Anything else is used verbatim.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}

	return []byte(v), nil
}

func decodeEncryptionKey(value string) ([]byte, error) {
	key, err := DecodeKey(value)
	if err != nil {
		return nil, err
	}
	if len(key) != encryptionKeyBytes {
		return nil, fmt.Errorf("encryption key must decode to %d bytes, got %d", encryptionKeyBytes, len(key))
	}
	return key, nil
}
