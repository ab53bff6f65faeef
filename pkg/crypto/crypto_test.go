package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPassword(hash, "secret") {
		t.Fatal("expected password verification to succeed")
	}

	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{0x1}, 32)
	plaintext := []byte("refresh-token")

	encoded, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	decrypted, err := Decrypt(encoded, key)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}

	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("expected decrypted plaintext to match original, got %s", decrypted)
	}

	if _, err := Decrypt(encoded, bytes.Repeat([]byte{0x2}, 32)); err == nil {
		t.Fatal("expected decrypt with the wrong key to fail")
	}
}

func TestRandomStringAlphabetAndLength(t *testing.T) {
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		token, err := RandomString(32)
		if err != nil {
			t.Fatalf("random string error: %v", err)
		}
		if len(token) != 32 {
			t.Fatalf("expected 32 characters, got %d", len(token))
		}
		for _, r := range token {
			if !strings.ContainsRune(Alphanumeric, r) {
				t.Fatalf("unexpected character %q in %s", r, token)
			}
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = struct{}{}
	}
}

func TestRandomFromDiscardsBiasedBytes(t *testing.T) {
	// 250..255 sit above the 248 cut-off for a 62 symbol alphabet and must be skipped.
	src := bytes.NewReader([]byte{250, 255, 0, 61, 62, 247, 0, 0, 0, 0})
	out, err := randomFrom(src, Alphanumeric, 4)
	if err != nil {
		t.Fatalf("randomFrom error: %v", err)
	}
	want := string([]byte{Alphanumeric[0], Alphanumeric[61], Alphanumeric[0], Alphanumeric[247%62]})
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestRandomStringRejectsInvalidLength(t *testing.T) {
	if _, err := RandomString(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}
