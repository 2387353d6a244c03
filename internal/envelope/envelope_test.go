package envelope

import (
	"strings"
	"testing"
)

func TestEncryptDecrypt(t *testing.T) {
	c, err := New("a-shared-secret-that-is-long-enough")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	body := `{"email":"kid@example.com","password":"hunter22"}`
	payload, err := c.Encrypt([]byte(body))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.Contains(payload, ":") {
		t.Fatalf("expected iv:blob payload, got %q", payload)
	}
	plain, err := c.Decrypt(payload)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plain) != body {
		t.Fatalf("unexpected plaintext %q", plain)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	a, _ := New("first-secret-first-secret-first-secret")
	b, _ := New("second-secret-second-secret-second-sec")
	payload, err := a.Encrypt([]byte(`{"email":"x@example.com"}`))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	// A wrong key yields garbage that almost never unpads, and never
	// reproduces the original plaintext.
	plain, err := b.Decrypt(payload)
	if err == nil && string(plain) == `{"email":"x@example.com"}` {
		t.Fatal("decryption with the wrong key reproduced the plaintext")
	}
}

func TestDecryptRejectsMalformedPayloads(t *testing.T) {
	c, _ := New("another-secret-another-secret-another")
	for _, payload := range []string{"", "no-separator", "a:b:c", "aGk=:!!notbase64", "aGk=:aGk="} {
		if _, err := c.Decrypt(payload); err == nil {
			t.Fatalf("expected error for %q", payload)
		}
	}
}

func TestDeriveKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	if got := DeriveKey(hexKey); len(got) != 32 || got[0] != 0xab {
		t.Fatalf("expected raw hex key, got %x", got)
	}
	if got := DeriveKey("short"); len(got) != 32 {
		t.Fatalf("expected sha256 sized key, got %d bytes", len(got))
	}
}
