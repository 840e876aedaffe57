package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func testKeyPEM(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return key, pemBytes
}

func TestParseRSAPrivateKeyPKCS1Fallback(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	parsed, err := ParseRSAPrivateKey(pemBytes)
	if err != nil {
		t.Fatalf("ParseRSAPrivateKey: %v", err)
	}
	if parsed.N.Cmp(key.N) != 0 {
		t.Error("parsed key does not match original")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	_, pemBytes := testKeyPEM(t)

	blob, err := EncryptKey(pemBytes, "correct horse")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "correct horse")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if string(got) != string(pemBytes) {
		t.Error("round trip changed key material")
	}

	if _, err := DecryptKey(blob, "wrong password"); err == nil {
		t.Error("wrong password should fail")
	}
}

func TestLoadSigningKeySources(t *testing.T) {
	key, pemBytes := testKeyPEM(t)

	t.Run("base64 env value", func(t *testing.T) {
		got, err := LoadSigningKey(KeyConfig{
			PrivateKeyBase64: base64.StdEncoding.EncodeToString(pemBytes),
		})
		if err != nil {
			t.Fatalf("LoadSigningKey: %v", err)
		}
		if got.N.Cmp(key.N) != 0 {
			t.Error("wrong key")
		}
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptKey(pemBytes, "pw")
		if err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(t.TempDir(), "key.json")
		if err := os.WriteFile(path, blob, 0o600); err != nil {
			t.Fatal(err)
		}

		got, err := LoadSigningKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
		if err != nil {
			t.Fatalf("LoadSigningKey: %v", err)
		}
		if got.N.Cmp(key.N) != 0 {
			t.Error("wrong key")
		}
	})

	t.Run("no source", func(t *testing.T) {
		if _, err := LoadSigningKey(KeyConfig{}); err == nil {
			t.Error("expected error with no source")
		}
	})
}
