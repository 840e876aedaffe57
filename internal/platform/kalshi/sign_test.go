package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"testing"
)

func TestSignVerifiesAgainstPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	signer := NewSigner("key-id", key)

	ts := "1700000000000"
	sig, err := signer.Sign(ts, "GET", wsAuthPath)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}

	hash := sha256.Sum256([]byte(ts + "GET" + wsAuthPath))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], raw, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		t.Errorf("VerifyPSS: %v", err)
	}
}

func TestWSHeaders(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	signer := NewSigner("key-id", key)

	h, err := signer.WSHeaders()
	if err != nil {
		t.Fatalf("WSHeaders: %v", err)
	}

	if h.Get("KALSHI-ACCESS-KEY") != "key-id" {
		t.Errorf("access key header = %q", h.Get("KALSHI-ACCESS-KEY"))
	}
	ts := h.Get("KALSHI-ACCESS-TIMESTAMP")
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		t.Errorf("timestamp %q is not numeric", ts)
	}
	if len(ts) != 13 {
		t.Errorf("timestamp %q is not unix milliseconds", ts)
	}

	sig := h.Get("KALSHI-ACCESS-SIGNATURE")
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("signature not base64: %v", err)
	}
	hash := sha256.Sum256([]byte(ts + "GET" + wsAuthPath))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], raw, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		t.Errorf("header signature does not verify: %v", err)
	}

	if _, err := NewSigner("k", nil).WSHeaders(); err == nil {
		t.Error("expected error with nil key")
	}
}

func TestSignNoKey(t *testing.T) {
	if _, err := NewSigner("k", nil).Sign("1", "GET", wsAuthPath); err == nil {
		t.Error("expected error")
	}
}
