package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// wsAuthPath is the path component signed for the WebSocket handshake.
const wsAuthPath = "/trade-api/ws/v2"

// Signer produces the venue's RSA-PSS authentication headers. The signed
// message is timestamp + method + path, hashed with SHA-256 and signed with
// MGF1-SHA256 and a salt length equal to the hash size.
type Signer struct {
	apiKeyID   string
	privateKey *rsa.PrivateKey
}

// NewSigner creates a Signer for the given access key id and RSA private key.
func NewSigner(apiKeyID string, privateKey *rsa.PrivateKey) *Signer {
	return &Signer{apiKeyID: apiKeyID, privateKey: privateKey}
}

// Sign returns the base64 signature over ts + method + path.
func (s *Signer) Sign(ts, method, path string) (string, error) {
	if s.privateKey == nil {
		return "", fmt.Errorf("kalshi: RSA private key not configured")
	}

	message := ts + method + path
	hash := sha256.Sum256([]byte(message))

	signature, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("RSA sign: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// WSHeaders builds the authentication headers for the WebSocket handshake,
// with the timestamp in Unix milliseconds.
func (s *Signer) WSHeaders() (http.Header, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	sig, err := s.Sign(ts, http.MethodGet, wsAuthPath)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set("KALSHI-ACCESS-KEY", s.apiKeyID)
	h.Set("KALSHI-ACCESS-SIGNATURE", sig)
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return h, nil
}
