package exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Auth signs Kalshi API requests. Every request carries a detached RSA-PSS
// signature over "timestamp_ms + method + path" along with the API key id
// and the millisecond timestamp used for signing.
type Auth struct {
	apiKeyID   string
	privateKey *rsa.PrivateKey
}

// NewAuth builds an Auth from either a PEM file path or inline PEM content.
func NewAuth(apiKeyID, keyPath, keyContent string) (*Auth, error) {
	var pemBytes []byte
	switch {
	case keyContent != "":
		pemBytes = []byte(keyContent)
	case keyPath != "":
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		pemBytes = data
	default:
		return nil, fmt.Errorf("no private key configured")
	}

	key, err := parsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}

	return &Auth{apiKeyID: apiKeyID, privateKey: key}, nil
}

// parsePrivateKey decodes a PEM RSA key, trying PKCS8 then PKCS1.
func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key (tried PKCS8 and PKCS1): %w", err)
	}
	return rsaKey, nil
}

// Sign produces the base64 RSA-PSS signature for one request. The message is
// the concatenation timestamp_ms + method + path; the salt length equals the
// SHA-256 digest size (32 bytes).
func (a *Auth) Sign(timestampMS, method, path string) (string, error) {
	message := timestampMS + method + path
	hash := sha256.Sum256([]byte(message))

	sig, err := rsa.SignPSS(rand.Reader, a.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("signing: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// Headers returns the three auth headers for a request about to be sent.
// path must be the full URL path including the API prefix.
func (a *Auth) Headers(method, path string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	sig, err := a.Sign(ts, method, path)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"KALSHI-ACCESS-KEY":       a.apiKeyID,
		"KALSHI-ACCESS-TIMESTAMP": ts,
		"KALSHI-ACCESS-SIGNATURE": sig,
	}, nil
}
