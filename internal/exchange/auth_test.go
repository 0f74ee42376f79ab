package exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
)

// testKeyPEM generates a throwaway RSA key in PKCS8 PEM form.
func testKeyPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), key
}

func TestSignVerifies(t *testing.T) {
	t.Parallel()
	pemStr, key := testKeyPEM(t)

	auth, err := NewAuth("key-id", "", pemStr)
	if err != nil {
		t.Fatal(err)
	}

	sig, err := auth.Sign("1700000000000", "POST", "/trade-api/v2/portfolio/orders")
	if err != nil {
		t.Fatal(err)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}

	digest := sha256.Sum256([]byte("1700000000000POST/trade-api/v2/portfolio/orders"))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], raw, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestHeadersShape(t *testing.T) {
	t.Parallel()
	pemStr, _ := testKeyPEM(t)

	auth, err := NewAuth("my-key-id", "", pemStr)
	if err != nil {
		t.Fatal(err)
	}

	headers, err := auth.Headers("GET", "/trade-api/v2/portfolio/balance")
	if err != nil {
		t.Fatal(err)
	}

	if headers["KALSHI-ACCESS-KEY"] != "my-key-id" {
		t.Errorf("access key header = %q", headers["KALSHI-ACCESS-KEY"])
	}
	if headers["KALSHI-ACCESS-TIMESTAMP"] == "" {
		t.Error("timestamp header missing")
	}
	if headers["KALSHI-ACCESS-SIGNATURE"] == "" {
		t.Error("signature header missing")
	}
}

func TestParsePKCS1Fallback(t *testing.T) {
	t.Parallel()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	pemStr := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))

	if _, err := NewAuth("key-id", "", pemStr); err != nil {
		t.Errorf("PKCS1 key rejected: %v", err)
	}
}

func TestNewAuthRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := NewAuth("key-id", "", "not a pem"); err == nil {
		t.Error("expected error for invalid PEM")
	}
}
