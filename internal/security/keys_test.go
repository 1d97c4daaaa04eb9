package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

// generateTestECDSAKeyPair returns a P-256 signer and its public key for rotation tests.
func generateTestECDSAKeyPair(t *testing.T) (crypto.Signer, crypto.PublicKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key, &key.PublicKey
}

func TestParsePrivateKey_InlinePEM(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if signer == nil {
		t.Fatal("signer is nil")
	}
}

func TestParsePublicKey_InlinePEM(t *testing.T) {
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if pub == nil {
		t.Fatal("public key is nil")
	}
}

func TestParsePrivateKey_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(path, []byte(testPrivateKeyPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	signer, err := ParsePrivateKey(path)
	if err != nil {
		t.Fatalf("ParsePrivateKey from file: %v", err)
	}
	if signer == nil {
		t.Fatal("signer is nil")
	}
}

func TestParsePrivateKey_ECPEM(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
	signer, err := ParsePrivateKey(pemStr)
	if err != nil {
		t.Fatalf("ParsePrivateKey EC: %v", err)
	}
	if signer == nil {
		t.Fatal("signer is nil")
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	cases := []string{"", "not a key", "-----BEGIN GARBAGE-----\nabc\n-----END GARBAGE-----"}
	for _, s := range cases {
		if _, err := ParsePrivateKey(s); err == nil {
			t.Errorf("ParsePrivateKey(%q): expected error", s)
		}
		if _, err := ParsePublicKey(s); err == nil {
			t.Errorf("ParsePublicKey(%q): expected error", s)
		}
	}
}

func TestLoadPEM_MissingFile(t *testing.T) {
	if _, err := LoadPEM("/nonexistent/path/key.pem"); err == nil {
		t.Error("LoadPEM missing file: expected error")
	}
}
