package crypto

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

func generateSelfSignedSigner(t *testing.T) (*rsa.PrivateKey, []byte, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	now := time.Now().UTC()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "uatd update signer", Organization: []string{"uatd"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return key, certPEM, cert
}

func privateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func TestSignAndVerifyDetachedJWS(t *testing.T) {
	key, certPEM, _ := generateSelfSignedSigner(t)
	payload := []byte(`{"version":"2026.08.01"}`)

	jws, err := SignDetachedJWS(payload, privateKeyPEM(key))
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyDetachedJWS(payload, jws, certPEM); err != nil {
		t.Fatalf("VerifyDetachedJWS: %v", err)
	}
}

func TestVerifyDetachedJWSRejectsTamperedPayload(t *testing.T) {
	key, certPEM, _ := generateSelfSignedSigner(t)
	jws, err := SignDetachedJWS([]byte("original"), privateKeyPEM(key))
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyDetachedJWS([]byte("tampered"), jws, certPEM); err == nil {
		t.Fatal("expected verification to fail for tampered payload")
	}
}

func TestVerifyDetachedJWSRejectsWrongKey(t *testing.T) {
	key, _, _ := generateSelfSignedSigner(t)
	_, otherCertPEM, _ := generateSelfSignedSigner(t)
	payload := []byte("payload")
	jws, err := SignDetachedJWS(payload, privateKeyPEM(key))
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyDetachedJWS(payload, jws, otherCertPEM); err == nil {
		t.Fatal("expected verification to fail against a different signer's certificate")
	}
}

func TestParseDetachedJWSRoundTrip(t *testing.T) {
	key, _, _ := generateSelfSignedSigner(t)
	jws, err := SignDetachedJWS([]byte("hello"), privateKeyPEM(key))
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(jws)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseDetachedJWS(b)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Signature != jws.Signature || parsed.Protected != jws.Protected {
		t.Errorf("parsed = %+v, want %+v", parsed, jws)
	}
}

func TestParseDetachedJWSRejectsIncomplete(t *testing.T) {
	if _, err := ParseDetachedJWS([]byte(`{"payload":"eA"}`)); err == nil {
		t.Fatal("expected error for jws missing protected/signature")
	}
}

func buildX5CProtectedHeader(t *testing.T, chain ...*x509.Certificate) string {
	t.Helper()
	x5c := make([]string, len(chain))
	for i, c := range chain {
		x5c[i] = base64.StdEncoding.EncodeToString(c.Raw)
	}
	hdr := map[string]any{"alg": "RS256", "typ": "JWT", "x5c": x5c}
	b, err := json.Marshal(hdr)
	if err != nil {
		t.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func TestVerifyDetachedJWSWithX5C(t *testing.T) {
	key, _, cert := generateSelfSignedSigner(t)
	payload := []byte(`{"rulePackId":"default","version":"1.0.0"}`)

	protected := buildX5CProtectedHeader(t, cert)
	pl := base64.RawURLEncoding.EncodeToString(payload)
	signingInput := protected + "." + pl
	h := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, stdcrypto.SHA256, h[:])
	if err != nil {
		t.Fatal(err)
	}
	jws := JWS{
		Protected: protected,
		Payload:   pl,
		Signature: base64.RawURLEncoding.EncodeToString(sig),
	}

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	leaf, err := VerifyDetachedJWSWithX5C(payload, jws, pool)
	if err != nil {
		t.Fatalf("VerifyDetachedJWSWithX5C: %v", err)
	}
	if leaf.SerialNumber.Cmp(cert.SerialNumber) != 0 {
		t.Errorf("leaf serial mismatch")
	}
}

func TestVerifyDetachedJWSWithX5CRejectsUntrustedChain(t *testing.T) {
	key, _, cert := generateSelfSignedSigner(t)
	_, _, otherCert := generateSelfSignedSigner(t)
	payload := []byte("payload")

	protected := buildX5CProtectedHeader(t, cert)
	pl := base64.RawURLEncoding.EncodeToString(payload)
	signingInput := protected + "." + pl
	h := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, stdcrypto.SHA256, h[:])
	if err != nil {
		t.Fatal(err)
	}
	jws := JWS{Protected: protected, Payload: pl, Signature: base64.RawURLEncoding.EncodeToString(sig)}

	pool := x509.NewCertPool()
	pool.AddCert(otherCert)

	if _, err := VerifyDetachedJWSWithX5C(payload, jws, pool); err == nil {
		t.Fatal("expected chain verification to fail against an unrelated truststore")
	}
}
