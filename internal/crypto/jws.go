package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
)

type JWS struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

func SignDetachedJWS(payload []byte, privateKeyPEM []byte) (JWS, error) {
	hdr := map[string]any{
		"alg": "RS256",
		"typ": "JWT",
	}
	hb, _ := json.Marshal(hdr)
	protected := base64.RawURLEncoding.EncodeToString(hb)
	pl := base64.RawURLEncoding.EncodeToString(payload)

	priv, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil { return JWS{}, err }

	signingInput := protected + "." + pl
	h := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, h[:])
	if err != nil { return JWS{}, err }

	return JWS{
		Protected: protected,
		Payload:   pl,
		Signature: base64.RawURLEncoding.EncodeToString(sig),
	}, nil
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no pem block")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	return key, nil
}

type protectedHeader struct {
	Alg string   `json:"alg"`
	Typ string   `json:"typ,omitempty"`
	X5C []string `json:"x5c,omitempty"`
}

// ParseDetachedJWS decodes a signature file previously written alongside a
// signed payload (a manifest, a rule pack) into its JWS struct.
func ParseDetachedJWS(data []byte) (JWS, error) {
	var jws JWS
	if err := json.Unmarshal(data, &jws); err != nil {
		return JWS{}, err
	}
	if jws.Protected == "" || jws.Signature == "" {
		return JWS{}, errors.New("incomplete jws: missing protected header or signature")
	}
	return jws, nil
}

// VerifyDetachedJWS checks jws's signature over payload against the RSA
// public key embedded in certPEM.
func VerifyDetachedJWS(payload []byte, jws JWS, certPEM []byte) error {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return errors.New("no pem block in certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errors.New("certificate does not hold an RSA public key")
	}
	return verifySignature(payload, jws, pub)
}

// VerifyDetachedJWSWithX5C verifies jws's signature using the certificate
// chain embedded in its protected header's x5c claim, checking that chain
// against pool, and returns the leaf certificate on success.
func VerifyDetachedJWSWithX5C(payload []byte, jws JWS, pool *x509.CertPool) (*x509.Certificate, error) {
	hdrBytes, err := base64.RawURLEncoding.DecodeString(jws.Protected)
	if err != nil {
		return nil, fmt.Errorf("decode protected header: %w", err)
	}
	var hdr protectedHeader
	if err := json.Unmarshal(hdrBytes, &hdr); err != nil {
		return nil, fmt.Errorf("parse protected header: %w", err)
	}
	if len(hdr.X5C) == 0 {
		return nil, errors.New("protected header missing x5c chain")
	}
	leafDER, err := base64.StdEncoding.DecodeString(hdr.X5C[0])
	if err != nil {
		return nil, fmt.Errorf("decode leaf certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return nil, fmt.Errorf("parse leaf certificate: %w", err)
	}
	intermediates := x509.NewCertPool()
	for _, entry := range hdr.X5C[1:] {
		der, err := base64.StdEncoding.DecodeString(entry)
		if err != nil {
			return nil, fmt.Errorf("decode intermediate certificate: %w", err)
		}
		ic, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parse intermediate certificate: %w", err)
		}
		intermediates.AddCert(ic)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         pool,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("verify certificate chain: %w", err)
	}
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("leaf certificate does not hold an RSA public key")
	}
	if err := verifySignature(payload, jws, pub); err != nil {
		return nil, err
	}
	return leaf, nil
}

func verifySignature(payload []byte, jws JWS, pub *rsa.PublicKey) error {
	expectedPayload := base64.RawURLEncoding.EncodeToString(payload)
	if jws.Payload != "" && jws.Payload != expectedPayload {
		return errors.New("payload does not match jws")
	}
	sig, err := base64.RawURLEncoding.DecodeString(jws.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	signingInput := jws.Protected + "." + expectedPayload
	h := sha256.Sum256([]byte(signingInput))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig)
}
