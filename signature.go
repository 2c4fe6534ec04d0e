package ct

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// PublicKey is a log's signing public key with the algorithm it uses.
type PublicKey interface {
	// Verify checks a signature over message, as found in a
	// DigitallySigned struct produced by the log.
	Verify(message, signature []byte) error

	Algorithm() SignatureAlgorithm

	// Bytes returns the DER-encoded SubjectPublicKeyInfo.
	Bytes() []byte
}

type ecdsaKey struct {
	pk   *ecdsa.PublicKey
	spki []byte
}

func (k *ecdsaKey) Algorithm() SignatureAlgorithm { return SigECDSA }
func (k *ecdsaKey) Bytes() []byte                 { return k.spki }
func (k *ecdsaKey) Verify(msg, sig []byte) error {
	hashed := sha256.Sum256(msg)
	if ecdsa.VerifyASN1(k.pk, hashed[:], sig) {
		return nil
	}
	return errors.New("ecdsa verification failed")
}

type rsaKey struct {
	pk   *rsa.PublicKey
	spki []byte
}

func (k *rsaKey) Algorithm() SignatureAlgorithm { return SigRSA }
func (k *rsaKey) Bytes() []byte                 { return k.spki }
func (k *rsaKey) Verify(msg, sig []byte) error {
	hashed := sha256.Sum256(msg)
	return rsa.VerifyPKCS1v15(k.pk, crypto.SHA256, hashed[:], sig)
}

// NewPublicKey wraps a parsed public key. Logs sign with ECDSA over P-256
// or RSA, both with SHA-256; anything else is rejected.
func NewPublicKey(pk crypto.PublicKey) (PublicKey, error) {
	spki, err := x509.MarshalPKIXPublicKey(pk)
	if err != nil {
		return nil, fmt.Errorf("marshalling SubjectPublicKeyInfo: %w", err)
	}

	switch pk := pk.(type) {
	case *ecdsa.PublicKey:
		if pk.Curve != elliptic.P256() {
			return nil, fmt.Errorf("unsupported curve %s", pk.Curve.Params().Name)
		}
		return &ecdsaKey{pk: pk, spki: spki}, nil
	case *rsa.PublicKey:
		return &rsaKey{pk: pk, spki: spki}, nil
	default:
		return nil, errors.New("unsupported public key type")
	}
}

// ParsePublicKey parses a DER-encoded SubjectPublicKeyInfo.
func ParsePublicKey(der []byte) (PublicKey, error) {
	pk, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	return NewPublicKey(pk)
}

// ParsePublicKeyPEM parses a PEM-encoded SubjectPublicKeyInfo.
func ParsePublicKeyPEM(data []byte) (PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.New("no PUBLIC KEY block found")
	}
	return ParsePublicKey(block.Bytes)
}

// KeyID returns the log id for the given key.
func KeyID(key PublicKey) LogID {
	return sha256.Sum256(key.Bytes())
}
