// package crypto provides a simple interface to common cryptographic primitives.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
)

// Keypair represents a public/private keypair in PEM format.
type Keypair struct {
	PublicKey  []byte
	PrivateKey []byte
}

func GenerateRSAKeypair() (*Keypair, error) {
	privatekey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	privateKeyPem := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privatekey),
	})
	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privatekey.PublicKey)
	if err != nil {
		return nil, err
	}
	publicKeyPem := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	})
	return &Keypair{
		PublicKey:  publicKeyPem,
		PrivateKey: privateKeyPem,
	}, nil
}

// ParseRSAPrivateKey parses a PEM encoded private key, and returns
// the public key and private key.
func ParseRSAPrivateKey(pemBytes []byte) (*rsa.PublicKey, *rsa.PrivateKey, error) {
	privPem, _ := pem.Decode(pemBytes)
	if privPem == nil || privPem.Type != "RSA PRIVATE KEY" {
		return nil, nil, errors.New("expected RSA PRIVATE KEY")
	}

	var parsedKey interface{}
	var err error
	if parsedKey, err = x509.ParsePKCS1PrivateKey(privPem.Bytes); err != nil {
		if parsedKey, err = x509.ParsePKCS8PrivateKey(privPem.Bytes); err != nil {
			return nil, nil, err
		}
	}

	switch privateKey := parsedKey.(type) {
	case *rsa.PrivateKey:
		return &privateKey.PublicKey, privateKey, nil
	default:
		return nil, nil, errors.New("expected *rsa.PrivateKey")
	}
}

// ParseRSAPublicKey parses a PEM encoded public key.
func ParseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	pubPem, _ := pem.Decode(pemBytes)
	if pubPem == nil || pubPem.Type != "PUBLIC KEY" {
		return nil, errors.New("expected PUBLIC KEY")
	}
	parsedKey, err := x509.ParsePKIXPublicKey(pubPem.Bytes)
	if err != nil {
		return nil, err
	}
	switch publicKey := parsedKey.(type) {
	case *rsa.PublicKey:
		return publicKey, nil
	default:
		return nil, errors.New("expected *rsa.PublicKey")
	}
}
