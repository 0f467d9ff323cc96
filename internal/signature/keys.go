package signature

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/frahmantamala/pagepay/internal"
)

// Key material is accepted as PEM, as bare base64 DER (the format the
// gateway console hands out) or as a path to a file holding either.

func ParsePrivateKey(material string) (*rsa.PrivateKey, error) {
	der, err := decodeMaterial(material, true)
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an RSA key")
	}
	return key, nil
}

func ParsePublicKey(material string) (*rsa.PublicKey, error) {
	der, err := decodeMaterial(material, true)
	if err != nil {
		return nil, err
	}

	if parsed, err := x509.ParsePKIXPublicKey(der); err == nil {
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not an RSA key")
		}
		return key, nil
	}

	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return key, nil
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not carry an RSA key")
	}
	return key, nil
}

// LoadPrivateKey wraps ParsePrivateKey failures as configuration errors.
func LoadPrivateKey(material string) (*rsa.PrivateKey, error) {
	key, err := ParsePrivateKey(material)
	if err != nil {
		return nil, internal.NewConfigError("invalid app private key", err)
	}
	return key, nil
}

func LoadPublicKey(material string) (*rsa.PublicKey, error) {
	key, err := ParsePublicKey(material)
	if err != nil {
		return nil, internal.NewConfigError("invalid gateway public key", err)
	}
	return key, nil
}

func decodeMaterial(material string, allowPath bool) ([]byte, error) {
	trimmed := strings.TrimSpace(material)
	if trimmed == "" {
		return nil, errors.New("key material is empty")
	}

	if strings.Contains(trimmed, "-----BEGIN") {
		block, _ := pem.Decode([]byte(trimmed))
		if block == nil {
			return nil, errors.New("invalid PEM block")
		}
		return block.Bytes, nil
	}

	compact := strings.Join(strings.Fields(trimmed), "")
	if der, err := base64.StdEncoding.DecodeString(compact); err == nil {
		return der, nil
	}

	if allowPath {
		data, err := os.ReadFile(trimmed)
		if err != nil {
			return nil, fmt.Errorf("key material is neither PEM, base64 nor a readable file: %w", err)
		}
		return decodeMaterial(string(data), false)
	}

	return nil, errors.New("key material is neither PEM nor base64")
}
