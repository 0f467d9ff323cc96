package signature

import (
	"crypto/rsa"

	"github.com/frahmantamala/pagepay/internal"
)

// Service binds the merchant private key and the gateway public key.
type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

func NewService(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey) *Service {
	return &Service{
		privateKey: privateKey,
		publicKey:  publicKey,
	}
}

func NewServiceFromConfig(cfg internal.GatewayConfig) (*Service, error) {
	privMaterial, err := cfg.PrivateKeyMaterial()
	if err != nil {
		return nil, err
	}
	pubMaterial, err := cfg.PublicKeyMaterial()
	if err != nil {
		return nil, err
	}

	privateKey, err := LoadPrivateKey(privMaterial)
	if err != nil {
		return nil, err
	}
	publicKey, err := LoadPublicKey(pubMaterial)
	if err != nil {
		return nil, err
	}

	return NewService(privateKey, publicKey), nil
}

func (s *Service) Sign(params Params) (string, error) {
	return Sign(params, s.privateKey)
}

func (s *Service) Verify(params Params, signature string) bool {
	return Verify(params, signature, s.publicKey)
}

func (s *Service) VerifyCallback(params Params) CallbackVerification {
	return VerifyCallback(params, s.publicKey)
}
