package config

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

type SecurityConfig interface {
	GetSecretKey() ([]byte, error)
	GetVerifyIDToken() bool
}

type Security struct {
	SecretKey     string `env:"SECRET_KEY"`
	VerifyIDToken bool   `env:"VERIFY_ID_TOKEN" envDefault:"false"`
}

var _ SecurityConfig = Security{}

// GetSecretKey decodes the hex sealing key. A nil key means secrets are stored in clear.
func (s Security) GetSecretKey() ([]byte, error) {
	if s.SecretKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s.SecretKey)
	if err != nil {
		return nil, errors.Wrap(err, "SECRET_KEY must be hex encoded")
	}
	return key, nil
}

func (s Security) GetVerifyIDToken() bool {
	return s.VerifyIDToken
}
